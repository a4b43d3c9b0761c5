package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

type originEntry struct {
	sem         *semaphore.Weighted
	activeCount int64     // held + waiting permits
	lastRelease time.Time // zero if never released
}

// OriginPool caps in-flight asset downloads per origin across every page
// sharing the pool, so a batch of pages on one site stays within one limit.
type OriginPool struct {
	entries map[string]*originEntry
	mu      sync.Mutex
	limit   int64
	log     *logrus.Entry
}

// NewOriginPool creates a pool allowing maxPerOrigin concurrent permits per origin
func NewOriginPool(maxPerOrigin int, log *logrus.Entry) *OriginPool {
	limit := int64(maxPerOrigin)
	if limit <= 0 {
		limit = 1
	}
	return &OriginPool{
		entries: make(map[string]*originEntry),
		limit:   limit,
		log:     log,
	}
}

// Acquire blocks until a permit for origin is free or ctx is done
func (p *OriginPool) Acquire(ctx context.Context, origin string) error {
	p.mu.Lock()
	entry, ok := p.entries[origin]
	if !ok {
		entry = &originEntry{sem: semaphore.NewWeighted(p.limit)}
		p.entries[origin] = entry
		p.log.WithFields(logrus.Fields{"origin": origin, "limit": p.limit}).Debug("Created origin semaphore")
	}
	entry.activeCount++
	p.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		p.mu.Lock()
		entry.activeCount--
		p.mu.Unlock()
		return err
	}
	return nil
}

// Release returns one permit for origin
func (p *OriginPool) Release(origin string) {
	p.mu.Lock()
	entry, ok := p.entries[origin]
	if !ok {
		p.mu.Unlock()
		p.log.Errorf("Release called for unknown origin: %s", origin)
		return
	}
	entry.activeCount--
	entry.lastRelease = time.Now()
	p.mu.Unlock()

	entry.sem.Release(1)
}

// RunEviction drops idle origins every interval until ctx is done
// Long-lived processes (the MCP server) run it in a goroutine.
func (p *OriginPool) RunEviction(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.evictIdle(interval)
		case <-ctx.Done():
			p.log.Debugf("Stopping origin pool eviction: %v", ctx.Err())
			return
		}
	}
}

func (p *OriginPool) evictIdle(maxIdle time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	evicted := 0
	for origin, entry := range p.entries {
		if entry.activeCount == 0 && !entry.lastRelease.IsZero() && now.Sub(entry.lastRelease) >= maxIdle {
			delete(p.entries, origin)
			evicted++
		}
	}
	if evicted > 0 {
		p.log.Debugf("Evicted %d idle origin semaphores, %d remain", evicted, len(p.entries))
	}
}

// Len returns the number of tracked origins
func (p *OriginPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
