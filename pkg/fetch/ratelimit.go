package fetch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RateLimiter spaces out requests to the same host
type RateLimiter struct {
	hostLastRequest   map[string]time.Time // host -> last request attempt time
	hostLastRequestMu sync.Mutex
	defaultDelay      time.Duration // used when the caller passes a non-positive delay
	log               *logrus.Entry
}

// NewRateLimiter creates a RateLimiter
func NewRateLimiter(defaultDelay time.Duration, log *logrus.Entry) *RateLimiter {
	return &RateLimiter{
		hostLastRequest: make(map[string]time.Time),
		defaultDelay:    defaultDelay,
		log:             log,
	}
}

// ApplyDelay blocks until at least minDelay (+/- 10% jitter) has passed since the last
// request to host, or until ctx is done. It reserves the next slot for the caller, so
// concurrent workers targeting one host are serialized rather than released together.
func (rl *RateLimiter) ApplyDelay(ctx context.Context, host string, minDelay time.Duration) error {
	if minDelay <= 0 {
		minDelay = rl.defaultDelay
	}
	if minDelay <= 0 {
		return ctx.Err()
	}

	rl.hostLastRequestMu.Lock()
	now := time.Now()
	var wait time.Duration
	if last, ok := rl.hostLastRequest[host]; ok {
		if elapsed := now.Sub(last); elapsed < minDelay {
			wait = jitter(minDelay - elapsed)
		}
	}
	rl.hostLastRequest[host] = now.Add(wait)
	rl.hostLastRequestMu.Unlock()

	if wait <= 0 {
		return ctx.Err()
	}

	rl.log.WithFields(logrus.Fields{"host": host, "sleep": wait, "required_delay": minDelay}).Debug("Rate limit applying sleep")
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UpdateLastRequestTime records now as the last request time for host
func (rl *RateLimiter) UpdateLastRequestTime(host string) {
	rl.hostLastRequestMu.Lock()
	rl.hostLastRequest[host] = time.Now()
	rl.hostLastRequestMu.Unlock()
}

// jitter returns d adjusted by a random +/- 10%
func jitter(d time.Duration) time.Duration {
	if jitterRange := int64(d) / 5; jitterRange > 0 {
		d += time.Duration(rand.Int63n(jitterRange)) - d/10
	}
	return max(d, 0)
}
