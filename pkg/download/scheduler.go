// Package download fetches a page's assets with a fixed pool of workers.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/page-loader/pkg/config"
	"github.com/Sriram-PR/page-loader/pkg/fetch"
	"github.com/Sriram-PR/page-loader/pkg/models"
	"github.com/Sriram-PR/page-loader/pkg/parse"
	"github.com/Sriram-PR/page-loader/pkg/utils"
)

// Scheduler downloads assets concurrently and reports one result per reference
type Scheduler struct {
	fetcher     *fetch.Fetcher
	rateLimiter *fetch.RateLimiter
	robots      *fetch.RobotsHandler // nil disables robots checks
	origins     *fetch.OriginPool    // nil disables the cross-page origin cap
	cfg         *config.AppConfig
	log         *logrus.Entry
	workers     int // 0 = cfg.Concurrency

	// OnResult, if set, is called once per AssetReference as soon as its unit is
	// terminal. Calls are serialized.
	OnResult func(models.DownloadResult)
}

// unit is one distinct resource; refs are the indexes of every reference to it
type unit struct {
	key   string
	asset models.AssetReference
	refs  []int
}

// NewScheduler creates a Scheduler. robots and origins may be nil.
func NewScheduler(
	fetcher *fetch.Fetcher,
	rateLimiter *fetch.RateLimiter,
	robots *fetch.RobotsHandler,
	origins *fetch.OriginPool,
	cfg *config.AppConfig,
	log *logrus.Entry,
) *Scheduler {
	return &Scheduler{
		fetcher:     fetcher,
		rateLimiter: rateLimiter,
		robots:      robots,
		origins:     origins,
		cfg:         cfg,
		log:         log,
	}
}

// WithOnResult returns a copy of s reporting to fn; the copy shares the fetcher,
// rate limiter, robots cache and origin pool with s.
func (s *Scheduler) WithOnResult(fn func(models.DownloadResult)) *Scheduler {
	c := *s
	c.OnResult = fn
	return &c
}

// WithConcurrency returns a copy of s running n workers per page; the copy
// shares everything else with s
func (s *Scheduler) WithConcurrency(n int) *Scheduler {
	c := *s
	c.workers = n
	return &c
}

func (s *Scheduler) workerCount() int {
	if s.workers > 0 {
		return s.workers
	}
	return max(s.cfg.Concurrency, 1)
}

// Origins returns the origin pool shared by s and its copies, or nil
func (s *Scheduler) Origins() *fetch.OriginPool {
	return s.origins
}

// DownloadAll saves every asset into assetsDir and returns the outcomes in the
// order of assets. It returns once every unit is terminal. A failed asset never
// stops the others; failures are reported in the results, not as an error.
func (s *Scheduler) DownloadAll(ctx context.Context, assets []models.AssetReference, assetsDir string) []models.DownloadResult {
	results := make([]models.DownloadResult, len(assets))
	if len(assets) == 0 {
		return results
	}

	var resultMu sync.Mutex
	record := func(idx int, r models.DownloadResult) {
		resultMu.Lock()
		defer resultMu.Unlock()
		results[idx] = r
		if s.OnResult != nil {
			s.OnResult(r)
		}
	}

	if err := os.MkdirAll(assetsDir, 0755); err != nil {
		dirErr := fmt.Errorf("%w: creating assets directory '%s': %w", utils.ErrFilesystem, assetsDir, err)
		s.log.Errorf("Cannot prepare assets directory, failing all %d assets: %v", len(assets), dirErr)
		for i, a := range assets {
			record(i, failed(a, fmt.Errorf("%w: '%s': %w", utils.ErrAssetDownload, a.URL(), dirErr), 0))
		}
		return results
	}

	units := groupUnits(assets)
	numWorkers := min(s.workerCount(), len(units))

	unitChan := make(chan *unit, len(units))
	for _, u := range units {
		unitChan <- u
	}
	close(unitChan)

	s.log.WithFields(logrus.Fields{"assets": len(assets), "units": len(units), "workers": numWorkers}).Info("Downloading assets")

	var wg sync.WaitGroup
	for i := 1; i <= numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLog := s.log.WithField("worker_id", id)
			for u := range unitChan {
				res := s.runUnit(ctx, u, assetsDir, workerLog)
				for _, idx := range u.refs {
					r := res
					r.Asset = assets[idx]
					record(idx, r)
				}
			}
		}(i)
	}
	wg.Wait()

	failedCount := 0
	for _, r := range results {
		if !r.Succeeded() {
			failedCount++
		}
	}
	s.log.WithFields(logrus.Fields{"assets": len(assets), "failed": failedCount}).Info("Asset downloads finished")
	return results
}

// groupUnits de-duplicates assets by resource key, keeping first-seen order
func groupUnits(assets []models.AssetReference) []*unit {
	byKey := make(map[string]*unit, len(assets))
	units := make([]*unit, 0, len(assets))
	for i, a := range assets {
		key := parse.ResourceKey(a.ResolvedURL)
		if u, ok := byKey[key]; ok {
			u.refs = append(u.refs, i)
			continue
		}
		u := &unit{key: key, asset: a, refs: []int{i}}
		byKey[key] = u
		units = append(units, u)
	}
	return units
}

// runUnit downloads one resource; it never panics and always returns a terminal result
func (s *Scheduler) runUnit(ctx context.Context, u *unit, assetsDir string, workerLog *logrus.Entry) (res models.DownloadResult) {
	start := time.Now()
	assetLog := workerLog.WithField("asset_url", u.key)
	dest := filepath.Join(assetsDir, u.asset.LocalFileName)

	defer func() {
		if r := recover(); r != nil {
			assetLog.WithFields(logrus.Fields{"panic_info": r, "stack_trace": string(debug.Stack())}).Error("PANIC recovered in asset download")
			res = failed(u.asset, fmt.Errorf("%w: '%s': panic: %v", utils.ErrAssetDownload, u.key, r), res.StatusCode)
		}
		res.Duration = time.Since(start)
		if res.Succeeded() {
			assetLog.WithFields(logrus.Fields{"bytes": res.Bytes, "path": dest, "duration": res.Duration}).Debug("Asset saved")
		} else {
			assetLog.WithField("reason", res.Reason).Warnf("Asset download failed: %v", res.Err)
		}
	}()

	n, sum, status, err := s.download(ctx, u, dest, assetLog)
	if err != nil {
		return failed(u.asset, fmt.Errorf("%w: '%s': %w", utils.ErrAssetDownload, u.key, err), status)
	}
	return models.DownloadResult{
		Asset:      u.asset,
		Status:     models.AssetStatusSuccess,
		StatusCode: status,
		Bytes:      n,
		SHA256:     sum,
	}
}

func (s *Scheduler) download(ctx context.Context, u *unit, dest string, assetLog *logrus.Entry) (n int64, sum string, status int, err error) {
	if s.cfg.AssetTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AssetTimeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return 0, "", 0, err
	}

	target := u.asset.ResolvedURL
	if s.robots != nil && !s.robots.TestAgent(ctx, target, s.cfg.UserAgent) {
		return 0, "", 0, fmt.Errorf("%w: %s", utils.ErrRobotsDisallowed, target.RequestURI())
	}

	if s.origins != nil {
		origin := parse.Origin(target)
		if err := s.origins.Acquire(ctx, origin); err != nil {
			return 0, "", 0, err
		}
		defer s.origins.Release(origin)
	}

	if err := s.rateLimiter.ApplyDelay(ctx, target.Host, s.cfg.DelayPerHost); err != nil {
		return 0, "", 0, err
	}

	resp, err := s.fetcher.Get(ctx, u.key, s.cfg.UserAgent)
	if resp != nil {
		status = resp.StatusCode
	}
	if err != nil {
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return 0, "", status, err
	}
	defer resp.Body.Close()

	maxBytes := s.cfg.MaxAssetSizeBytes
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return 0, "", status, fmt.Errorf("%w: Content-Length %d > %d bytes", utils.ErrAssetTooLarge, resp.ContentLength, maxBytes)
	}

	assetLog.Debugf("Streaming asset to %s", dest)
	n, sum, err = writeFile(dest, resp.Body, maxBytes)
	return n, sum, status, err
}

// readTracker remembers the first read error so copy failures can be attributed
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

// writeFile streams body into dest through a temp file in the same directory,
// so a failed or oversize download never leaves a partial file at dest.
// maxBytes <= 0 means unlimited.
func writeFile(dest string, body io.Reader, maxBytes int64) (written int64, sum string, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".part-*")
	if err != nil {
		return 0, "", fmt.Errorf("%w: creating file for '%s': %w", utils.ErrFilesystem, dest, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	src := &readTracker{r: body}
	var reader io.Reader = src
	if maxBytes > 0 {
		reader = io.LimitReader(src, maxBytes+1)
	}

	hasher := sha256.New()
	written, err = io.Copy(io.MultiWriter(tmp, hasher), reader)
	if err != nil {
		if src.err != nil {
			return 0, "", fmt.Errorf("%w: '%s': %w", utils.ErrResponseBodyRead, dest, src.err)
		}
		return 0, "", fmt.Errorf("%w: writing '%s': %w", utils.ErrFilesystem, dest, err)
	}
	if maxBytes > 0 && written > maxBytes {
		return 0, "", fmt.Errorf("%w: body exceeds %d bytes", utils.ErrAssetTooLarge, maxBytes)
	}

	if err = tmp.Chmod(0644); err != nil {
		return 0, "", fmt.Errorf("%w: chmod '%s': %w", utils.ErrFilesystem, tmpName, err)
	}
	if err = tmp.Close(); err != nil {
		return 0, "", fmt.Errorf("%w: closing '%s': %w", utils.ErrFilesystem, tmpName, err)
	}
	if err = os.Rename(tmpName, dest); err != nil {
		return 0, "", fmt.Errorf("%w: renaming onto '%s': %w", utils.ErrFilesystem, dest, err)
	}
	return written, hex.EncodeToString(hasher.Sum(nil)), nil
}

func failed(a models.AssetReference, err error, status int) models.DownloadResult {
	return models.DownloadResult{
		Asset:      a,
		Status:     models.AssetStatusFailure,
		Err:        err,
		Reason:     utils.CategorizeError(err),
		StatusCode: status,
	}
}
