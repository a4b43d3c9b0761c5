// Package batch downloads several pages with bounded page parallelism.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Sriram-PR/page-loader/pkg/loader"
	"github.com/Sriram-PR/page-loader/pkg/models"
	"github.com/Sriram-PR/page-loader/pkg/parse"
	"github.com/Sriram-PR/page-loader/pkg/utils"
)

// PageOutcome is the result of one URL in a batch
type PageOutcome struct {
	URL      string
	Result   *models.PageResult // nil when Err is set
	Err      error
	Duration time.Duration
}

// Succeeded reports whether the page file was written
func (o PageOutcome) Succeeded() bool {
	return o.Err == nil
}

// Runner downloads many pages through one shared Loader
type Runner struct {
	loader   *loader.Loader
	maxPages int
	log      *logrus.Entry

	// OnAsset, if set, receives every asset result of every page.
	// Calls from different pages may run concurrently.
	OnAsset func(pageURL string, r models.DownloadResult)
}

// NewRunner creates a Runner that runs at most maxPages pages at once
func NewRunner(l *loader.Loader, maxPages int, log *logrus.Entry) *Runner {
	if maxPages <= 0 {
		maxPages = 1
	}
	return &Runner{loader: l, maxPages: maxPages, log: log}
}

// Run downloads every URL into outputDir and returns one outcome per URL, in
// input order. A failed page never stops the others. Run returns an error only
// if ctx was cancelled before every page finished.
func (r *Runner) Run(ctx context.Context, urls []string, outputDir string) ([]PageOutcome, error) {
	startTime := time.Now()
	outcomes := make([]PageOutcome, len(urls))
	r.log.Infof("Starting batch of %d pages (max %d at once)", len(urls), r.maxPages)
	r.warnDuplicates(urls)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxPages)

	for i, rawURL := range urls {
		g.Go(func() error {
			outcomes[i] = r.runPage(gCtx, rawURL, outputDir)
			return nil
		})
	}
	_ = g.Wait() // page errors live in the outcomes

	r.logSummary(outcomes, time.Since(startTime))
	if err := ctx.Err(); err != nil {
		return outcomes, fmt.Errorf("batch interrupted: %w", err)
	}
	return outcomes, nil
}

// warnDuplicates logs inputs naming the same page; each still runs and the
// last one to finish owns the files
func (r *Runner) warnDuplicates(urls []string) {
	seen := make(map[string]string, len(urls))
	for _, rawURL := range urls {
		u, err := parse.ParseAbsolute(rawURL)
		if err != nil {
			continue
		}
		key := parse.NormalizeURL(u)
		if first, ok := seen[key]; ok {
			r.log.WithFields(logrus.Fields{"url": rawURL, "same_as": first}).Warn("Duplicate page URL in batch")
			continue
		}
		seen[key] = rawURL
	}
}

func (r *Runner) runPage(ctx context.Context, rawURL, outputDir string) PageOutcome {
	start := time.Now()
	progress := loader.Progress{}
	if r.OnAsset != nil {
		progress.OnAsset = func(res models.DownloadResult) { r.OnAsset(rawURL, res) }
	}

	result, err := r.loader.DownloadPageWithProgress(ctx, rawURL, outputDir, progress)
	return PageOutcome{
		URL:      rawURL,
		Result:   result,
		Err:      err,
		Duration: time.Since(start),
	}
}

// logSummary logs a summary of all page outcomes
func (r *Runner) logSummary(outcomes []PageOutcome, totalDuration time.Duration) {
	r.log.Info("============================================")
	r.log.Infof("Batch completed in %v", totalDuration)

	successCount, failCount, assetsTotal, assetsFailed := 0, 0, 0, 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failCount++
			r.log.Infof("  %s: FAILED (%s) in %v", o.URL, utils.CategorizeError(o.Err), o.Duration)
			continue
		}
		successCount++
		failed := len(o.Result.Failed())
		assetsTotal += len(o.Result.Assets)
		assetsFailed += failed
		r.log.Infof("  %s: SUCCESS - %d assets (%d failed) in %v", o.URL, len(o.Result.Assets), failed, o.Duration)
	}

	r.log.Info("--------------------------------------------")
	r.log.Infof("Total: %d pages (%d success, %d failed), %d assets (%d failed)",
		len(outcomes), successCount, failCount, assetsTotal, assetsFailed)
	r.log.Info("============================================")
}
