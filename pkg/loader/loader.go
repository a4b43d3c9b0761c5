// Package loader downloads a single page with its same-origin assets and writes
// a local copy whose references point at the downloaded files.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/Sriram-PR/page-loader/pkg/config"
	"github.com/Sriram-PR/page-loader/pkg/download"
	"github.com/Sriram-PR/page-loader/pkg/extract"
	"github.com/Sriram-PR/page-loader/pkg/fetch"
	"github.com/Sriram-PR/page-loader/pkg/models"
	"github.com/Sriram-PR/page-loader/pkg/naming"
	"github.com/Sriram-PR/page-loader/pkg/parse"
	"github.com/Sriram-PR/page-loader/pkg/storage"
	"github.com/Sriram-PR/page-loader/pkg/utils"
)

// Progress receives callbacks for one page run. Either field may be nil.
type Progress struct {
	OnStage func(models.Stage)
	OnAsset func(models.DownloadResult)
}

// Loader runs page downloads. It is safe for concurrent use; concurrent runs
// share its fetcher, rate limiter, robots cache and origin pool.
type Loader struct {
	fetcher   *fetch.Fetcher
	scheduler *download.Scheduler
	store     storage.OutcomeStore // nil disables run history
	cfg       *config.AppConfig
	log       *logrus.Entry
}

// NewLoader creates a Loader from explicit parts. store may be nil.
func NewLoader(fetcher *fetch.Fetcher, scheduler *download.Scheduler, store storage.OutcomeStore, cfg *config.AppConfig, log *logrus.Entry) *Loader {
	return &Loader{
		fetcher:   fetcher,
		scheduler: scheduler,
		store:     store,
		cfg:       cfg,
		log:       log,
	}
}

// New assembles a Loader and its HTTP stack from a validated config
func New(cfg *config.AppConfig, store storage.OutcomeStore, log *logrus.Entry) *Loader {
	client := fetch.NewClient(cfg.HTTPClientSettings, log)
	fetcher := fetch.NewFetcher(client, cfg, log)
	limiter := fetch.NewRateLimiter(cfg.DelayPerHost, log)
	var robots *fetch.RobotsHandler
	if cfg.RespectRobotsTxt {
		robots = fetch.NewRobotsHandler(fetcher, limiter, cfg, log)
	}
	origins := fetch.NewOriginPool(cfg.Concurrency, log)
	scheduler := download.NewScheduler(fetcher, limiter, robots, origins, cfg, log)
	return NewLoader(fetcher, scheduler, store, cfg, log)
}

// WithConcurrency returns a Loader running n asset workers per page. It shares
// the fetcher, rate limiter, robots cache, origin pool and store with l.
func (l *Loader) WithConcurrency(n int) *Loader {
	c := *l
	c.scheduler = l.scheduler.WithConcurrency(n)
	return &c
}

// RunOriginEviction drops idle per-origin limits until ctx is done
// Only long-lived processes need it; a CLI run exits before origins pile up.
func (l *Loader) RunOriginEviction(ctx context.Context, interval time.Duration) {
	if origins := l.scheduler.Origins(); origins != nil {
		origins.RunEviction(ctx, interval)
	}
}

// DownloadPage saves rawURL as outputDir/<page file name> and its assets under
// outputDir/<assets dir>. Asset failures are reported in the result, never as
// an error. The returned error wraps ErrInvalidRequest, ErrPageFetch,
// ErrDirectoryCreate or ErrPageWrite.
func (l *Loader) DownloadPage(ctx context.Context, rawURL, outputDir string) (*models.PageResult, error) {
	return l.DownloadPageWithProgress(ctx, rawURL, outputDir, Progress{})
}

// DownloadPageWithProgress is DownloadPage with per-run callbacks
func (l *Loader) DownloadPageWithProgress(ctx context.Context, rawURL, outputDir string, progress Progress) (result *models.PageResult, err error) {
	result = &models.PageResult{
		RunID:     uuid.NewString(),
		SourceURL: rawURL,
		StartedAt: time.Now(),
	}
	runLog := l.log.WithFields(logrus.Fields{"run_id": result.RunID, "url": rawURL})

	stage := func(s models.Stage) {
		runLog.WithField("stage", s).Info("Stage started")
		if progress.OnStage != nil {
			progress.OnStage(s)
		}
	}

	defer func() {
		result.FinishedAt = time.Now()
		if err != nil {
			runLog.WithFields(logrus.Fields{"stage": models.StageFailed, "error_type": utils.CategorizeError(err)}).Errorf("Page download failed: %v", err)
			if progress.OnStage != nil {
				progress.OnStage(models.StageFailed)
			}
		}
		l.record(result, err, runLog)
		if err != nil {
			result = nil
		}
	}()

	// --- Validate ---
	req := models.PageRequest{SourceURL: rawURL, OutputDir: outputDir}
	if vErr := req.Validate(); vErr != nil {
		return result, fmt.Errorf("%w: %w", utils.ErrInvalidRequest, vErr)
	}
	pageURL, pErr := parse.ParseAbsolute(rawURL)
	if pErr != nil {
		return result, fmt.Errorf("%w: %w", utils.ErrInvalidRequest, pErr)
	}
	absOut, aErr := filepath.Abs(outputDir)
	if aErr != nil {
		return result, fmt.Errorf("%w: output dir '%s': %w", utils.ErrInvalidRequest, outputDir, aErr)
	}

	// --- Fetching ---
	stage(models.StageFetching)
	body, finalURL, fErr := l.fetchPage(ctx, pageURL)
	if fErr != nil {
		return result, fmt.Errorf("%w: fetching page '%s': %w", utils.ErrPageFetch, rawURL, fErr)
	}
	result.FinalURL = finalURL.String()
	if result.FinalURL != pageURL.String() {
		runLog.WithField("final_url", result.FinalURL).Info("Page was redirected")
	}

	// --- Extracting ---
	// Names come from the requested URL; references resolve against the final one
	stage(models.StageExtracting)
	assetsDirName := naming.AssetsDirName(pageURL)
	result.AssetsDir = filepath.Join(absOut, assetsDirName)
	pagePath := filepath.Join(absOut, naming.PageFileName(pageURL))

	doc, assets, eErr := extract.ExtractFromReader(bytes.NewReader(body), finalURL, assetsDirName)
	if eErr != nil {
		return result, fmt.Errorf("%w: page body of '%s': %w", utils.ErrPageFetch, rawURL, eErr)
	}
	runLog.WithField("assets", len(assets)).Info("Assets found")

	// --- PreparingDirs ---
	stage(models.StagePreparingDirs)
	if mkErr := os.MkdirAll(absOut, 0755); mkErr != nil {
		return result, fmt.Errorf("%w: '%s': %w", utils.ErrDirectoryCreate, absOut, mkErr)
	}
	if len(assets) > 0 {
		if mkErr := os.MkdirAll(result.AssetsDir, 0755); mkErr != nil {
			return result, fmt.Errorf("%w: '%s': %w", utils.ErrDirectoryCreate, result.AssetsDir, mkErr)
		}
	}

	// --- DownloadingAssets ---
	stage(models.StageDownloadingAssets)
	scheduler := l.scheduler
	if progress.OnAsset != nil {
		scheduler = scheduler.WithOnResult(progress.OnAsset)
	}
	result.Assets = scheduler.DownloadAll(ctx, assets, result.AssetsDir)
	if failed := len(result.Failed()); failed > 0 {
		runLog.WithFields(logrus.Fields{"failed": failed, "total": len(assets)}).Warn("Some assets could not be downloaded")
	}

	// --- WritingPage ---
	stage(models.StageWritingPage)
	if wErr := writePage(doc, pagePath); wErr != nil {
		return result, wErr
	}
	result.PagePath = pagePath

	// --- Done ---
	if l.cfg.WriteManifest {
		manifestPath := filepath.Join(absOut, naming.Slug(pageURL)+ManifestSuffix)
		result.FinishedAt = time.Now()
		if mErr := writeManifest(manifestPath, result); mErr != nil {
			runLog.Warnf("Could not write manifest: %v", mErr)
		}
	}
	stage(models.StageDone)
	runLog.WithFields(logrus.Fields{
		"page_path": result.PagePath,
		"assets":    len(result.Assets),
		"succeeded": result.SucceededCount(),
	}).Info("Page saved")
	return result, nil
}

// fetchPage GETs the page under PageTimeout and returns its body and final URL
func (l *Loader) fetchPage(ctx context.Context, pageURL *url.URL) ([]byte, *url.URL, error) {
	if l.cfg.PageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.PageTimeout)
		defer cancel()
	}

	resp, err := l.fetcher.Get(ctx, pageURL.String(), l.cfg.UserAgent)
	if err != nil {
		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		return nil, nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	maxBytes := l.cfg.MaxPageSizeBytes
	if maxBytes > 0 {
		reader = io.LimitReader(resp.Body, maxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return nil, nil, fmt.Errorf("%w: page body exceeds %d bytes", utils.ErrAssetTooLarge, maxBytes)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	return body, finalURL, nil
}

// writePage renders doc into a temp file beside path and renames it into place,
// replacing any page left by an earlier run
func writePage(doc *goquery.Document, path string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".page-*")
	if err != nil {
		return fmt.Errorf("%w: '%s': %w", utils.ErrPageWrite, path, err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, node := range doc.Nodes {
		if err = html.Render(w, node); err != nil {
			return fmt.Errorf("%w: rendering '%s': %w", utils.ErrPageWrite, path, err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("%w: '%s': %w", utils.ErrPageWrite, path, err)
	}
	if err = tmp.Chmod(0644); err != nil {
		return fmt.Errorf("%w: '%s': %w", utils.ErrPageWrite, path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: '%s': %w", utils.ErrPageWrite, path, err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: '%s': %w", utils.ErrPageWrite, path, err)
	}
	return nil
}

// record stores the run in the history; failures here never fail the run
func (l *Loader) record(result *models.PageResult, pageErr error, runLog *logrus.Entry) {
	if l.store == nil {
		return
	}
	if err := storage.RecordPage(l.store, result, pageErr); err != nil {
		runLog.Warnf("Could not record run outcome: %v", err)
	}
}
