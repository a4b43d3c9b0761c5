package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/page-loader/pkg/config"
	"github.com/Sriram-PR/page-loader/pkg/utils"
)

// Fetcher makes HTTP requests with the configured retry policy, using an underlying http.Client
type Fetcher struct {
	client *http.Client
	cfg    *config.AppConfig // Retry settings
	log    *logrus.Entry
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(client *http.Client, cfg *config.AppConfig, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client: client,
		cfg:    cfg,
		log:    log,
	}
}

// Get issues a GET for rawURL with the given User-Agent, retrying per FetchWithRetry
func (f *Fetcher) Get(ctx context.Context, rawURL, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: GET '%s': %w", utils.ErrRequestCreation, rawURL, err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return f.FetchWithRetry(ctx, req)
}

// FetchWithRetry performs req under ctx with exponential backoff and jitter
// Network errors, 5xx and 429 are retried; context errors and other statuses are not
//
// On 2xx the response is returned with a nil error. On a non-retryable non-2xx status the
// response is returned together with an ErrClientHTTPError or ErrOtherHTTPError and the
// caller must close its body. When all attempts fail the error wraps ErrRetryFailed.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error
	reqLog := f.log.WithField("url", req.URL.String())
	maxRetries := f.cfg.MaxRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled: %w (after error: %w)", err, lastErr)
			}
			return nil, fmt.Errorf("context cancelled before first attempt: %w", err)
		}

		// --- Exponential Backoff Delay ---
		if attempt > 0 {
			delay := f.backoff(attempt)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": maxRetries, "delay": delay}).Warn("Retrying request...")

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context cancelled during retry delay: %w (after error: %w)", ctx.Err(), lastErr)
			}
		}

		resp, err := f.client.Do(req.WithContext(ctx))

		// --- Network-Level Errors ---
		if err != nil {
			drainAndClose(resp)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reqLog.Warnf("Context cancelled/timed out during request: %v", err)
				return nil, err
			}
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", err)
			lastErr = err
			continue
		}

		// --- HTTP Status Codes ---
		statusCode := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": statusCode, "attempt": attempt})

		switch {
		case statusCode >= 200 && statusCode < 300:
			resLog.Debug("Successfully fetched")
			return resp, nil

		case statusCode >= 500:
			resLog.Warn("Server error, will retry")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrServerHTTPError, statusCode, resp.Status)
			drainAndClose(resp)

		case statusCode == http.StatusTooManyRequests:
			resLog.Warn("Received 429 Too Many Requests, will retry")
			lastErr = fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)
			drainAndClose(resp)

		case statusCode >= 400:
			resLog.Debug("Client error (4xx), not retrying")
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrClientHTTPError, statusCode, resp.Status)

		default:
			// 1xx/3xx reaching here means the redirect was not followed (no Location, or redirect limit)
			resLog.Debugf("Non-retryable status: %d", statusCode)
			return resp, fmt.Errorf("%w: status %d %s", utils.ErrOtherHTTPError, statusCode, resp.Status)
		}
	}

	reqLog.Warnf("All %d fetch attempts failed. Last error: %v", maxRetries+1, lastErr)
	if lastErr == nil {
		return nil, utils.ErrRetryFailed
	}
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

// backoff returns initial * 2^(attempt-1), capped at the max delay, with +/- 10% jitter
func (f *Fetcher) backoff(attempt int) time.Duration {
	initial := f.cfg.InitialRetryDelay
	maxDelay := f.cfg.MaxRetryDelay

	delay := time.Duration(float64(initial) * math.Pow(2, float64(attempt-1)))
	if maxDelay > 0 && (delay <= 0 || delay > maxDelay) {
		delay = maxDelay
	}
	if delay <= 0 {
		return 0
	}

	if jitterRange := int64(delay) / 5; jitterRange > 0 {
		delay += time.Duration(rand.Int63n(jitterRange)) - delay/10
	}
	return max(delay, 0)
}

// drainAndClose discards the rest of a response body so the connection can be reused
func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
