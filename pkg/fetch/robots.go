package fetch

import (
	"context"
	"io"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"

	"github.com/Sriram-PR/page-loader/pkg/config"
	"github.com/Sriram-PR/page-loader/pkg/parse"
)

// maxRobotsBytes caps how much of a robots.txt body is parsed
const maxRobotsBytes = 512 << 10

// RobotsHandler fetches, caches, and checks robots.txt per origin
type RobotsHandler struct {
	fetcher     *Fetcher
	rateLimiter *RateLimiter
	cache       map[string]*robotstxt.RobotsData // origin -> parsed data (nil = allow all)
	cacheMu     sync.Mutex
	group       singleflight.Group
	cfg         *config.AppConfig
	log         *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler
func NewRobotsHandler(fetcher *Fetcher, rateLimiter *RateLimiter, cfg *config.AppConfig, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		rateLimiter: rateLimiter,
		cache:       make(map[string]*robotstxt.RobotsData),
		cfg:         cfg,
		log:         log,
	}
}

// GetRobotsData returns the parsed robots.txt for targetURL's origin
// Concurrent callers for the same origin share one fetch. Any failure
// (network, 4xx, 5xx, unreadable body) is cached as nil, meaning allow all.
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	origin := parse.Origin(targetURL)

	rh.cacheMu.Lock()
	data, found := rh.cache[origin]
	rh.cacheMu.Unlock()
	if found {
		return data
	}

	v, _, _ := rh.group.Do(origin, func() (any, error) {
		rh.cacheMu.Lock()
		cached, ok := rh.cache[origin]
		rh.cacheMu.Unlock()
		if ok {
			return cached, nil
		}

		fetched := rh.fetch(ctx, targetURL)
		// A cancelled fetch says nothing about the origin's rules, so it is not cached
		if ctx.Err() == nil {
			rh.cacheMu.Lock()
			rh.cache[origin] = fetched
			rh.cacheMu.Unlock()
		}
		return fetched, nil
	})
	data, _ = v.(*robotstxt.RobotsData)
	return data
}

func (rh *RobotsHandler) fetch(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	robotsURL := &url.URL{Scheme: targetURL.Scheme, Host: targetURL.Host, Path: "/robots.txt"}
	robotsLog := rh.log.WithField("robots_url", robotsURL.String())
	robotsLog.Info("Fetching robots.txt...")

	if err := rh.rateLimiter.ApplyDelay(ctx, targetURL.Host, rh.cfg.DelayPerHost); err != nil {
		return nil
	}

	resp, err := rh.fetcher.Get(ctx, robotsURL.String(), rh.cfg.UserAgent)
	if err != nil {
		if resp != nil {
			drainAndClose(resp)
		}
		robotsLog.Warnf("Fetching robots.txt failed, allowing all: %v", err)
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		robotsLog.Warnf("Reading robots.txt failed, allowing all: %v", err)
		return nil
	}

	data, err := robotstxt.FromBytes(body)
	if err != nil {
		robotsLog.Warnf("Parsing robots.txt failed, allowing all: %v", err)
		return nil
	}
	robotsLog.Info("Successfully fetched and parsed robots.txt")
	return data
}

// TestAgent reports whether userAgent may fetch targetURL
// Returns true when robots.txt is missing or could not be obtained.
func (rh *RobotsHandler) TestAgent(ctx context.Context, targetURL *url.URL, userAgent string) bool {
	data := rh.GetRobotsData(ctx, targetURL)
	if data == nil {
		return true
	}
	return data.TestAgent(targetURL.RequestURI(), userAgent)
}
