// Package fetch implements the concurrent feed fetch engine on top of an async colly collector.
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/forumwatch/internal/metrics"
	"github.com/JakeFAU/forumwatch/internal/radar"
)

const originKey = "origin"

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	MaxConcurrency int
	MaxRedirects   int
	MaxBodyBytes   int
	// Stage labels batch duration metrics.
	Stage string
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "forumwatch/1.0"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 10
	}
	if c.MaxRedirects < 0 {
		c.MaxRedirects = 0
	}
	if c.Stage == "" {
		c.Stage = "fetch"
	}
	return c
}

// Engine implements radar.Fetcher. Each FetchAll call keeps at most MaxConcurrency requests
// in flight and admits the next queued URL as soon as one completes.
type Engine struct {
	cfg       Config
	transport http.RoundTripper
	logger    *zap.Logger
}

// New builds an Engine.
func New(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:       cfg,
		transport: newHTTPTransport(cfg),
		logger:    logger.Named("fetch"),
	}
}

// WithStage returns a copy of the engine that labels its metrics with stage.
func (e *Engine) WithStage(stage string) *Engine {
	cp := *e
	cp.cfg.Stage = stage
	return &cp
}

// FetchAll GETs every distinct non-empty URL. URLs whose request failed are absent from the result.
func (e *Engine) FetchAll(ctx context.Context, urls []string) map[string]radar.FetchResult {
	queue := Dedupe(urls)
	results := make(map[string]radar.FetchResult, len(queue))
	if len(queue) == 0 {
		return results
	}
	start := time.Now()
	defer func() { metrics.ObserveFetchBatch(e.cfg.Stage, time.Since(start)) }()

	collector, err := e.buildCollector(ctx)
	if err != nil {
		e.logger.Error("collector setup failed", zap.Error(err))
		return results
	}

	var mu sync.Mutex
	collector.OnResponse(func(r *colly.Response) {
		origin := r.Ctx.Get(originKey)
		res := radar.FetchResult{
			URL:    origin,
			Status: r.StatusCode,
			Body:   append([]byte(nil), r.Body...),
		}
		if r.Headers != nil {
			res.Headers = r.Headers.Clone()
			res.ContentType = r.Headers.Get("Content-Type")
		}
		mu.Lock()
		results[origin] = res
		mu.Unlock()
	})
	collector.OnError(func(r *colly.Response, err error) {
		origin := ""
		if r != nil && r.Ctx != nil {
			origin = r.Ctx.Get(originKey)
		}
		e.logger.Debug("fetch failed", zap.String("url", origin), zap.Error(err))
	})

	for _, u := range queue {
		reqCtx := colly.NewContext()
		reqCtx.Put(originKey, u)
		if err := collector.Request(http.MethodGet, u, nil, reqCtx, nil); err != nil {
			e.logger.Debug("request rejected", zap.String("url", u), zap.Error(err))
		}
	}
	collector.Wait()

	for _, u := range queue {
		metrics.ObserveFetch(u, results[u].Status)
	}
	e.logger.Debug("fetch batch complete",
		zap.Int("requested", len(queue)),
		zap.Int("responded", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return results
}

func (e *Engine) buildCollector(ctx context.Context) (*colly.Collector, error) {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.Async(true),
		colly.UserAgent(e.cfg.UserAgent),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
		colly.AllowURLRevisit(),
	)
	c.MaxBodySize = e.cfg.MaxBodyBytes
	c.WithTransport(e.transport)
	c.SetRequestTimeout(e.cfg.RequestTimeout)
	maxRedirects := e.cfg.MaxRedirects
	c.SetRedirectHandler(func(_ *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	})
	if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: e.cfg.MaxConcurrency}); err != nil {
		return nil, fmt.Errorf("limit rule: %w", err)
	}
	return c, nil
}

// Dedupe drops empty and repeated URLs, preserving first-seen order.
func Dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func newHTTPTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConcurrency,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}
