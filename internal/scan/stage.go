// Package scan polls every monitored source and persists fresh, deduplicated mentions.
package scan

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/forumwatch/internal/config"
	"github.com/JakeFAU/forumwatch/internal/dedup"
	"github.com/JakeFAU/forumwatch/internal/feed"
	"github.com/JakeFAU/forumwatch/internal/metrics"
	"github.com/JakeFAU/forumwatch/internal/platform"
	"github.com/JakeFAU/forumwatch/internal/radar"
)

// Result aggregates one scan pass.
type Result struct {
	Found          int          `json:"found"`
	New            int          `json:"new"`
	ScannedDomains int          `json:"scannedDomains"`
	Since          time.Time    `json:"since"`
	NewLinks       []radar.Link `json:"-"`
}

// Stage runs scans.
type Stage struct {
	window      time.Duration
	maxNew      int
	hostLimit   int
	dedupWindow int
	sources     radar.SourceStore
	links       radar.LinkStore
	fetcher     radar.Fetcher
	clock       radar.Clock
	logger      *zap.Logger
}

// New builds a scan Stage. A non-positive scan.max_new disables the cap.
func New(
	cfg config.Config,
	sources radar.SourceStore,
	links radar.LinkStore,
	fetcher radar.Fetcher,
	clock radar.Clock,
	logger *zap.Logger,
) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	window := cfg.ScanWindow()
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	return &Stage{
		window:      window,
		maxNew:      cfg.Scan.MaxNew,
		hostLimit:   cfg.Scan.HostLimit,
		dedupWindow: cfg.Scan.DedupWindow,
		sources:     sources,
		links:       links,
		fetcher:     fetcher,
		clock:       clock,
		logger:      logger.Named("scan"),
	}
}

// hostFeeds is one monitored host with its feeds in resolver order.
type hostFeeds struct {
	source radar.Source
	feeds  []string
}

// candidate is one (host, feed URL, item) triple in scan order.
type candidate struct {
	host    string
	feedURL string
	item    radar.FeedItem
}

// Run performs one scan pass.
func (s *Stage) Run(ctx context.Context) (Result, error) {
	now := s.clock.Now().UTC()
	out := Result{Since: now.Add(-s.window), NewLinks: []radar.Link{}}

	sources, err := s.sources.ListScanSources(ctx, s.hostLimit)
	if err != nil {
		return out, fmt.Errorf("list scan sources: %w", err)
	}
	recent, err := s.links.RecentLinkURLs(ctx, s.dedupWindow)
	if err != nil {
		return out, fmt.Errorf("load recent links: %w", err)
	}
	seen := dedup.NewSeenSet(recent)

	// Items from hosts outside the scan set, paused ones included, miss this map and are dropped.
	enabled := make(map[string]int64, len(sources))
	hosts := make([]hostFeeds, 0, len(sources))
	var urls []string
	for _, src := range sources {
		if src.IsPaused {
			continue
		}
		enabled[src.Host] = src.ID
		_, feeds := platform.ResolveSource(src)
		hosts = append(hosts, hostFeeds{source: src, feeds: feeds})
		urls = append(urls, feeds...)
	}
	out.ScannedDomains = len(hosts)
	if len(hosts) == 0 {
		s.logger.Info("no sources to scan")
		return out, nil
	}

	start := time.Now()
	results := s.fetcher.FetchAll(ctx, urls)
	s.logger.Debug("feeds fetched",
		zap.Int("hosts", len(hosts)),
		zap.Int("urls", len(urls)),
		zap.Int("responses", len(results)),
		zap.Duration("elapsed", time.Since(start)),
	)

	for c := range candidates(hosts, results) {
		canonical, err := dedup.Canonicalize(c.item.URL)
		if err != nil {
			continue
		}
		title := strings.TrimSpace(c.item.Title)
		if title == "" || c.item.PublishedAt.IsZero() {
			continue
		}
		published := c.item.PublishedAt.UTC()
		if published.Before(out.Since) {
			continue
		}
		domain := dedup.Domain(canonical)
		sourceID, ok := enabled[domain]
		if !ok {
			continue
		}
		if !seen.Admit(canonical) {
			continue
		}
		link := radar.Link{
			SourceID:    sourceID,
			URL:         canonical,
			Title:       title,
			LastSeen:    now,
			Status:      radar.LinkStatusNew,
			PublishedAt: &published,
		}
		inserted, err := s.links.UpsertLink(ctx, link)
		if err != nil {
			s.logger.Warn("link upsert failed", zap.String("url", canonical), zap.Error(err))
			continue
		}
		out.Found++
		if !inserted {
			continue
		}
		out.New++
		link.FirstFound = now
		link.TimesSeen = 1
		out.NewLinks = append(out.NewLinks, link)
		if s.maxNew > 0 && out.New >= s.maxNew {
			s.logger.Info("new link cap reached", zap.Int("cap", s.maxNew), zap.String("host", c.host))
			break
		}
	}

	metrics.ObserveScan(out.Found, out.New)
	s.logger.Info("scan complete",
		zap.Int("found", out.Found),
		zap.Int("new", out.New),
		zap.Int("hosts", out.ScannedDomains),
		zap.Time("since", out.Since),
	)
	return out, nil
}

// candidates flattens hosts, their feeds and each feed's items into one ordered sequence.
// Feeds are parsed lazily, so stopping early skips the remaining work.
func candidates(hosts []hostFeeds, results map[string]radar.FetchResult) iter.Seq[candidate] {
	return func(yield func(candidate) bool) {
		for _, h := range hosts {
			for _, u := range h.feeds {
				res, ok := results[u]
				if !ok || !res.OK() {
					continue
				}
				format := feed.Sniff(u, res.Body, res.ContentType)
				items := feed.Parse(u, res.Body, res.ContentType)
				metrics.ObserveFeedItems(string(format), len(items))
				for _, item := range items {
					if !yield(candidate{host: h.source.Host, feedURL: u, item: item}) {
						return
					}
				}
			}
		}
	}
}
