// Package verify confirms that newly discovered candidates publish fresh threads.
package verify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/forumwatch/internal/config"
	"github.com/JakeFAU/forumwatch/internal/feed"
	"github.com/JakeFAU/forumwatch/internal/metrics"
	"github.com/JakeFAU/forumwatch/internal/platform"
	"github.com/JakeFAU/forumwatch/internal/radar"
)

const discoveredVia = "discovery"

// Result summarizes one verification pass.
type Result struct {
	Checked         int      `json:"checked"`
	Verified        int      `json:"verified"`
	Failed          int      `json:"failed"`
	VerifiedDomains []string `json:"verifiedDomains"`
}

// Stage promotes fresh candidates to sources and closes stale ones.
type Stage struct {
	batchSize  int
	window     time.Duration
	candidates radar.CandidateStore
	sources    radar.SourceStore
	fetcher    radar.Fetcher
	clock      radar.Clock
	logger     *zap.Logger
}

// New builds a verification Stage.
func New(
	cfg config.Config,
	candidates radar.CandidateStore,
	sources radar.SourceStore,
	fetcher radar.Fetcher,
	clock radar.Clock,
	logger *zap.Logger,
) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := cfg.Verification.BatchSize
	if batch <= 0 {
		batch = 100
	}
	window := cfg.Verification.FreshnessWindow
	if window <= 0 {
		window = 720 * time.Hour
	}
	return &Stage{
		batchSize:  batch,
		window:     window,
		candidates: candidates,
		sources:    sources,
		fetcher:    fetcher,
		clock:      clock,
		logger:     logger.Named("verify"),
	}
}

type plan struct {
	candidate radar.DiscoveredCandidate
	platform  radar.Platform
	feeds     []string
}

// Run checks a batch of new candidates with a single fetch round.
func (s *Stage) Run(ctx context.Context) (Result, error) {
	pending, err := s.candidates.ListNewCandidates(ctx, s.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("list new candidates: %w", err)
	}
	out := Result{VerifiedDomains: []string{}}
	if len(pending) == 0 {
		return out, nil
	}

	plans := make([]plan, 0, len(pending))
	var urls []string
	for _, c := range pending {
		p := platformFor(c)
		feeds := platform.Resolve(c.Domain, p)
		plans = append(plans, plan{candidate: c, platform: p, feeds: feeds})
		urls = append(urls, feeds...)
	}
	results := s.fetcher.FetchAll(ctx, urls)
	cutoff := s.clock.Now().UTC().Add(-s.window)

	for _, pl := range plans {
		out.Checked++
		domain := pl.candidate.Domain
		log := s.logger.With(zap.String("domain", domain), zap.String("platform", string(pl.platform)))
		if !hasFreshItem(results, pl.feeds, cutoff) {
			if err := s.candidates.MarkCandidate(ctx, domain, radar.CandidateFailed); err != nil {
				log.Warn("mark failed candidate", zap.Error(err))
				continue
			}
			out.Failed++
			metrics.ObserveCandidate(string(radar.CandidateFailed))
			log.Info("candidate failed verification")
			continue
		}
		if _, err := s.sources.UpsertSource(ctx, radar.Source{
			Host:          domain,
			URL:           "https://" + domain,
			IsActive:      true,
			IsEnabled:     true,
			Platform:      pl.platform,
			DiscoveredVia: discoveredVia,
			Note:          pl.candidate.Reason,
		}); err != nil {
			log.Warn("promote candidate", zap.Error(err))
			continue
		}
		if err := s.candidates.MarkCandidate(ctx, domain, radar.CandidateVerified); err != nil {
			log.Warn("mark verified candidate", zap.Error(err))
			continue
		}
		out.Verified++
		out.VerifiedDomains = append(out.VerifiedDomains, domain)
		metrics.ObserveCandidate(string(radar.CandidateVerified))
		log.Info("candidate promoted to source")
	}

	s.logger.Info("verification complete",
		zap.Int("checked", out.Checked),
		zap.Int("verified", out.Verified),
		zap.Int("failed", out.Failed),
	)
	return out, nil
}

// platformFor prefers markers in the domain and proof URL, then the model's guess.
func platformFor(c radar.DiscoveredCandidate) radar.Platform {
	if p := platform.Detect(c.Domain, c.ProofURL); p != radar.PlatformUnknown {
		return p
	}
	return radar.ParsePlatform(c.PlatformGuess)
}

func hasFreshItem(results map[string]radar.FetchResult, feeds []string, cutoff time.Time) bool {
	for _, u := range feeds {
		res, ok := results[u]
		if !ok || !res.OK() {
			continue
		}
		for _, item := range feed.Parse(u, res.Body, res.ContentType) {
			if !item.PublishedAt.Before(cutoff) {
				return true
			}
		}
	}
	return false
}
