// Package discovery proposes new candidate communities through the completion API.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/forumwatch/internal/config"
	"github.com/JakeFAU/forumwatch/internal/metrics"
	"github.com/JakeFAU/forumwatch/internal/radar"
)

const jobName = "domain_discovery"

// Result summarizes one discovery pass.
type Result struct {
	Status     int `json:"status"`
	Returned   int `json:"returned"`
	Discovered int `json:"discovered"`
	Skipped    int `json:"skipped"`
	MaxTokens  int `json:"maxTokens"`
}

// Stage runs domain discovery.
type Stage struct {
	cfg        config.DiscoveryConfig
	apiKey     string
	timeout    time.Duration
	completer  radar.Completer
	sources    radar.SourceStore
	candidates radar.CandidateStore
	clock      radar.Clock
	logger     *zap.Logger
}

// New builds a discovery Stage.
func New(
	cfg config.Config,
	completer radar.Completer,
	sources radar.SourceStore,
	candidates radar.CandidateStore,
	clock radar.Clock,
	logger *zap.Logger,
) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{
		cfg:        cfg.Discovery,
		apiKey:     cfg.Completion.APIKey,
		timeout:    cfg.Completion.Timeout,
		completer:  completer,
		sources:    sources,
		candidates: candidates,
		clock:      clock,
		logger:     logger.Named("discovery"),
	}
}

// Run asks for new communities and upserts every acceptable one as a new candidate.
// A missing API key or topic aborts before any request or write.
func (s *Stage) Run(ctx context.Context) (Result, error) {
	if strings.TrimSpace(s.apiKey) == "" {
		return Result{}, radar.ErrMissingAPIKey
	}
	topic := strings.TrimSpace(s.cfg.Topic)
	if topic == "" {
		return Result{}, radar.ErrMissingTopic
	}

	excluded, err := s.excludedSet(ctx)
	if err != nil {
		return Result{}, err
	}
	count := s.cfg.Count
	if count <= 0 {
		count = 20
	}
	budget := TokenBudget(count, s.cfg.AvgItemTokens, s.cfg.OverheadTokens, s.cfg.GlobalCap)

	res := s.completer.RunJob(ctx, radar.CompletionJob{
		Name:         jobName,
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt(topic, s.cfg.Language, s.cfg.Region, count, sortedKeys(excluded)),
		SchemaName:   "community_candidates",
		Schema:       candidateSchema(),
		ItemsKey:     "items",
		MaxTokens:    budget,
		Timeout:      s.timeout,
	})
	out := Result{Status: res.Status, Returned: res.Count, MaxTokens: budget}

	for _, raw := range res.Items {
		candidate, ok := decodeCandidate(raw)
		if !ok || isExcluded(excluded, candidate.Domain) {
			out.Skipped++
			continue
		}
		candidate.Status = radar.CandidateNew
		candidate.FirstSeenAt = s.clock.Now().UTC()
		if err := s.candidates.UpsertCandidate(ctx, candidate); err != nil {
			s.logger.Warn("candidate upsert failed", zap.String("domain", candidate.Domain), zap.Error(err))
			out.Skipped++
			continue
		}
		out.Discovered++
		metrics.ObserveCandidate("discovered")
	}

	s.logger.Info("discovery complete",
		zap.Int("status", out.Status),
		zap.Int("returned", out.Returned),
		zap.Int("discovered", out.Discovered),
		zap.Int("skipped", out.Skipped),
		zap.Int("max_tokens", budget),
	)
	return out, nil
}

// excludedSet merges configured exclusions, monitored hosts and closed candidates.
func (s *Stage) excludedSet(ctx context.Context) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	add := func(domains []string) {
		for _, d := range domains {
			if h := radar.NormalizeHost(d); h != "" {
				set[h] = struct{}{}
			}
		}
	}
	add(s.cfg.ExcludedDomains)
	hosts, err := s.sources.ListSourceHosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source hosts: %w", err)
	}
	add(hosts)
	closed, err := s.candidates.ListClosedCandidateDomains(ctx)
	if err != nil {
		return nil, fmt.Errorf("list closed candidates: %w", err)
	}
	add(closed)
	return set, nil
}

func decodeCandidate(raw json.RawMessage) (radar.DiscoveredCandidate, bool) {
	var c radar.DiscoveredCandidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return radar.DiscoveredCandidate{}, false
	}
	c.Domain = radar.NormalizeHost(c.Domain)
	c.ProofURL = strings.TrimSpace(c.ProofURL)
	c.PlatformGuess = strings.ToLower(strings.TrimSpace(c.PlatformGuess))
	if c.Domain == "" || c.ProofURL == "" {
		return radar.DiscoveredCandidate{}, false
	}
	return c, true
}

// isExcluded matches the domain itself or any excluded parent domain.
func isExcluded(excluded map[string]struct{}, domain string) bool {
	for d := domain; d != ""; {
		if _, ok := excluded[d]; ok {
			return true
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			return false
		}
		d = d[i+1:]
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
