// Package memory provides an in-memory radar.Store for development and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/forumwatch/internal/radar"
)

// Store implements radar.Store guarded by a single RWMutex.
type Store struct {
	mu         sync.RWMutex
	now        func() time.Time
	nextSource int64
	nextLink   int64
	sources    map[string]radar.Source
	candidates map[string]radar.DiscoveredCandidate
	links      map[string]radar.Link
	linkOrder  []string
	runs       map[string]radar.ScanRun
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		now:        time.Now,
		sources:    make(map[string]radar.Source),
		candidates: make(map[string]radar.DiscoveredCandidate),
		links:      make(map[string]radar.Link),
		runs:       make(map[string]radar.ScanRun),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// ListScanSources returns active, enabled, unpaused sources ordered by host.
func (s *Store) ListScanSources(_ context.Context, limit int) ([]radar.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]radar.Source, 0, len(s.sources))
	for _, src := range s.sources {
		if src.IsActive && src.IsEnabled && !src.IsPaused {
			out = append(out, src)
		}
	}
	slices.SortFunc(out, func(a, b radar.Source) int { return strings.Compare(a.Host, b.Host) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertSource inserts by host or refreshes an existing row. Pause state and identity are kept.
func (s *Store) UpsertSource(_ context.Context, src radar.Source) (radar.Source, error) {
	host := radar.NormalizeHost(src.Host)
	if host == "" {
		return radar.Source{}, fmt.Errorf("upsert source: empty host")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.sources[host]
	if !ok {
		s.nextSource++
		src.ID = s.nextSource
		src.Host = host
		if src.CreatedAt.IsZero() {
			src.CreatedAt = s.now().UTC()
		}
		s.sources[host] = src
		return src, nil
	}
	existing.URL = firstNonEmpty(src.URL, existing.URL)
	existing.IsActive = src.IsActive
	existing.IsEnabled = src.IsEnabled
	if src.Platform != "" {
		existing.Platform = src.Platform
	}
	existing.DiscoveredVia = firstNonEmpty(src.DiscoveredVia, existing.DiscoveredVia)
	existing.Note = firstNonEmpty(src.Note, existing.Note)
	s.sources[host] = existing
	return existing, nil
}

// SetSourcePaused toggles the paused flag.
func (s *Store) SetSourcePaused(_ context.Context, host string, paused bool) error {
	return s.updateSource(host, func(src *radar.Source) { src.IsPaused = paused })
}

// SetSourceEnabled toggles the enabled flag.
func (s *Store) SetSourceEnabled(_ context.Context, host string, enabled bool) error {
	return s.updateSource(host, func(src *radar.Source) { src.IsEnabled = enabled })
}

func (s *Store) updateSource(host string, fn func(*radar.Source)) error {
	host = radar.NormalizeHost(host)
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[host]
	if !ok {
		return fmt.Errorf("source %q: %w", host, radar.ErrNotFound)
	}
	fn(&src)
	s.sources[host] = src
	return nil
}

// ListSourceHosts returns every known host, sorted.
func (s *Store) ListSourceHosts(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hosts := make([]string, 0, len(s.sources))
	for h := range s.sources {
		hosts = append(hosts, h)
	}
	slices.Sort(hosts)
	return hosts, nil
}

// Source returns the stored source for host.
func (s *Store) Source(host string) (radar.Source, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[radar.NormalizeHost(host)]
	return src, ok
}

// UpsertCandidate inserts a new candidate or refreshes reason and activity hint.
func (s *Store) UpsertCandidate(_ context.Context, c radar.DiscoveredCandidate) error {
	domain := radar.NormalizeHost(c.Domain)
	if domain == "" {
		return fmt.Errorf("upsert candidate: empty domain")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.candidates[domain]
	if !ok {
		c.Domain = domain
		if c.Status == "" {
			c.Status = radar.CandidateNew
		}
		if c.FirstSeenAt.IsZero() {
			c.FirstSeenAt = s.now().UTC()
		}
		s.candidates[domain] = c
		return nil
	}
	existing.Reason = c.Reason
	existing.ActivityHint = c.ActivityHint
	s.candidates[domain] = existing
	return nil
}

// ListNewCandidates returns candidates still in the new state, most recent first.
func (s *Store) ListNewCandidates(_ context.Context, limit int) ([]radar.DiscoveredCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]radar.DiscoveredCandidate, 0)
	for _, c := range s.candidates {
		if c.Status == radar.CandidateNew {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b radar.DiscoveredCandidate) int {
		if c := b.FirstSeenAt.Compare(a.FirstSeenAt); c != 0 {
			return c
		}
		return strings.Compare(a.Domain, b.Domain)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkCandidate moves a new candidate to status. Candidates already closed are left untouched.
func (s *Store) MarkCandidate(_ context.Context, domain string, status radar.CandidateStatus) error {
	domain = radar.NormalizeHost(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[domain]
	if !ok {
		return fmt.Errorf("candidate %q: %w", domain, radar.ErrNotFound)
	}
	if c.Status != radar.CandidateNew {
		return nil
	}
	c.Status = status
	s.candidates[domain] = c
	return nil
}

// ListClosedCandidateDomains returns verified and failed candidate domains, sorted.
func (s *Store) ListClosedCandidateDomains(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for d, c := range s.candidates {
		if c.Status != radar.CandidateNew {
			out = append(out, d)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Candidate returns the stored candidate for domain.
func (s *Store) Candidate(domain string) (radar.DiscoveredCandidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[radar.NormalizeHost(domain)]
	return c, ok
}

// UpsertLink inserts by URL or bumps times_seen, refreshing last_seen and title.
func (s *Store) UpsertLink(_ context.Context, link radar.Link) (bool, error) {
	if link.URL == "" {
		return false, fmt.Errorf("upsert link: empty url")
	}
	seenAt := link.LastSeen
	if seenAt.IsZero() {
		seenAt = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.links[link.URL]
	if !ok {
		s.nextLink++
		link.ID = s.nextLink
		link.FirstFound = seenAt
		link.LastSeen = seenAt
		link.TimesSeen = 1
		if link.Status == "" {
			link.Status = radar.LinkStatusNew
		}
		s.links[link.URL] = link
		s.linkOrder = append(s.linkOrder, link.URL)
		return true, nil
	}
	existing.TimesSeen++
	existing.LastSeen = seenAt
	existing.Title = link.Title
	if existing.PublishedAt == nil {
		existing.PublishedAt = link.PublishedAt
	}
	s.links[link.URL] = existing
	return false, nil
}

// RecentLinkURLs returns up to limit URLs, newest insert first.
func (s *Store) RecentLinkURLs(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.linkOrder)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]string, 0, n)
	for i := len(s.linkOrder) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.linkOrder[i])
	}
	return out, nil
}

// Link returns the stored link for a canonical URL.
func (s *Store) Link(url string) (radar.Link, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.links[url]
	return l, ok
}

// LinkCount reports how many links are stored.
func (s *Store) LinkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

// StartScanRun records a run in started status.
func (s *Store) StartScanRun(_ context.Context, run radar.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("scan run %q already exists", run.ID)
	}
	run.Status = radar.ScanRunStarted
	s.runs[run.ID] = run
	return nil
}

// FinishScanRun stores the final state of a run.
func (s *Store) FinishScanRun(_ context.Context, run radar.ScanRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("scan run %q: %w", run.ID, radar.ErrNotFound)
	}
	existing.FinishedAt = run.FinishedAt
	existing.Status = run.Status
	existing.FoundLinks = run.FoundLinks
	existing.NewLinks = run.NewLinks
	existing.Error = run.Error
	s.runs[run.ID] = existing
	return nil
}

// FailStaleScanRuns marks runs still started before the cutoff as failed.
func (s *Store) FailStaleScanRuns(_ context.Context, startedBefore time.Time, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	n := 0
	for id, run := range s.runs {
		if run.Status != radar.ScanRunStarted || !run.StartedAt.Before(startedBefore) {
			continue
		}
		run.Status = radar.ScanRunFailed
		run.Error = reason
		run.FinishedAt = &now
		s.runs[id] = run
		n++
	}
	return n, nil
}

// ScanRun returns the stored run by ID.
func (s *Store) ScanRun(id string) (radar.ScanRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	return r, ok
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
