package radar

import (
	"context"
	"time"
)

// SourceStore persists monitored communities.
type SourceStore interface {
	// ListScanSources returns the scan set: active, enabled, unpaused sources ordered by host.
	// A non-positive limit returns every source; the limit applies after paused rows are removed.
	ListScanSources(ctx context.Context, limit int) ([]Source, error)
	UpsertSource(ctx context.Context, src Source) (Source, error)
	SetSourcePaused(ctx context.Context, host string, paused bool) error
	SetSourceEnabled(ctx context.Context, host string, enabled bool) error
	ListSourceHosts(ctx context.Context) ([]string, error)
}

// CandidateStore persists discovered domains.
type CandidateStore interface {
	// UpsertCandidate inserts a new candidate or refreshes reason/activity_hint of an existing one.
	UpsertCandidate(ctx context.Context, c DiscoveredCandidate) error
	ListNewCandidates(ctx context.Context, limit int) ([]DiscoveredCandidate, error)
	// MarkCandidate moves a candidate out of the new state. Terminal states are never left.
	MarkCandidate(ctx context.Context, domain string, status CandidateStatus) error
	// ListClosedCandidateDomains returns domains of verified or failed candidates.
	ListClosedCandidateDomains(ctx context.Context) ([]string, error)
}

// LinkStore persists mentions.
type LinkStore interface {
	// UpsertLink inserts by canonical URL or bumps times_seen on conflict; inserted reports a first sighting.
	UpsertLink(ctx context.Context, link Link) (inserted bool, err error)
	RecentLinkURLs(ctx context.Context, limit int) ([]string, error)
}

// ScanRunStore persists scan invocations.
type ScanRunStore interface {
	StartScanRun(ctx context.Context, run ScanRun) error
	FinishScanRun(ctx context.Context, run ScanRun) error
	FailStaleScanRuns(ctx context.Context, startedBefore time.Time, reason string) (int, error)
}

// Store is the single shared mutable resource of the pipeline.
type Store interface {
	SourceStore
	CandidateStore
	LinkStore
	ScanRunStore
}

// Fetcher retrieves many URLs with bounded parallelism. Failed URLs are absent from the result.
type Fetcher interface {
	FetchAll(ctx context.Context, urls []string) map[string]FetchResult
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces scan run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Completer runs one schema-constrained completion job. It never fails: problems surface as a
// non-200 status with zero items.
type Completer interface {
	RunJob(ctx context.Context, job CompletionJob) CompletionResult
}

// Notifier delivers a digest of newly found links. Delivery failures are the notifier's concern.
type Notifier interface {
	Notify(ctx context.Context, digest Digest)
}
