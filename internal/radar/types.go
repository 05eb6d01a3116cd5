// Package radar defines the core types shared across the discovery, verification and scan stages.
package radar

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"
)

// Platform tags the community software family that drives feed-URL selection.
type Platform string

// Known platforms. PlatformUnknown falls back to a generic feed guess list.
const (
	PlatformDiscourse     Platform = "discourse"
	PlatformPHPBB         Platform = "phpbb"
	PlatformVBulletin     Platform = "vbulletin"
	PlatformIPS           Platform = "ips"
	PlatformVanilla       Platform = "vanilla"
	PlatformFlarum        Platform = "flarum"
	PlatformWPForum       Platform = "wp-forum"
	PlatformGitHub        Platform = "github"
	PlatformStackExchange Platform = "stackexchange"
	PlatformUnknown       Platform = "unknown"
)

// ParsePlatform maps a free-form tag onto a known Platform.
func ParsePlatform(raw string) Platform {
	p := Platform(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case PlatformDiscourse, PlatformPHPBB, PlatformVBulletin, PlatformIPS, PlatformVanilla,
		PlatformFlarum, PlatformWPForum, PlatformGitHub, PlatformStackExchange:
		return p
	default:
		return PlatformUnknown
	}
}

// CandidateStatus is the lifecycle state of a discovered domain.
type CandidateStatus string

// Candidate statuses. Verified and failed are terminal.
const (
	CandidateNew      CandidateStatus = "new"
	CandidateVerified CandidateStatus = "verified"
	CandidateFailed   CandidateStatus = "failed"
)

// ScanRunStatus is the lifecycle state of a scan invocation.
type ScanRunStatus string

// ScanRun statuses.
const (
	ScanRunStarted  ScanRunStatus = "started"
	ScanRunFinished ScanRunStatus = "finished"
	ScanRunFailed   ScanRunStatus = "failed"
)

// Configuration errors abort a stage before it writes anything.
var (
	ErrMissingAPIKey = errors.New("completion api key is not configured")
	ErrMissingTopic  = errors.New("discovery topic is not configured")
	ErrNotFound      = errors.New("not found")
)

// Source is an actively monitored community.
type Source struct {
	ID            int64     `json:"id"`
	Host          string    `json:"host"`
	URL           string    `json:"url"`
	IsActive      bool      `json:"is_active"`
	IsEnabled     bool      `json:"is_enabled"`
	IsPaused      bool      `json:"is_paused"`
	Platform      Platform  `json:"platform"`
	DiscoveredVia string    `json:"discovered_via"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DiscoveredCandidate is a domain proposed by discovery and awaiting verification.
type DiscoveredCandidate struct {
	Domain        string          `json:"domain"`
	ProofURL      string          `json:"proof_url"`
	PlatformGuess string          `json:"platform_guess"`
	Reason        string          `json:"reason"`
	ActivityHint  string          `json:"activity_hint"`
	Status        CandidateStatus `json:"status"`
	FirstSeenAt   time.Time       `json:"first_seen_at"`
}

// Link is a persisted, deduplicated mention found on a Source.
type Link struct {
	ID          int64      `json:"id"`
	SourceID    int64      `json:"source_id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	FirstFound  time.Time  `json:"first_found"`
	LastSeen    time.Time  `json:"last_seen"`
	TimesSeen   int        `json:"times_seen"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// LinkStatusNew is the status assigned to freshly inserted links.
const LinkStatusNew = "new"

// ScanRun summarizes one pipeline invocation.
type ScanRun struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Status     ScanRunStatus `json:"status"`
	FoundLinks int           `json:"found_links"`
	NewLinks   int           `json:"new_links"`
	Error      string        `json:"error,omitempty"`
}

// FeedItem is a normalized entry produced by the feed parser. It is never persisted.
type FeedItem struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
}

// FetchResult is what the fetch engine records for one requested URL.
type FetchResult struct {
	URL         string
	Status      int
	Headers     http.Header
	Body        []byte
	ContentType string
}

// OK reports whether the upstream answered with a 2xx status.
func (r FetchResult) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// NormalizeHost lower-cases a host and strips any scheme, userinfo, port, path, leading "www." and
// trailing dot.
func NormalizeHost(raw string) string {
	h := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(h, "://"); i >= 0 {
		h = h[i+3:]
	}
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if i := strings.LastIndex(h, "@"); i >= 0 {
		h = h[i+1:]
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	h = strings.TrimPrefix(h, "www.")
	return strings.TrimSuffix(h, ".")
}

// CompletionJob describes a single structured-output completion request.
type CompletionJob struct {
	Name         string
	SystemPrompt string
	UserPrompt   string
	// SchemaName and Schema constrain the response; ItemsKey is the array field to extract.
	SchemaName string
	Schema     map[string]any
	ItemsKey   string
	MaxTokens  int
	Timeout    time.Duration
}

// CompletionResult is the outcome of a completion job.
type CompletionResult struct {
	Status int
	Count  int
	Items  []json.RawMessage
	Raw    []byte
}

// Digest summarizes a scan for notification channels.
type Digest struct {
	ScanID string
	Found  int
	New    int
	Since  time.Time
	Links  []Link
}
