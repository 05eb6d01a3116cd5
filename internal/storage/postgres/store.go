// Package postgres provides the Postgres-backed radar.Store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/forumwatch/internal/radar"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements radar.Store on Postgres. Every write is an upsert keyed by a unique constraint.
type Store struct {
	pool pool
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

const sourceColumns = `id, host, url, is_active, is_enabled, is_paused, platform, discovered_via, note, created_at`

func scanSource(row pgx.Row) (radar.Source, error) {
	var (
		src      radar.Source
		platform string
	)
	err := row.Scan(
		&src.ID,
		&src.Host,
		&src.URL,
		&src.IsActive,
		&src.IsEnabled,
		&src.IsPaused,
		&platform,
		&src.DiscoveredVia,
		&src.Note,
		&src.CreatedAt,
	)
	src.Platform = radar.Platform(platform)
	return src, err
}

// ListScanSources returns active, enabled, unpaused sources ordered by host.
// A non-positive limit returns every row.
func (s *Store) ListScanSources(ctx context.Context, limit int) ([]radar.Source, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sourceColumns+`
		FROM sources
		WHERE is_active AND is_enabled AND NOT is_paused
		ORDER BY host
		LIMIT NULLIF($1::int, 0)`, limit)
	if err != nil {
		return nil, fmt.Errorf("list scan sources: %w", err)
	}
	defer rows.Close()

	var out []radar.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

// UpsertSource inserts by host or refreshes an existing row, leaving its pause state alone.
func (s *Store) UpsertSource(ctx context.Context, src radar.Source) (radar.Source, error) {
	host := radar.NormalizeHost(src.Host)
	if host == "" {
		return radar.Source{}, fmt.Errorf("upsert source: empty host")
	}
	platform := src.Platform
	if platform == "" {
		platform = radar.PlatformUnknown
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sources (host, url, is_active, is_enabled, platform, discovered_via, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (host) DO UPDATE SET
			url = COALESCE(NULLIF(EXCLUDED.url, ''), sources.url),
			is_active = EXCLUDED.is_active,
			is_enabled = EXCLUDED.is_enabled,
			platform = EXCLUDED.platform,
			discovered_via = COALESCE(NULLIF(EXCLUDED.discovered_via, ''), sources.discovered_via),
			note = COALESCE(NULLIF(EXCLUDED.note, ''), sources.note)
		RETURNING `+sourceColumns,
		host, src.URL, src.IsActive, src.IsEnabled, string(platform), src.DiscoveredVia, src.Note)
	out, err := scanSource(row)
	if err != nil {
		return radar.Source{}, fmt.Errorf("upsert source: %w", err)
	}
	return out, nil
}

// SetSourcePaused toggles the paused flag.
func (s *Store) SetSourcePaused(ctx context.Context, host string, paused bool) error {
	return s.updateSourceFlag(ctx, `UPDATE sources SET is_paused = $2 WHERE host = $1`, host, paused)
}

// SetSourceEnabled toggles the enabled flag.
func (s *Store) SetSourceEnabled(ctx context.Context, host string, enabled bool) error {
	return s.updateSourceFlag(ctx, `UPDATE sources SET is_enabled = $2 WHERE host = $1`, host, enabled)
}

func (s *Store) updateSourceFlag(ctx context.Context, query, host string, value bool) error {
	host = radar.NormalizeHost(host)
	tag, err := s.pool.Exec(ctx, query, host, value)
	if err != nil {
		return fmt.Errorf("update source %q: %w", host, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("source %q: %w", host, radar.ErrNotFound)
	}
	return nil
}

// ListSourceHosts returns every known host.
func (s *Store) ListSourceHosts(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx, `SELECT host FROM sources ORDER BY host`)
}

// UpsertCandidate inserts with status new or refreshes reason and activity_hint.
func (s *Store) UpsertCandidate(ctx context.Context, c radar.DiscoveredCandidate) error {
	domain := radar.NormalizeHost(c.Domain)
	if domain == "" {
		return fmt.Errorf("upsert candidate: empty domain")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO discovered_candidates (domain, proof_url, platform_guess, reason, activity_hint, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (domain) DO UPDATE SET
			reason = EXCLUDED.reason,
			activity_hint = EXCLUDED.activity_hint`,
		domain, c.ProofURL, c.PlatformGuess, c.Reason, c.ActivityHint, string(radar.CandidateNew))
	if err != nil {
		return fmt.Errorf("upsert candidate %q: %w", domain, err)
	}
	return nil
}

// ListNewCandidates returns candidates still in the new state, most recent first.
func (s *Store) ListNewCandidates(ctx context.Context, limit int) ([]radar.DiscoveredCandidate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT domain, proof_url, platform_guess, reason, activity_hint, status, first_seen_at
		FROM discovered_candidates
		WHERE status = $1
		ORDER BY first_seen_at DESC, domain
		LIMIT NULLIF($2::int, 0)`, string(radar.CandidateNew), limit)
	if err != nil {
		return nil, fmt.Errorf("list new candidates: %w", err)
	}
	defer rows.Close()

	var out []radar.DiscoveredCandidate
	for rows.Next() {
		var (
			c      radar.DiscoveredCandidate
			status string
		)
		if err := rows.Scan(&c.Domain, &c.ProofURL, &c.PlatformGuess, &c.Reason, &c.ActivityHint, &status, &c.FirstSeenAt); err != nil {
			return nil, fmt.Errorf("scan candidate row: %w", err)
		}
		c.Status = radar.CandidateStatus(status)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}
	return out, nil
}

// MarkCandidate closes a new candidate. Closed candidates are left untouched.
func (s *Store) MarkCandidate(ctx context.Context, domain string, status radar.CandidateStatus) error {
	domain = radar.NormalizeHost(domain)
	var exists bool
	err := s.pool.QueryRow(ctx, `
		WITH updated AS (
			UPDATE discovered_candidates SET status = $2
			WHERE domain = $1 AND status = $3
			RETURNING domain
		)
		SELECT EXISTS (SELECT 1 FROM discovered_candidates WHERE domain = $1)`,
		domain, string(status), string(radar.CandidateNew)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("mark candidate %q: %w", domain, err)
	}
	if !exists {
		return fmt.Errorf("candidate %q: %w", domain, radar.ErrNotFound)
	}
	return nil
}

// ListClosedCandidateDomains returns domains of verified or failed candidates.
func (s *Store) ListClosedCandidateDomains(ctx context.Context) ([]string, error) {
	return s.listStrings(ctx,
		`SELECT domain FROM discovered_candidates WHERE status <> $1 ORDER BY domain`,
		string(radar.CandidateNew))
}

// UpsertLink inserts by URL or bumps times_seen. inserted is true only for a first sighting.
func (s *Store) UpsertLink(ctx context.Context, link radar.Link) (bool, error) {
	if link.URL == "" {
		return false, fmt.Errorf("upsert link: empty url")
	}
	seenAt := link.LastSeen
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}
	status := link.Status
	if status == "" {
		status = radar.LinkStatusNew
	}
	var sourceID *int64
	if link.SourceID > 0 {
		sourceID = &link.SourceID
	}
	var inserted bool
	err := s.pool.QueryRow(ctx, `
		INSERT INTO links (source_id, url, title, first_found, last_seen, times_seen, status, published_at)
		VALUES ($1, $2, $3, $4, $4, 1, $5, $6)
		ON CONFLICT (url) DO UPDATE SET
			times_seen = links.times_seen + 1,
			last_seen = EXCLUDED.last_seen,
			title = EXCLUDED.title,
			published_at = COALESCE(links.published_at, EXCLUDED.published_at)
		RETURNING (xmax = 0)`,
		sourceID, link.URL, link.Title, seenAt, status, link.PublishedAt).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("upsert link: %w", err)
	}
	return inserted, nil
}

// RecentLinkURLs returns up to limit URLs, newest insert first.
func (s *Store) RecentLinkURLs(ctx context.Context, limit int) ([]string, error) {
	return s.listStrings(ctx, `SELECT url FROM links ORDER BY id DESC LIMIT NULLIF($1::int, 0)`, limit)
}

// StartScanRun records a run in started status.
func (s *Store) StartScanRun(ctx context.Context, run radar.ScanRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO scan_runs (id, started_at, status) VALUES ($1, $2, $3)`,
		run.ID, run.StartedAt, string(radar.ScanRunStarted))
	if err != nil {
		return fmt.Errorf("start scan run: %w", err)
	}
	return nil
}

// FinishScanRun stores the final state of a run.
func (s *Store) FinishScanRun(ctx context.Context, run radar.ScanRun) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scan_runs
		SET finished_at = $2, status = $3, found_links = $4, new_links = $5, error = $6
		WHERE id = $1`,
		run.ID, run.FinishedAt, string(run.Status), run.FoundLinks, run.NewLinks, run.Error)
	if err != nil {
		return fmt.Errorf("finish scan run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scan run %q: %w", run.ID, radar.ErrNotFound)
	}
	return nil
}

// FailStaleScanRuns marks runs still started before the cutoff as failed.
func (s *Store) FailStaleScanRuns(ctx context.Context, startedBefore time.Time, reason string) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scan_runs
		SET status = $1, error = $2, finished_at = now()
		WHERE status = $3 AND started_at < $4`,
		string(radar.ScanRunFailed), reason, string(radar.ScanRunStarted), startedBefore)
	if err != nil {
		return 0, fmt.Errorf("fail stale scan runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) listStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

var _ radar.Store = (*Store)(nil)
