// Package pipeline runs discovery, verification and scan as one guarded invocation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/forumwatch/internal/config"
	"github.com/JakeFAU/forumwatch/internal/discovery"
	"github.com/JakeFAU/forumwatch/internal/lock"
	"github.com/JakeFAU/forumwatch/internal/metrics"
	"github.com/JakeFAU/forumwatch/internal/radar"
	"github.com/JakeFAU/forumwatch/internal/scan"
	"github.com/JakeFAU/forumwatch/internal/verify"
)

const abandonedReason = "abandoned"

// Summary is the JSON result of one invocation.
type Summary struct {
	OK              bool      `json:"ok"`
	ScanID          string    `json:"scanId,omitempty"`
	Found           int       `json:"found"`
	New             int       `json:"new"`
	Discovered      int       `json:"discovered"`
	VerifiedDomains []string  `json:"verifiedDomains"`
	ScannedDomains  int       `json:"scannedDomains"`
	Since           time.Time `json:"since"`
	Error           string    `json:"error,omitempty"`
}

// Deps are the collaborators shared by every stage.
type Deps struct {
	Store     radar.Store
	Fetcher   radar.Fetcher
	Completer radar.Completer
	Notifier  radar.Notifier
	Guard     lock.Guard
	Clock     radar.Clock
	IDs       radar.IDGenerator
}

// Pipeline owns the stages and the period guard.
type Pipeline struct {
	discovery  *discovery.Stage
	verify     *verify.Stage
	scan       *scan.Stage
	store      radar.Store
	notifier   radar.Notifier
	guard      lock.Guard
	clock      radar.Clock
	ids        radar.IDGenerator
	staleAfter time.Duration
	logger     *zap.Logger
}

// New builds a Pipeline. A nil Notifier disables digests and a nil Guard uses an in-process lock.
func New(cfg config.Config, deps Deps, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Guard == nil {
		deps.Guard = lock.NewLocal()
	}
	staleAfter := cfg.Scan.StaleRunAfter
	if staleAfter <= 0 {
		staleAfter = 6 * time.Hour
	}
	return &Pipeline{
		discovery:  discovery.New(cfg, deps.Completer, deps.Store, deps.Store, deps.Clock, logger),
		verify:     verify.New(cfg, deps.Store, deps.Store, deps.Fetcher, deps.Clock, logger),
		scan:       scan.New(cfg, deps.Store, deps.Store, deps.Fetcher, deps.Clock, logger),
		store:      deps.Store,
		notifier:   deps.Notifier,
		guard:      deps.Guard,
		clock:      deps.Clock,
		ids:        deps.IDs,
		staleAfter: staleAfter,
		logger:     logger.Named("pipeline"),
	}
}

// Run performs discovery, verification and scan. Stage configuration errors in discovery or
// verification count as zero results; only a scan failure marks the run failed.
func (p *Pipeline) Run(ctx context.Context) Summary {
	return p.invoke(ctx, true)
}

// Scan performs only the scan stage, still recorded as a ScanRun.
func (p *Pipeline) Scan(ctx context.Context) Summary {
	return p.invoke(ctx, false)
}

// Discover runs the discovery stage alone under the guard.
func (p *Pipeline) Discover(ctx context.Context) (discovery.Result, error) {
	release, err := p.guard.TryAcquire(ctx)
	if err != nil {
		return discovery.Result{}, err
	}
	defer p.release(ctx, release)
	return p.discovery.Run(ctx)
}

// Verify runs the verification stage alone under the guard.
func (p *Pipeline) Verify(ctx context.Context) (verify.Result, error) {
	release, err := p.guard.TryAcquire(ctx)
	if err != nil {
		return verify.Result{}, err
	}
	defer p.release(ctx, release)
	return p.verify.Run(ctx)
}

func (p *Pipeline) invoke(ctx context.Context, full bool) Summary {
	release, err := p.guard.TryAcquire(ctx)
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			metrics.ObservePipelineRun("busy")
			p.logger.Info("invocation skipped, another run holds the guard")
			return Summary{VerifiedDomains: []string{}, Error: "busy"}
		}
		metrics.ObservePipelineRun("error")
		return Summary{VerifiedDomains: []string{}, Error: err.Error()}
	}
	defer p.release(ctx, release)

	p.reconcile(ctx)

	id, err := p.ids.NewID()
	if err != nil {
		metrics.ObservePipelineRun("error")
		return Summary{VerifiedDomains: []string{}, Error: err.Error()}
	}
	run := radar.ScanRun{ID: id, StartedAt: p.clock.Now().UTC(), Status: radar.ScanRunStarted}
	if err := p.store.StartScanRun(ctx, run); err != nil {
		metrics.ObservePipelineRun("error")
		return Summary{VerifiedDomains: []string{}, Error: fmt.Sprintf("start scan run: %v", err)}
	}
	logger := p.logger.With(zap.String("scan_id", id))
	logger.Info("invocation started", zap.Bool("full", full))

	summary := Summary{ScanID: id, VerifiedDomains: []string{}}
	if full {
		p.runDiscovery(ctx, logger, &summary)
		p.runVerify(ctx, logger, &summary)
	}

	res, scanErr := p.scan.Run(ctx)
	summary.Found = res.Found
	summary.New = res.New
	summary.ScannedDomains = res.ScannedDomains
	summary.Since = res.Since

	finished := p.clock.Now().UTC()
	run.FinishedAt = &finished
	run.FoundLinks = res.Found
	run.NewLinks = res.New
	run.Status = radar.ScanRunFinished
	if scanErr != nil {
		run.Status = radar.ScanRunFailed
		run.Error = scanErr.Error()
		summary.Error = scanErr.Error()
	}
	// The run row must be closed even when the caller's context is gone.
	if err := p.store.FinishScanRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("finish scan run failed", zap.Error(err))
	}

	if scanErr != nil {
		metrics.ObservePipelineRun(string(radar.ScanRunFailed))
		logger.Error("scan failed", zap.Error(scanErr))
		return summary
	}

	summary.OK = true
	metrics.ObservePipelineRun(string(radar.ScanRunFinished))
	logger.Info("invocation finished",
		zap.Int("found", summary.Found),
		zap.Int("new", summary.New),
		zap.Int("discovered", summary.Discovered),
		zap.Int("verified", len(summary.VerifiedDomains)),
		zap.Int("scanned_domains", summary.ScannedDomains),
	)
	if p.notifier != nil {
		p.notifier.Notify(ctx, radar.Digest{
			ScanID: id,
			Found:  res.Found,
			New:    res.New,
			Since:  res.Since,
			Links:  res.NewLinks,
		})
	}
	return summary
}

func (p *Pipeline) runDiscovery(ctx context.Context, logger *zap.Logger, summary *Summary) {
	res, err := p.discovery.Run(ctx)
	if err != nil {
		logger.Warn("discovery skipped", zap.Error(err))
		return
	}
	summary.Discovered = res.Discovered
}

func (p *Pipeline) runVerify(ctx context.Context, logger *zap.Logger, summary *Summary) {
	res, err := p.verify.Run(ctx)
	if err != nil {
		logger.Warn("verification skipped", zap.Error(err))
		return
	}
	if res.VerifiedDomains != nil {
		summary.VerifiedDomains = res.VerifiedDomains
	}
}

// reconcile fails runs left in started status by a crashed invocation.
func (p *Pipeline) reconcile(ctx context.Context) {
	cutoff := p.clock.Now().UTC().Add(-p.staleAfter)
	n, err := p.store.FailStaleScanRuns(ctx, cutoff, abandonedReason)
	if err != nil {
		p.logger.Warn("stale scan run reconciliation failed", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Warn("marked abandoned scan runs failed", zap.Int("count", n), zap.Time("cutoff", cutoff))
	}
}

func (p *Pipeline) release(ctx context.Context, release lock.Release) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		p.logger.Warn("release guard failed", zap.Error(err))
	}
}
