// Package scheduler runs the pipeline on a cron schedule in serve mode.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is invoked on every tick.
type Job func(ctx context.Context)

// Scheduler wraps a cron instance with a single registered job.
type Scheduler struct {
	cron    *cron.Cron
	entry   cron.EntryID
	spec    string
	baseCtx context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New registers job under a standard five-field cron expression. Overlapping ticks are skipped.
func New(spec string, job Job, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	baseCtx, cancel := context.WithCancel(context.Background())
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	s := &Scheduler{cron: c, spec: spec, baseCtx: baseCtx, cancel: cancel, logger: logger}
	id, err := c.AddFunc(spec, func() {
		s.logger.Info("scheduled run triggered", zap.String("schedule", spec))
		job(s.baseCtx)
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Start begins ticking in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("schedule", s.spec), zap.Time("next_run", s.Next()))
}

// Next returns the next planned run, or the computed next tick if not started.
func (s *Scheduler) Next() time.Time {
	if next := s.cron.Entry(s.entry).Next; !next.IsZero() {
		return next
	}
	sched, err := parser.Parse(s.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(time.Now())
}

// Stop halts new ticks, cancels the running job's context and waits for it or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for scheduled run: %w", ctx.Err())
	}
}
