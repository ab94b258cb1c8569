package ingest

// scheduler.go drives provider ingestion on cron schedules.
//
// Each configured provider gets a cron entry that calls RunProvider. A
// run that is still going when its next slot comes around is skipped
// rather than stacked, so a slow vendor cannot pile up fetches. The
// scheduler logs failures but does not fail the application; the run
// log keeps the outcome either way.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger adapts the cron logging interface to slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// Scheduler triggers provider runs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	svc  *Service
	ctx  context.Context
}

// NewScheduler creates a scheduler over the ingestion service.
func NewScheduler(svc *Service) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{})),
		),
		svc: svc,
		ctx: context.Background(),
	}
}

// Add schedules a provider run. The spec uses standard 5-field cron
// syntax ("30 6 * * *"). The provider must already be registered.
func (s *Scheduler) Add(spec, provider string) error {
	if _, ok := s.svc.providers[provider]; !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}

	_, err := s.cron.AddFunc(spec, func() {
		slog.Info("scheduled provider run starting", "provider", provider)
		if _, err := s.svc.RunProvider(s.ctx, provider); err != nil {
			slog.Error("scheduled provider run failed", "provider", provider, "error", err)
		}
	})
	return err
}

// Start begins dispatching scheduled runs. Jobs derive from ctx, so
// cancelling it aborts in-flight fetches during shutdown. Call before
// any entry fires.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	slog.Info("ingest scheduler started", "entries", len(s.cron.Entries()))
}

// Stop stops dispatching. The returned context is done once running
// jobs have completed.
func (s *Scheduler) Stop() context.Context {
	slog.Info("ingest scheduler stopping")
	return s.cron.Stop()
}
