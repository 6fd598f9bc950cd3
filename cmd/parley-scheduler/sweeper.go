package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/parley-ai/parley/pkg/memory"
	"github.com/parley-ai/parley/pkg/models"
	"github.com/parley-ai/parley/pkg/pipeline"
	"github.com/parley-ai/parley/pkg/session"
)

// Sweeper walks the open sessions on a cron schedule and issues one
// memory-refresh pipeline run per session. Each run re-reads the session's
// memory snapshots and rewrites them, so a conversation that went quiet still
// carries fresh recognition data when the user comes back.
type Sweeper struct {
	sessions *session.Adapter
	memories *memory.Manager
	refresh  *pipeline.Pipeline
	cronExpr string
	limit    int
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewSweeper(
	sessions *session.Adapter,
	memories *memory.Manager,
	refresh *pipeline.Pipeline,
	cronExpr string,
	limit int,
	logger *slog.Logger,
) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		memories: memories,
		refresh:  refresh,
		cronExpr: cronExpr,
		limit:    limit,
		logger:   logger.With("module", "sweeper", "cron", cronExpr),
	}
}

// Start validates the cron expression and schedules the sweep. Overlapping
// runs are skipped rather than queued; a panicking sweep is recovered.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := cron.ParseStandard(s.cronExpr); err != nil {
		return fmt.Errorf("invalid sweep cron expression %q: %w", s.cronExpr, err)
	}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := s.cron.AddFunc(s.cronExpr, func() {
		s.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.logger.InfoContext(ctx, "Starting session sweeper")
	s.cron.Start()

	return nil
}

// Sweep runs one pass over the open sessions.
func (s *Sweeper) Sweep(ctx context.Context) {
	sessions, err := s.sessions.OpenSessions(ctx, s.limit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list open sessions", "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Sweeping open sessions", "count", len(sessions))

	for _, open := range sessions {
		pc := &models.ProcessingContext{
			BusinessID: open.BusinessID,
			UserID:     open.UserID,
			SessionID:  open.ID,
			Source:     models.SourceScheduledJob,
			Channel:    s.lastChannel(ctx, open),
		}

		s.refresh.Run(ctx, pc)
	}
}

// lastChannel recovers the channel a session's user was last seen on, falling
// back to the first channel that has any snapshot at all. Sessions themselves
// are channel-agnostic; the memory keyspace is not.
func (s *Sweeper) lastChannel(ctx context.Context, open models.Session) string {
	snapshots := s.memories.AllChannels(ctx, open.BusinessID, open.UserID)

	fallback := ""

	for channel, snapshot := range snapshots {
		if fallback == "" {
			fallback = channel
		}

		if last, ok := snapshot["last_session_id"].(string); ok && last == open.ID {
			return channel
		}
	}

	return fallback
}

func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}

	s.logger.Info("Session sweeper stopped")
}
