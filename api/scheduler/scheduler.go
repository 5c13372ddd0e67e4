package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job specs
const (
	IdleSweepSpec     = "@every 1m"
	SessionPurgeSpec  = "@hourly"
	MetricsPruneSpec  = "@every 5m"
	sessionPurgeLimit = 2 * time.Minute
)

// WorkspaceSweeper drops workspaces idle for longer than ttl
type WorkspaceSweeper interface {
	SweepIdle(now time.Time, ttl time.Duration) int
}

// SessionPurger deletes sessions that can no longer authenticate
type SessionPurger interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// MetricsPruner drops traces outside the metrics window
type MetricsPruner interface {
	Prune(now time.Time) int
}

// Scheduler handles periodic housekeeping for workspaces, sessions and metrics
type Scheduler struct {
	cron       *cron.Cron
	Workspaces WorkspaceSweeper
	Sessions   SessionPurger
	Metrics    MetricsPruner
	IdleTTL    time.Duration
	now        func() time.Time
}

// NewScheduler creates a new scheduler instance. Nil collaborators skip their job.
func NewScheduler(workspaces WorkspaceSweeper, sessions SessionPurger, metrics MetricsPruner, idleTTL time.Duration) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		Workspaces: workspaces,
		Sessions:   sessions,
		Metrics:    metrics,
		IdleTTL:    idleTTL,
		now:        time.Now,
	}
}

// Start begins the scheduler with all registered jobs
func (s *Scheduler) Start() {
	if s.Workspaces != nil {
		if _, err := s.cron.AddFunc(IdleSweepSpec, s.sweepWorkspaces); err != nil {
			zap.S().Errorw("failed to register workspace sweep job", "error", err)
		}
	}
	if s.Sessions != nil {
		if _, err := s.cron.AddFunc(SessionPurgeSpec, s.purgeSessions); err != nil {
			zap.S().Errorw("failed to register session purge job", "error", err)
		}
	}
	if s.Metrics != nil {
		if _, err := s.cron.AddFunc(MetricsPruneSpec, s.pruneMetrics); err != nil {
			zap.S().Errorw("failed to register metrics prune job", "error", err)
		}
	}

	s.cron.Start()
	zap.S().Infow("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop gracefully stops the scheduler, waiting for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("scheduler stopped")
}

func (s *Scheduler) sweepWorkspaces() {
	if n := s.Workspaces.SweepIdle(s.now(), s.IdleTTL); n > 0 {
		zap.S().Infow("dropped idle workspaces", "count", n, "idleTTL", s.IdleTTL)
	}
}

func (s *Scheduler) purgeSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), sessionPurgeLimit)
	defer cancel()

	n, err := s.Sessions.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		zap.S().Errorw("failed to purge expired sessions", "error", err)
		return
	}
	zap.S().Infow("purged expired sessions", "count", n)
}

func (s *Scheduler) pruneMetrics() {
	if n := s.Metrics.Prune(s.now()); n > 0 {
		zap.S().Debugw("pruned metric traces", "count", n)
	}
}
