package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"tinking/backend/internal/config"
	"tinking/backend/internal/metrics"
	"tinking/backend/internal/store"

	"github.com/robfig/cron/v3"
)

const purgeTimeout = 30 * time.Second

// SessionExpirer closes idle sessions and returns their ids.
type SessionExpirer interface {
	Expire(ttl time.Duration) []string
}

// Janitor periodically expires idle recipe sessions and purges stale
// drafts.
type Janitor struct {
	cron     *cron.Cron
	schedule string
	sessions SessionExpirer
	drafts   store.DraftStore
	cfg      config.JanitorConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// SweepResult reports what one sweep removed.
type SweepResult struct {
	Expired []string
	Purged  int64
}

// NewJanitor builds a janitor. drafts may be nil, in which case drafts
// are never purged.
func NewJanitor(cfg config.JanitorConfig, sessions SessionExpirer, drafts store.DraftStore, m *metrics.Metrics, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	return &Janitor{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		schedule: cfg.Schedule,
		sessions: sessions,
		drafts:   drafts,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Start registers the sweep and starts the scheduler.
func (j *Janitor) Start() error {
	entryID, err := j.cron.AddFunc(j.schedule, func() { j.Sweep(context.Background()) })
	if err != nil {
		return fmt.Errorf("services: janitor schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.Info("janitor started", "schedule", j.schedule, "entry", entryID,
		"session_ttl", j.cfg.SessionTTL, "draft_ttl", j.cfg.DraftTTL)
	return nil
}

// Stop halts the scheduler and waits for a running sweep.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("janitor stopped")
}

// Sweep runs one pass.
func (j *Janitor) Sweep(ctx context.Context) SweepResult {
	var res SweepResult
	if j.cfg.SessionTTL > 0 {
		res.Expired = j.sessions.Expire(j.cfg.SessionTTL)
		j.metrics.SessionsExpired(len(res.Expired))
		if len(res.Expired) > 0 {
			j.logger.Info("idle sessions expired", "count", len(res.Expired), "ids", res.Expired)
		}
	}

	if j.drafts == nil || j.cfg.DraftTTL <= 0 {
		return res
	}
	ctx, cancel := context.WithTimeout(ctx, purgeTimeout)
	defer cancel()
	purged, err := j.drafts.PurgeDrafts(ctx, time.Now().Add(-j.cfg.DraftTTL))
	if err != nil {
		j.logger.Error("draft purge failed", "error", err)
		return res
	}
	res.Purged = purged
	if purged > 0 {
		j.logger.Info("stale drafts purged", "count", purged)
	}
	return res
}
