package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultIntervalMinutes is the periodic sync interval when none is
	// configured.
	DefaultIntervalMinutes = 5
	minIntervalMinutes     = 1
	maxIntervalMinutes     = 60

	// purgeSchedule runs retention cleanup daily at 02:00 UTC.
	purgeSchedule = "0 2 * * *"
)

// Scheduler drives periodic syncs and the daily purge via cron.
type Scheduler struct {
	engine   *Engine
	cron     *cron.Cron
	interval time.Duration
	log      *logrus.Logger
	cancel   context.CancelFunc
}

// ClampInterval bounds a configured interval to [1, 60] minutes,
// substituting the default for zero or negative values.
func ClampInterval(minutes int) int {
	switch {
	case minutes <= 0:
		return DefaultIntervalMinutes
	case minutes < minIntervalMinutes:
		return minIntervalMinutes
	case minutes > maxIntervalMinutes:
		return maxIntervalMinutes
	default:
		return minutes
	}
}

// NewScheduler creates a scheduler syncing every intervalMinutes,
// clamped to the allowed range.
func NewScheduler(engine *Engine, intervalMinutes int, log *logrus.Logger) *Scheduler {
	minutes := ClampInterval(intervalMinutes)
	return &Scheduler{
		engine:   engine,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		interval: time.Duration(minutes) * time.Minute,
		log:      log,
	}
}

// Interval returns the effective sync interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start registers the cron entries and begins running them. An initial
// property discovery and sync pass runs immediately in the background.
func (s *Scheduler) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, func() { s.runSync(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("scheduling sync: %w", err)
	}
	if _, err := s.cron.AddFunc(purgeSchedule, func() { s.engine.Purge(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("scheduling purge: %w", err)
	}

	s.cron.Start()
	s.log.WithField("interval", s.interval.String()).Info("Sync scheduler started")

	go s.runSync(ctx)
	return nil
}

// Stop halts the cron loop and cancels any in-flight run, waiting for
// running jobs to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.log.Info("Sync scheduler stopped")
}

func (s *Scheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	created, err := s.engine.SyncProperties(ctx)
	if err != nil {
		// Listings already known still sync below; discovery failing
		// usually means credentials need attention.
		s.log.WithError(err).Warn("Property discovery failed")
	} else if created > 0 {
		s.log.WithField("created", created).Info("Property discovery added listings")
	}

	s.engine.SyncAll(ctx)
}
