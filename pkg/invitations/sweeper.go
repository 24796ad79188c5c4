package invitations

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/observability"
)

// DefaultSweepSchedule runs the expiry sweep every fifteen minutes.
const DefaultSweepSchedule = "@every 15m"

const sweepTimeout = time.Minute

// Sweeper runs Manager.ExpireSweep on a cron schedule.
type Sweeper struct {
	manager  *Manager
	cron     *cron.Cron
	schedule string
	metrics  *observability.Metrics
	log      logrus.FieldLogger
}

// NewSweeper schedules sweeps. An empty schedule uses DefaultSweepSchedule;
// an invalid one is an error. metrics may be nil.
func NewSweeper(manager *Manager, schedule string, metrics *observability.Metrics, log logrus.FieldLogger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	s := &Sweeper{
		manager:  manager,
		cron:     cron.New(),
		schedule: schedule,
		metrics:  metrics,
		log:      log.WithField("component", "invitation-sweeper"),
	}

	_, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		// Run already logs and counts failures.
		_, _ = s.Run(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule invitation sweep %q: %w", schedule, err)
	}
	return s, nil
}

// Run performs one sweep.
func (s *Sweeper) Run(ctx context.Context) (int64, error) {
	n, err := s.manager.ExpireSweep(ctx)
	if err != nil {
		s.record("error")
		s.log.WithError(err).Error("Invitation sweep failed")
		return 0, err
	}
	s.record("success")
	s.log.WithField("expired", n).Debug("Invitation sweep completed")
	return n, nil
}

func (s *Sweeper) record(status string) {
	if s.metrics != nil {
		s.metrics.InvitationSweepsTotal.WithLabelValues(status).Inc()
	}
}

// Start begins the schedule in the background.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.log.WithField("schedule", s.schedule).Info("Invitation sweeper started")
}

// Stop halts the schedule and waits for a running sweep, up to ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("Invitation sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
