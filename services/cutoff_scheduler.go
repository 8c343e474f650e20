package services

import (
	"context"
	"fmt"
	"time"

	"github.com/kendall-kelly/csa-share-api/clock"
	"github.com/kendall-kelly/csa-share-api/jobs"
	"go.uber.org/zap"
)

// ReminderLead is how long before the cutoff the member is reminded
const ReminderLead = 24 * time.Hour

func ReminderKey(orderID uint) string { return fmt.Sprintf("reminder-%d", orderID) }
func LockKey(orderID uint) string     { return fmt.Sprintf("lock-%d", orderID) }

// CutoffScheduler registers the reminder and lock actions for an order.
// Scheduling never fails the caller: errors are logged and the overdue-order
// sweep picks up any lock that was not registered.
type CutoffScheduler struct {
	scheduler jobs.Scheduler
	clock     clock.Clock
	log       *zap.Logger
}

func NewCutoffScheduler(scheduler jobs.Scheduler, clk clock.Clock, log *zap.Logger) *CutoffScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CutoffScheduler{scheduler: scheduler, clock: clk, log: log}
}

// ScheduleOrderCutoff registers a reminder at cutoff-24h and a lock at the
// cutoff. Trigger times already in the past are skipped.
func (s *CutoffScheduler) ScheduleOrderCutoff(ctx context.Context, orderID uint, cutoff time.Time) {
	now := s.clock.Now()

	s.schedule(ctx, now, ReminderKey(orderID), cutoff.Add(-ReminderLead), jobs.NewOrderReminder(orderID))
	s.schedule(ctx, now, LockKey(orderID), cutoff, jobs.NewOrderLock(orderID))
}

func (s *CutoffScheduler) schedule(ctx context.Context, now time.Time, key string, runAt time.Time, action jobs.Action) {
	if !runAt.After(now) {
		s.log.Debug("trigger time passed, not scheduling",
			zap.String("key", key),
			zap.Time("run_at", runAt),
		)
		return
	}
	if err := s.scheduler.Schedule(ctx, key, runAt, action); err != nil {
		s.log.Error("failed to schedule deferred action",
			zap.String("key", key),
			zap.String("kind", string(action.Kind())),
			zap.Error(err),
		)
	}
}
