// Package workers connects deferred actions to the services that carry them out.
package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kendall-kelly/csa-share-api/jobs"
	"github.com/kendall-kelly/csa-share-api/services"
	"go.uber.org/zap"
)

// Dispatcher is the jobs.Handler for every queue
type Dispatcher struct {
	orders        *services.OrderService
	payments      *services.PaymentService
	notifications *services.NotificationService
	log           *zap.Logger
}

func NewDispatcher(orders *services.OrderService, payments *services.PaymentService, notifications *services.NotificationService, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{orders: orders, payments: payments, notifications: notifications, log: log}
}

// Handle runs one action. Domain errors fail the job permanently since a
// retry would get the same answer; other errors are left for the queue to retry.
func (d *Dispatcher) Handle(ctx context.Context, action jobs.Action) error {
	return classify(d.dispatch(ctx, action))
}

func (d *Dispatcher) dispatch(ctx context.Context, action jobs.Action) error {
	switch a := action.(type) {
	case jobs.OrderReminder:
		return d.notifications.SendOrderReminder(ctx, a.OrderID)

	case jobs.OrderLock:
		_, err := d.orders.LockOrder(ctx, a.OrderID)
		if errors.Is(err, services.ErrInvalidState) {
			// cancelled or fulfilled before its cutoff
			d.log.Debug("lock skipped", zap.Uint("order_id", a.OrderID), zap.Error(err))
			return nil
		}
		return err

	case jobs.OrderLockedNotice:
		return d.notifications.SendOrderLocked(ctx, a.OrderID)

	case jobs.OrderFulfilledNotice:
		return d.notifications.SendOrderFulfilled(ctx, a.OrderID)

	case jobs.ChargeSubscription:
		_, err := d.payments.ChargeSubscription(ctx, a.SubscriptionID)
		return err

	case jobs.ChargeOrderAddons:
		_, err := d.payments.ChargeOrderAddons(ctx, a.OrderID)
		return err

	case jobs.RefundPayment:
		_, err := d.payments.RefundSubscription(ctx, a.SubscriptionID, a.Amount)
		return err

	case jobs.PaymentFailedNotice:
		return d.notifications.SendPaymentFailed(ctx, a.SubscriptionID, a.Reason)

	case jobs.SubscriptionCompleted:
		return d.notifications.SendSubscriptionCompleted(ctx, a.SubscriptionID)

	default:
		return jobs.Permanent(fmt.Errorf("no handler for action %T", action))
	}
}

func classify(err error) error {
	if err == nil || services.CodeOf(err) == "" || jobs.IsPermanent(err) {
		return err
	}
	return jobs.Permanent(err)
}

// RunSweeper locks overdue orders every interval until ctx is cancelled
func RunSweeper(ctx context.Context, orders *services.OrderService, interval time.Duration, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := orders.LockOverdueOrders(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("overdue order sweep failed", zap.Error(err))
		case n > 0:
			log.Info("locked overdue orders", zap.Int("count", n))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
