package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kendall-kelly/csa-share-api/clock"
	"github.com/kendall-kelly/csa-share-api/jobs"
	"github.com/kendall-kelly/csa-share-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func LockedNoticeKey(orderID uint) string    { return fmt.Sprintf("locked-notice-%d", orderID) }
func FulfilledNoticeKey(orderID uint) string { return fmt.Sprintf("fulfilled-notice-%d", orderID) }
func CompletedKey(subscriptionID uint) string {
	return fmt.Sprintf("subscription-completed-%d", subscriptionID)
}

// OrderListOptions filters and pages order listings
type OrderListOptions struct {
	Status models.OrderStatus
	Limit  int
	Offset int
}

// OrderService moves orders through pending, locked, fulfilled and
// cancelled. Every transition is a conditional update on the current status
// so concurrent callers cannot both win.
type OrderService struct {
	db        *gorm.DB
	scheduler jobs.Scheduler
	counter   SubscriptionCounter
	clock     clock.Clock
	log       *zap.Logger
}

func NewOrderService(db *gorm.DB, scheduler jobs.Scheduler, clk clock.Clock, log *zap.Logger) *OrderService {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderService{db: db, scheduler: scheduler, clock: clk, log: log}
}

func (s *OrderService) now() time.Time {
	return s.clock.Now().UTC()
}

// GetOrder loads an order by id with its add-ons
func (s *OrderService) GetOrder(ctx context.Context, id uint) (*models.Order, error) {
	return findOrderWithAddons(s.db.WithContext(ctx), id)
}

func findOrder(db *gorm.DB, id uint) (*models.Order, error) {
	var order models.Order
	if err := db.First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(CodeNotFound, fmt.Sprintf("order %d not found", id))
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// ListUserOrders returns a user's orders, soonest fulfillment first
func (s *OrderService) ListUserOrders(ctx context.Context, userID uint, opts OrderListOptions) ([]models.Order, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var orders []models.Order
	if err := q.Order("fulfillment_date ASC, id ASC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// ListSubscriptionOrders returns all orders of a subscription in week order
func (s *OrderService) ListSubscriptionOrders(ctx context.Context, subscriptionID uint) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("week ASC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscription orders: %w", err)
	}
	return orders, nil
}

// LockOrder moves a pending order to locked. Locking an already locked order
// returns it unchanged; fulfilled or cancelled orders cannot be locked.
func (s *OrderService) LockOrder(ctx context.Context, id uint) (*models.Order, error) {
	now := s.now()
	db := s.db.WithContext(ctx)

	res := db.Model(&models.Order{}).
		Where("id = ? AND status = ?", id, models.OrderPending).
		Updates(map[string]any{"status": models.OrderLocked, "locked_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to lock order: %w", res.Error)
	}

	order, err := findOrder(db, id)
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		if order.Status == models.OrderLocked {
			return order, nil
		}
		return nil, newError(CodeInvalidState, fmt.Sprintf("order %d is %s and cannot be locked", id, order.Status))
	}

	s.log.Info("order locked", zap.Uint("order_id", id))
	s.schedule(ctx, LockedNoticeKey(id), now, jobs.NewOrderLockedNotice(id))
	if order.AddonAmount.IsPositive() {
		// the selection is final from here on
		s.schedule(ctx, AddonChargeKey(id), now, jobs.NewChargeOrderAddons(id))
	}
	return order, nil
}

// FulfillOrder moves a locked order to fulfilled and counts it against the
// subscription, both in one transaction.
func (s *OrderService) FulfillOrder(ctx context.Context, id uint) (*models.Order, error) {
	now := s.now()
	var order *models.Order
	var completed bool

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", id, models.OrderLocked).
			Updates(map[string]any{"status": models.OrderFulfilled, "fulfilled_at": now})
		if res.Error != nil {
			return fmt.Errorf("failed to fulfill order: %w", res.Error)
		}

		var err error
		order, err = findOrder(tx, id)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return newError(CodePreconditionFailed,
				fmt.Sprintf("order %d must be locked before fulfillment, is %s", id, order.Status))
		}

		completed, err = s.counter.RecordFulfillment(tx, order.SubscriptionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order fulfilled",
		zap.Uint("order_id", id),
		zap.Uint("subscription_id", order.SubscriptionID),
		zap.Bool("subscription_completed", completed),
	)
	s.schedule(ctx, FulfilledNoticeKey(id), now, jobs.NewOrderFulfilledNotice(id))
	if completed {
		s.schedule(ctx, CompletedKey(order.SubscriptionID), now, jobs.NewSubscriptionCompleted(order.SubscriptionID))
	}
	return order, nil
}

// CancelOrder cancels a pending or locked order on behalf of its owner
func (s *OrderService) CancelOrder(ctx context.Context, id, requesterID uint) (*models.Order, error) {
	db := s.db.WithContext(ctx)

	order, err := findOrder(db, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != requesterID {
		return nil, newError(CodeForbidden, "you can only cancel your own orders")
	}

	switch order.Status {
	case models.OrderCancelled:
		return order, nil
	case models.OrderFulfilled:
		return nil, newError(CodeInvalidState, "fulfilled orders cannot be cancelled")
	}

	res := db.Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, []models.OrderStatus{models.OrderPending, models.OrderLocked}).
		Updates(map[string]any{"status": models.OrderCancelled, "cancelled_at": s.now()})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", res.Error)
	}

	order, err = findOrder(db, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 && order.Status != models.OrderCancelled {
		// fulfilled between our read and write
		return nil, newError(CodeInvalidState, fmt.Sprintf("order %d is %s and cannot be cancelled", id, order.Status))
	}

	s.log.Info("order cancelled", zap.Uint("order_id", id), zap.Uint("user_id", requesterID))
	return order, nil
}

// UpdateOrderNotes changes the notes of a pending order before its cutoff
func (s *OrderService) UpdateOrderNotes(ctx context.Context, id, requesterID uint, notes string) (*models.Order, error) {
	now := s.now()
	db := s.db.WithContext(ctx)

	order, err := findOrder(db, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != requesterID {
		return nil, newError(CodeForbidden, "you can only modify your own orders")
	}
	if !order.Editable(now) {
		return nil, newError(CodeEditWindowClosed, "order can no longer be modified")
	}

	res := db.Model(&models.Order{}).
		Where("id = ? AND status = ? AND cutoff_datetime > ?", id, models.OrderPending, now).
		Update("notes", notes)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, newError(CodeEditWindowClosed, "order can no longer be modified")
	}

	return findOrder(db, id)
}

// LockOverdueOrders locks every pending order whose cutoff has passed. It
// covers lock actions that were skipped or lost.
func (s *OrderService) LockOverdueOrders(ctx context.Context) (int, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Order{}).
		Where("status = ? AND cutoff_datetime <= ?", models.OrderPending, s.now()).
		Order("cutoff_datetime ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return 0, fmt.Errorf("failed to find overdue orders: %w", err)
	}

	locked := 0
	for _, id := range ids {
		if _, err := s.LockOrder(ctx, id); err != nil {
			if errors.Is(err, ErrInvalidState) {
				continue
			}
			return locked, err
		}
		locked++
	}
	return locked, nil
}

// OrdersForDate returns the orders to be fulfilled on a date
func (s *OrderService) OrdersForDate(ctx context.Context, date time.Time, fulfillmentType string, statuses ...models.OrderStatus) ([]models.Order, error) {
	day := DateOnly(date)
	q := s.db.WithContext(ctx).
		Preload("User").
		Preload("Addons", func(q *gorm.DB) *gorm.DB { return q.Order("name ASC") }).
		Where("fulfillment_date >= ? AND fulfillment_date < ?", day, day.AddDate(0, 0, 1))
	if fulfillmentType != "" {
		q = q.Where("fulfillment_type = ?", fulfillmentType)
	}
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	var orders []models.Order
	if err := q.Order("id ASC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to load orders for %s: %w", day.Format(time.DateOnly), err)
	}
	return orders, nil
}

func (s *OrderService) schedule(ctx context.Context, key string, at time.Time, action jobs.Action) {
	if err := s.scheduler.Schedule(ctx, key, at, action); err != nil {
		s.log.Error("failed to schedule job",
			zap.String("key", key),
			zap.String("kind", string(action.Kind())),
			zap.Error(err),
		)
	}
}
