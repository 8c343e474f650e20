package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kendall-kelly/csa-share-api/catalog"
	"github.com/kendall-kelly/csa-share-api/clock"
	"github.com/kendall-kelly/csa-share-api/jobs"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func ChargeKey(subscriptionID uint) string {
	return fmt.Sprintf("charge-subscription-%d", subscriptionID)
}

func RefundKey(subscriptionID uint) string {
	return fmt.Sprintf("refund-subscription-%d", subscriptionID)
}

// CreateSubscriptionRequest is what a member picks when buying a share
type CreateSubscriptionRequest struct {
	BoxSize         string
	FulfillmentType string
	PaymentInterval int
	PaymentMethodID string
}

// SubscriptionService sells shares and owns their lifecycle. Buying a share
// creates every order of the term immediately.
type SubscriptionService struct {
	db        *gorm.DB
	catalog   *catalog.Catalog
	generator *OrderGenerator
	scheduler jobs.Scheduler
	clock     clock.Clock
	log       *zap.Logger
}

func NewSubscriptionService(db *gorm.DB, cat *catalog.Catalog, generator *OrderGenerator, scheduler jobs.Scheduler, clk clock.Clock, log *zap.Logger) *SubscriptionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SubscriptionService{
		db:        db,
		catalog:   cat,
		generator: generator,
		scheduler: scheduler,
		clock:     clk,
		log:       log,
	}
}

// CreateSubscription prices the share, persists it with all of its orders
// and queues the upfront charge.
func (s *SubscriptionService) CreateSubscription(ctx context.Context, userID uint, req CreateSubscriptionRequest) (*models.Subscription, []models.Order, error) {
	if _, err := s.catalog.FulfillmentOption(req.FulfillmentType); err != nil {
		return nil, nil, newError(CodeValidation, fmt.Sprintf("unknown fulfillment type %q", req.FulfillmentType))
	}
	if _, err := s.catalog.BoxSize(req.BoxSize); err != nil {
		return nil, nil, newError(CodeValidation, fmt.Sprintf("unknown box size %q", req.BoxSize))
	}
	if _, err := s.catalog.PaymentInterval(req.PaymentInterval); err != nil {
		return nil, nil, newError(CodeValidation, fmt.Sprintf("unsupported payment interval of %d weeks", req.PaymentInterval))
	}
	price, err := s.catalog.Price(req.BoxSize, req.PaymentInterval)
	if err != nil {
		return nil, nil, newError(CodeValidation, err.Error())
	}

	now := s.clock.Now().UTC()
	sub := models.Subscription{
		UserID:          userID,
		BoxSize:         req.BoxSize,
		FulfillmentType: req.FulfillmentType,
		PaymentInterval: req.PaymentInterval,
		BoxPrice:        price,
		PaymentMethodID: req.PaymentMethodID,
		Status:          models.SubscriptionActive,
		PeriodStart:     now,
		PeriodEnd:       now.AddDate(0, 0, 7*req.PaymentInterval),
		TotalOrders:     req.PaymentInterval,
		RemainingOrders: req.PaymentInterval,
	}

	var orders []models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newError(CodeNotFound, fmt.Sprintf("user %d not found", userID))
			}
			return fmt.Errorf("failed to load user: %w", err)
		}
		if err := tx.Create(&sub).Error; err != nil {
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		var err error
		orders, err = s.generator.generateTx(tx, sub.ID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.generator.scheduleCutoffs(ctx, orders)

	if sub.PaymentMethodID != "" {
		if err := s.scheduler.Schedule(ctx, ChargeKey(sub.ID), now, jobs.NewChargeSubscription(sub.ID)); err != nil {
			s.log.Error("failed to queue subscription charge", zap.Uint("subscription_id", sub.ID), zap.Error(err))
		}
	}

	s.log.Info("subscription created",
		zap.Uint("subscription_id", sub.ID),
		zap.Uint("user_id", userID),
		zap.String("box_size", sub.BoxSize),
		zap.String("fulfillment_type", sub.FulfillmentType),
		zap.Int("weeks", sub.PaymentInterval),
		zap.String("box_price", sub.BoxPrice.StringFixed(2)),
	)
	return &sub, orders, nil
}

// GetSubscription loads a subscription by id
func (s *SubscriptionService) GetSubscription(ctx context.Context, id uint) (*models.Subscription, error) {
	return findSubscription(s.db.WithContext(ctx), id)
}

func findSubscription(db *gorm.DB, id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := db.First(&sub, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(CodeNotFound, fmt.Sprintf("subscription %d not found", id))
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

// ListUserSubscriptions returns a user's subscriptions, newest first
func (s *SubscriptionService) ListUserSubscriptions(ctx context.Context, userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// CancelSubscription ends a subscription early on behalf of its owner. Open
// orders are cancelled and their value is queued for refund.
func (s *SubscriptionService) CancelSubscription(ctx context.Context, id, requesterID uint) (*models.Subscription, error) {
	now := s.clock.Now().UTC()
	var sub *models.Subscription
	var cancelledOrders int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		sub, err = findSubscription(tx, id)
		if err != nil {
			return err
		}
		if sub.UserID != requesterID {
			return newError(CodeForbidden, "you can only cancel your own subscriptions")
		}
		if !sub.Status.CanTransition(models.SubscriptionCancelled) {
			return newError(CodeInvalidState, fmt.Sprintf("subscription %d is %s and cannot be cancelled", id, sub.Status))
		}

		res := tx.Model(&models.Subscription{}).
			Where("id = ? AND status IN ?", id, []models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPaused}).
			Update("status", models.SubscriptionCancelled)
		if res.Error != nil {
			return fmt.Errorf("failed to cancel subscription: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return newError(CodeInvalidState, fmt.Sprintf("subscription %d changed state, try again", id))
		}

		res = tx.Model(&models.Order{}).
			Where("subscription_id = ? AND status IN ?", id, []models.OrderStatus{models.OrderPending, models.OrderLocked}).
			Updates(map[string]any{"status": models.OrderCancelled, "cancelled_at": now})
		if res.Error != nil {
			return fmt.Errorf("failed to cancel subscription orders: %w", res.Error)
		}
		cancelledOrders = res.RowsAffected

		sub, err = findSubscription(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription cancelled",
		zap.Uint("subscription_id", id),
		zap.Int64("orders_cancelled", cancelledOrders),
	)

	if cancelledOrders > 0 && s.hasCompletedCharge(ctx, id) {
		amount := sub.BoxPrice.Mul(decimal.NewFromInt(cancelledOrders))
		refund := jobs.NewRefundPayment(id, amount, fmt.Sprintf("subscription cancelled with %d boxes undelivered", cancelledOrders))
		if err := s.scheduler.Schedule(ctx, RefundKey(id), now, refund); err != nil {
			s.log.Error("failed to queue refund", zap.Uint("subscription_id", id), zap.Error(err))
		}
	}
	return sub, nil
}

func (s *SubscriptionService) hasCompletedCharge(ctx context.Context, subscriptionID uint) bool {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("subscription_id = ? AND type = ? AND status = ?", subscriptionID, models.PaymentTypeSubscription, models.PaymentCompleted).
		Count(&count).Error
	if err != nil {
		s.log.Error("failed to look up subscription charge", zap.Uint("subscription_id", subscriptionID), zap.Error(err))
		return false
	}
	return count > 0
}
