package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kendall-kelly/csa-share-api/clock"
	"github.com/kendall-kelly/csa-share-api/jobs"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func PaymentFailedKey(paymentID uint) string { return fmt.Sprintf("payment-failed-%d", paymentID) }

// PaymentService charges shares up front and refunds cancelled boxes. Each
// payment row carries the job key as its idempotency key, so a retried job
// never charges twice.
type PaymentService struct {
	db        *gorm.DB
	processor PaymentProcessor
	scheduler jobs.Scheduler
	clock     clock.Clock
	log       *zap.Logger
}

func NewPaymentService(db *gorm.DB, processor PaymentProcessor, scheduler jobs.Scheduler, clk clock.Clock, log *zap.Logger) *PaymentService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentService{db: db, processor: processor, scheduler: scheduler, clock: clk, log: log}
}

// ChargeSubscription collects the full term price for a subscription. A
// declined card is recorded as a failed payment and the member is notified;
// it is not returned as an error.
func (s *PaymentService) ChargeSubscription(ctx context.Context, subscriptionID uint) (*models.Payment, error) {
	db := s.db.WithContext(ctx)
	key := ChargeKey(subscriptionID)

	sub, err := findSubscription(db, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.Status == models.SubscriptionCancelled {
		return s.skipCharge(db, key, "subscription cancelled before charge")
	}
	if sub.PaymentMethodID == "" {
		return nil, newError(CodeValidation, fmt.Sprintf("subscription %d has no payment method", subscriptionID))
	}

	payment, err := s.collect(ctx, db, sub, models.Payment{
		UserID:          sub.UserID,
		SubscriptionID:  sub.ID,
		Type:            models.PaymentTypeSubscription,
		Amount:          sub.TermValue(),
		PaymentMethodID: sub.PaymentMethodID,
		IdempotencyKey:  key,
		Status:          models.PaymentPending,
	}, fmt.Sprintf("CSA share - %d weeks of %s boxes", sub.TotalOrders, sub.BoxSize), nil)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentCompleted {
		s.log.Info("subscription charged",
			zap.Uint("subscription_id", sub.ID),
			zap.String("amount", payment.Amount.StringFixed(2)),
			zap.String("reference", payment.ProcessorRef),
		)
	}
	return payment, nil
}

// ChargeOrderAddons bills the add-ons of a locked order to the payment
// method of its subscription. Cancelled orders are never billed.
func (s *PaymentService) ChargeOrderAddons(ctx context.Context, orderID uint) (*models.Payment, error) {
	db := s.db.WithContext(ctx)
	key := AddonChargeKey(orderID)

	order, err := findOrder(db, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderCancelled {
		return s.skipCharge(db, key, "order cancelled before charge")
	}
	if order.Status == models.OrderPending {
		// the selection may still change until the cutoff
		return nil, newError(CodePreconditionFailed, fmt.Sprintf("order %d must be locked before its add-ons are charged", orderID))
	}
	if !order.AddonAmount.IsPositive() {
		return s.skipCharge(db, key, "order has no add-ons")
	}

	sub, err := findSubscription(db, order.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.PaymentMethodID == "" {
		return nil, newError(CodeValidation, fmt.Sprintf("subscription %d has no payment method", sub.ID))
	}

	payment, err := s.collect(ctx, db, sub, models.Payment{
		UserID:          order.UserID,
		SubscriptionID:  order.SubscriptionID,
		OrderID:         &order.ID,
		Type:            models.PaymentTypeAddon,
		Amount:          order.AddonAmount,
		PaymentMethodID: sub.PaymentMethodID,
		IdempotencyKey:  key,
		Status:          models.PaymentPending,
	}, fmt.Sprintf("CSA add-ons - week %d", order.Week), map[string]string{"order_id": fmt.Sprint(order.ID)})
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentCompleted {
		s.log.Info("order add-ons charged",
			zap.Uint("order_id", order.ID),
			zap.String("amount", payment.Amount.StringFixed(2)),
			zap.String("reference", payment.ProcessorRef),
		)
	}
	return payment, nil
}

// collect reserves the payment row and charges it unless an earlier attempt
// already settled it. A declined card fails the row and queues a notice.
func (s *PaymentService) collect(ctx context.Context, db *gorm.DB, sub *models.Subscription, p models.Payment, description string, metadata map[string]string) (*models.Payment, error) {
	payment, err := s.reservePayment(db, p)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentPending {
		return payment, nil
	}

	meta := map[string]string{
		"subscription_id": fmt.Sprint(sub.ID),
		"user_id":         fmt.Sprint(sub.UserID),
		"payment_type":    payment.Type,
	}
	for k, v := range metadata {
		meta[k] = v
	}

	ref, err := s.processor.Charge(ctx, ChargeRequest{
		Amount:          payment.Amount,
		PaymentMethodID: payment.PaymentMethodID,
		Description:     description,
		IdempotencyKey:  payment.IdempotencyKey,
		Metadata:        meta,
	})

	var declined *DeclinedError
	switch {
	case errors.As(err, &declined):
		if uerr := s.finish(db, payment, models.PaymentFailed, ref, declined.Reason); uerr != nil {
			return nil, uerr
		}
		s.log.Warn("charge declined",
			zap.Uint("subscription_id", sub.ID),
			zap.String("payment_type", payment.Type),
			zap.String("reason", declined.Reason),
		)
		notice := jobs.NewPaymentFailedNotice(sub.ID, payment.ID, declined.Reason)
		if serr := s.scheduler.Schedule(ctx, PaymentFailedKey(payment.ID), s.clock.Now(), notice); serr != nil {
			s.log.Error("failed to queue payment failed notice", zap.Uint("payment_id", payment.ID), zap.Error(serr))
		}
		return payment, nil
	case err != nil:
		return nil, fmt.Errorf("charge %s: %w", payment.IdempotencyKey, err)
	}

	if err := s.finish(db, payment, models.PaymentCompleted, ref, ""); err != nil {
		return nil, err
	}
	return payment, nil
}

// skipCharge handles a charge job whose target went away before it ran. The
// processor is never called. A pending row left by an earlier attempt is
// closed as failed, and a completed one is returned as is.
func (s *PaymentService) skipCharge(db *gorm.DB, key, reason string) (*models.Payment, error) {
	var existing models.Payment
	err := db.Where("idempotency_key = ?", key).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.log.Info("charge skipped", zap.String("key", key), zap.String("reason", reason))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	if existing.Status == models.PaymentPending {
		if err := s.finish(db, &existing, models.PaymentFailed, "", reason); err != nil {
			return nil, err
		}
	}
	return &existing, nil
}

// RefundSubscription refunds up to amount of the subscription's completed charge
func (s *PaymentService) RefundSubscription(ctx context.Context, subscriptionID uint, amount decimal.Decimal) (*models.Payment, error) {
	db := s.db.WithContext(ctx)

	var charge models.Payment
	err := db.Where("subscription_id = ? AND type = ? AND status IN ?", subscriptionID, models.PaymentTypeSubscription,
		[]string{models.PaymentCompleted, models.PaymentRefunded}).
		First(&charge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(CodePreconditionFailed, fmt.Sprintf("subscription %d has no completed charge to refund", subscriptionID))
		}
		return nil, fmt.Errorf("failed to load charge: %w", err)
	}
	if amount.GreaterThan(charge.Amount) {
		amount = charge.Amount
	}
	if !amount.IsPositive() {
		return nil, newError(CodeValidation, "refund amount must be positive")
	}

	key := RefundKey(subscriptionID)
	refund, err := s.reservePayment(db, models.Payment{
		UserID:          charge.UserID,
		SubscriptionID:  subscriptionID,
		Type:            models.PaymentTypeRefund,
		Amount:          amount,
		PaymentMethodID: charge.PaymentMethodID,
		IdempotencyKey:  key,
		Status:          models.PaymentPending,
	})
	if err != nil {
		return nil, err
	}
	if refund.Status != models.PaymentPending {
		return refund, nil
	}

	ref, err := s.processor.Refund(ctx, RefundRequest{
		ChargeReference: charge.ProcessorRef,
		Amount:          refund.Amount,
		IdempotencyKey:  key,
	})
	if err != nil {
		return nil, fmt.Errorf("refund subscription %d: %w", subscriptionID, err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := s.finish(tx, refund, models.PaymentCompleted, ref, ""); err != nil {
			return err
		}
		if refund.Amount.Equal(charge.Amount) {
			return tx.Model(&charge).Update("status", models.PaymentRefunded).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription refunded",
		zap.Uint("subscription_id", subscriptionID),
		zap.String("amount", refund.Amount.StringFixed(2)),
	)
	return refund, nil
}

// ListSubscriptionPayments returns a subscription's charges and refunds
func (s *PaymentService) ListSubscriptionPayments(ctx context.Context, subscriptionID uint) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("id ASC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, nil
}

// reservePayment inserts the payment unless one with the same idempotency
// key exists, and returns the stored row either way.
func (s *PaymentService) reservePayment(db *gorm.DB, p models.Payment) (*models.Payment, error) {
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(&p).Error
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	var stored models.Payment
	if err := db.Where("idempotency_key = ?", p.IdempotencyKey).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &stored, nil
}

func (s *PaymentService) finish(db *gorm.DB, p *models.Payment, status, ref, reason string) error {
	err := db.Model(p).Updates(map[string]any{
		"status":         status,
		"processor_ref":  ref,
		"failure_reason": reason,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update payment %d: %w", p.ID, err)
	}
	p.Status = status
	p.ProcessorRef = ref
	p.FailureReason = reason
	return nil
}
