package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kendall-kelly/csa-share-api/catalog"
	"github.com/kendall-kelly/csa-share-api/clock"
	"github.com/kendall-kelly/csa-share-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NotificationService composes member notifications, sends them and keeps a
// record of each attempt. A failed delivery is recorded, never retried into
// the order's state.
type NotificationService struct {
	db      *gorm.DB
	channel NotificationChannel
	clock   clock.Clock
	log     *zap.Logger
}

func NewNotificationService(db *gorm.DB, channel NotificationChannel, clk clock.Clock, log *zap.Logger) *NotificationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationService{db: db, channel: channel, clock: clk, log: log}
}

// SendOrderReminder reminds the member their order closes in 24 hours. It
// sends nothing if the order is no longer pending.
func (s *NotificationService) SendOrderReminder(ctx context.Context, orderID uint) error {
	order, user, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderPending {
		s.log.Debug("skipping reminder for order that is no longer pending",
			zap.Uint("order_id", orderID),
			zap.String("status", string(order.Status)),
		)
		return nil
	}

	body := fmt.Sprintf("Hi %s! Your CSA order deadline is in 24 hours. Please review and finalize your order. Order ID: %d",
		user.Name, order.ID)
	return s.deliver(ctx, user, models.NotificationOrderReminder, "Your CSA order closes soon", body, &order.ID, &order.SubscriptionID)
}

func (s *NotificationService) SendOrderLocked(ctx context.Context, orderID uint) error {
	order, user, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Hi %s! Your CSA order has been locked and will be prepared for fulfillment. Order ID: %d",
		user.Name, order.ID)
	return s.deliver(ctx, user, models.NotificationOrderLocked, "Your CSA order is locked in", body, &order.ID, &order.SubscriptionID)
}

func (s *NotificationService) SendOrderFulfilled(ctx context.Context, orderID uint) error {
	order, user, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return err
	}
	verb := "picked up"
	if order.FulfillmentType == catalog.FulfillmentDelivery {
		verb = "delivered"
	}
	body := fmt.Sprintf("Hi %s! Your CSA box for %s has been %s. Enjoy! Order ID: %d",
		user.Name, order.FulfillmentDate.Format("Mon Jan 2"), verb, order.ID)
	return s.deliver(ctx, user, models.NotificationOrderFulfilled, "Your CSA box is here", body, &order.ID, &order.SubscriptionID)
}

func (s *NotificationService) SendPaymentFailed(ctx context.Context, subscriptionID uint, reason string) error {
	sub, user, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Hi %s! Your CSA subscription payment failed. Please update your payment method to continue your subscription.", user.Name)
	if reason != "" {
		body += " Reason: " + reason
	}
	return s.deliver(ctx, user, models.NotificationPaymentFailed, "Your CSA payment failed", body, nil, &sub.ID)
}

func (s *NotificationService) SendSubscriptionCompleted(ctx context.Context, subscriptionID uint) error {
	sub, user, err := s.loadSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Hi %s! Your %d-week CSA share is complete. Thanks for supporting the farm, we hope to see you next season!",
		user.Name, sub.TotalOrders)
	return s.deliver(ctx, user, models.NotificationSubscriptionCompleted, "Your CSA share is complete", body, nil, &sub.ID)
}

// ListUserNotifications returns a user's notifications, newest first
func (s *NotificationService) ListUserNotifications(ctx context.Context, userID uint, limit, offset int) ([]models.Notification, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	var out []models.Notification
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

func (s *NotificationService) loadOrder(ctx context.Context, orderID uint) (*models.Order, *models.User, error) {
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("User").First(&order, orderID).Error; err != nil {
		return nil, nil, notFoundOr(err, fmt.Sprintf("order %d not found", orderID))
	}
	if order.User == nil {
		return nil, nil, newError(CodeNotFound, fmt.Sprintf("user of order %d not found", orderID))
	}
	return &order, order.User, nil
}

func (s *NotificationService) loadSubscription(ctx context.Context, subscriptionID uint) (*models.Subscription, *models.User, error) {
	var sub models.Subscription
	if err := s.db.WithContext(ctx).Preload("User").First(&sub, subscriptionID).Error; err != nil {
		return nil, nil, notFoundOr(err, fmt.Sprintf("subscription %d not found", subscriptionID))
	}
	if sub.User.ID == 0 {
		return nil, nil, newError(CodeNotFound, fmt.Sprintf("user of subscription %d not found", subscriptionID))
	}
	return &sub, &sub.User, nil
}

func (s *NotificationService) deliver(ctx context.Context, user *models.User, typ models.NotificationType, subject, body string, orderID, subscriptionID *uint) error {
	now := s.clock.Now().UTC()
	msg := Message{
		ID:             uuid.NewString(),
		UserID:         user.ID,
		Name:           user.Name,
		Email:          user.Email,
		Phone:          user.Phone,
		Type:           typ,
		Subject:        subject,
		Body:           body,
		OrderID:        orderID,
		SubscriptionID: subscriptionID,
		CreatedAt:      now,
	}

	record := models.Notification{
		UserID:         user.ID,
		OrderID:        orderID,
		SubscriptionID: subscriptionID,
		Type:           typ,
		Channel:        s.channel.Name(),
		Message:        body,
		Status:         models.NotificationSent,
		SentAt:         &now,
	}

	sendErr := s.channel.Send(ctx, msg)
	if sendErr != nil {
		record.Status = models.NotificationFailed
		record.Error = sendErr.Error()
		record.SentAt = nil
		s.log.Warn("notification delivery failed",
			zap.Uint("user_id", user.ID),
			zap.String("type", string(typ)),
			zap.Error(sendErr),
		)
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return sendErr
}

func notFoundOr(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newError(CodeNotFound, message)
	}
	return fmt.Errorf("%s: %w", message, err)
}
