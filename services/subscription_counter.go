package services

import (
	"fmt"

	"github.com/kendall-kelly/csa-share-api/models"
	"gorm.io/gorm"
)

// SubscriptionCounter tracks how many boxes remain in a subscription's term
type SubscriptionCounter struct{}

// RecordFulfillment decrements remaining_orders (never below zero) and marks
// the subscription completed when it reaches zero. It must run in the same
// transaction as the order's move to fulfilled. It reports whether this call
// completed the subscription.
func (SubscriptionCounter) RecordFulfillment(tx *gorm.DB, subscriptionID uint) (bool, error) {
	err := tx.Model(&models.Subscription{}).
		Where("id = ? AND remaining_orders > 0", subscriptionID).
		Update("remaining_orders", gorm.Expr("remaining_orders - 1")).Error
	if err != nil {
		return false, fmt.Errorf("failed to decrement remaining orders: %w", err)
	}

	res := tx.Model(&models.Subscription{}).
		Where("id = ? AND remaining_orders = 0 AND status IN ?", subscriptionID,
			[]models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionPaused}).
		Update("status", models.SubscriptionCompleted)
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete subscription: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
