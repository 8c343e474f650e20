package models

import "time"

type NotificationType string

const (
	NotificationOrderReminder         NotificationType = "order_reminder"
	NotificationOrderLocked           NotificationType = "order_locked"
	NotificationOrderFulfilled        NotificationType = "order_fulfilled"
	NotificationPaymentFailed         NotificationType = "payment_failed"
	NotificationSubscriptionCompleted NotificationType = "subscription_completed"
)

const (
	NotificationSent   = "sent"
	NotificationFailed = "failed"
)

// Notification records every message sent (or attempted) to a member
type Notification struct {
	ID             uint             `gorm:"primaryKey" json:"id"`
	UserID         uint             `gorm:"not null;index" json:"user_id"`
	OrderID        *uint            `gorm:"index" json:"order_id,omitempty"`
	SubscriptionID *uint            `gorm:"index" json:"subscription_id,omitempty"`
	Type           NotificationType `gorm:"not null" json:"type"`
	Channel        string           `gorm:"not null" json:"channel"`
	Message        string           `gorm:"type:text;not null" json:"message"`
	Status         string           `gorm:"not null" json:"status"` // sent, failed
	Error          string           `gorm:"type:text" json:"error,omitempty"`
	SentAt         *time.Time       `json:"sent_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// TableName specifies the table name for the Notification model
func (Notification) TableName() string {
	return "notifications"
}
