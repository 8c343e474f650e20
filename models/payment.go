package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentTypeSubscription = "subscription"
	PaymentTypeRefund       = "refund"
	PaymentTypeAddon        = "addon"
)

const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

// Payment is one charge or refund against the payment processor
type Payment struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	UserID          uint            `gorm:"not null;index" json:"user_id"`
	SubscriptionID  uint            `gorm:"not null;index" json:"subscription_id"`
	OrderID         *uint           `gorm:"index" json:"order_id,omitempty"`
	Type            string          `gorm:"not null" json:"type"`
	Amount          decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	PaymentMethodID string          `json:"-"`
	IdempotencyKey  string          `gorm:"uniqueIndex;not null" json:"-"`
	ProcessorRef    string          `json:"processor_ref,omitempty"`
	Status          string          `gorm:"not null;default:'pending'" json:"status"`
	FailureReason   string          `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the Payment model
func (Payment) TableName() string {
	return "payments"
}
