package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Subscription is a member's prepaid commitment to receive one box per week
// for PaymentInterval weeks.
type Subscription struct {
	ID              uint               `gorm:"primaryKey" json:"id"`
	UserID          uint               `gorm:"not null;index" json:"user_id"`
	User            User               `gorm:"foreignKey:UserID" json:"-"`
	BoxSize         string             `gorm:"not null" json:"box_size"`
	FulfillmentType string             `gorm:"not null" json:"fulfillment_type"`
	PaymentInterval int                `gorm:"not null" json:"payment_interval"` // weeks
	BoxPrice        decimal.Decimal    `gorm:"type:decimal(10,2);not null" json:"box_price"`
	PaymentMethodID string             `json:"-"`
	Status          SubscriptionStatus `gorm:"not null;default:'active';index" json:"status"`
	PeriodStart     time.Time          `gorm:"not null" json:"period_start"`
	PeriodEnd       time.Time          `gorm:"not null" json:"period_end"`
	TotalOrders     int                `gorm:"not null" json:"total_orders"`
	RemainingOrders int                `gorm:"not null;check:remaining_orders >= 0" json:"remaining_orders"`
	Orders          []Order            `gorm:"foreignKey:SubscriptionID" json:"orders,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// TableName specifies the table name for the Subscription model
func (Subscription) TableName() string {
	return "subscriptions"
}

// TermValue is what the member paid for the whole term
func (s Subscription) TermValue() decimal.Decimal {
	return s.BoxPrice.Mul(decimal.NewFromInt(int64(s.TotalOrders)))
}
