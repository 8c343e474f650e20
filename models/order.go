package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is one week's box for a subscription. Orders are never deleted,
// only moved through their statuses.
type Order struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	SubscriptionID  uint            `gorm:"not null;uniqueIndex:idx_orders_subscription_week" json:"subscription_id"`
	Subscription    *Subscription   `gorm:"foreignKey:SubscriptionID" json:"-"`
	Week            int             `gorm:"not null;uniqueIndex:idx_orders_subscription_week" json:"week"` // 1-based week of the term
	UserID          uint            `gorm:"not null;index" json:"user_id"`
	User            *User           `gorm:"foreignKey:UserID" json:"-"`
	BoxSize         string          `gorm:"not null" json:"box_size"`
	FulfillmentType string          `gorm:"not null" json:"fulfillment_type"`
	FulfillmentDate time.Time       `gorm:"type:date;not null;index" json:"fulfillment_date"`
	FulfillmentTime string          `gorm:"not null" json:"fulfillment_time"` // "HH:MM"
	CutoffDatetime  time.Time       `gorm:"not null;index" json:"cutoff_datetime"`
	Status          OrderStatus     `gorm:"not null;default:'pending';index" json:"status"`
	TotalAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_amount"`
	AddonAmount     decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"addon_amount"`
	Addons          []OrderAddon    `gorm:"foreignKey:OrderID" json:"addons,omitempty"`
	Notes           string          `gorm:"type:text" json:"notes"`
	LockedAt        *time.Time      `json:"locked_at,omitempty"`
	FulfilledAt     *time.Time      `json:"fulfilled_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// Editable reports whether the owner may still change the order at now
func (o Order) Editable(now time.Time) bool {
	return o.Status == OrderPending && now.Before(o.CutoffDatetime)
}

// OrderAddon is a catalog add-on packed into one order. Prices are copied
// from the catalog when the member picks it.
type OrderAddon struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	OrderID    uint            `gorm:"not null;uniqueIndex:idx_order_addons_order_name" json:"order_id"`
	Name       string          `gorm:"not null;uniqueIndex:idx_order_addons_order_name" json:"name"`
	Quantity   int             `gorm:"not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"unit_price"`
	TotalPrice decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total_price"`
	CreatedAt  time.Time       `json:"created_at"`
}

// TableName specifies the table name for the OrderAddon model
func (OrderAddon) TableName() string {
	return "order_addons"
}
