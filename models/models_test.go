package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestTableNames(t *testing.T) {
	assert.Equal(t, "subscriptions", Subscription{}.TableName())
	assert.Equal(t, "orders", Order{}.TableName())
	assert.Equal(t, "order_addons", OrderAddon{}.TableName())
	assert.Equal(t, "notifications", Notification{}.TableName())
	assert.Equal(t, "payments", Payment{}.TableName())
}

func TestOrderTransitions(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		want bool
	}{
		{OrderPending, OrderLocked, true},
		{OrderPending, OrderCancelled, true},
		{OrderPending, OrderFulfilled, false},
		{OrderLocked, OrderFulfilled, true},
		{OrderLocked, OrderCancelled, true},
		{OrderLocked, OrderPending, false},
		{OrderFulfilled, OrderCancelled, false},
		{OrderFulfilled, OrderLocked, false},
		{OrderCancelled, OrderPending, false},
		{OrderCancelled, OrderLocked, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, OrderFulfilled.Terminal())
	assert.True(t, OrderCancelled.Terminal())
	assert.False(t, OrderLocked.Terminal())
}

func TestSubscriptionTransitions(t *testing.T) {
	assert.True(t, SubscriptionActive.CanTransition(SubscriptionCompleted))
	assert.True(t, SubscriptionPaused.CanTransition(SubscriptionActive))
	assert.False(t, SubscriptionCompleted.CanTransition(SubscriptionActive))
	assert.False(t, SubscriptionCancelled.CanTransition(SubscriptionCompleted))
}

func TestOrderEditable(t *testing.T) {
	cutoff := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	order := Order{Status: OrderPending, CutoffDatetime: cutoff}

	assert.True(t, order.Editable(cutoff.Add(-time.Minute)))
	assert.False(t, order.Editable(cutoff), "editing closes exactly at the cutoff")
	assert.False(t, order.Editable(cutoff.Add(time.Hour)))

	order.Status = OrderLocked
	assert.False(t, order.Editable(cutoff.Add(-time.Hour)))
}

func TestSubscriptionTermValue(t *testing.T) {
	sub := Subscription{BoxPrice: decimal.RequireFromString("23.75"), TotalOrders: 8}
	assert.Equal(t, "190.00", sub.TermValue().StringFixed(2))
}

func TestOrderUniquePerSubscriptionWeek(t *testing.T) {
	db := setupTestDB(t)

	user := User{Subject: "auth|1", Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, db.Create(&user).Error)

	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	sub := Subscription{
		UserID:          user.ID,
		BoxSize:         "small",
		FulfillmentType: "pickup",
		PaymentInterval: 4,
		BoxPrice:        decimal.RequireFromString("25.00"),
		PeriodStart:     start,
		PeriodEnd:       start.AddDate(0, 0, 28),
		TotalOrders:     4,
		RemainingOrders: 4,
		Status:          SubscriptionActive,
	}
	require.NoError(t, db.Create(&sub).Error)

	order := Order{
		SubscriptionID:  sub.ID,
		Week:            1,
		UserID:          user.ID,
		BoxSize:         "small",
		FulfillmentType: "pickup",
		FulfillmentDate: start.AddDate(0, 0, 1),
		FulfillmentTime: "14:00",
		CutoffDatetime:  start.Add(14 * time.Hour),
		Status:          OrderPending,
		TotalAmount:     sub.BoxPrice,
	}
	require.NoError(t, db.Create(&order).Error)

	dup := order
	dup.ID = 0
	assert.Error(t, db.Create(&dup).Error, "a second order for the same week must be rejected")

	var loaded Order
	require.NoError(t, db.First(&loaded, order.ID).Error)
	assert.True(t, loaded.TotalAmount.Equal(decimal.RequireFromString("25")))
}
