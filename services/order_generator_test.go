package services

import (
	"context"
	"testing"
	"time"

	"github.com/kendall-kelly/csa-share-api/catalog"
	"github.com/kendall-kelly/csa-share-api/jobs"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextFulfillmentDate(t *testing.T) {
	monday := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		start   time.Time
		week    int
		weekday time.Weekday
		want    time.Time
	}{
		{"same day", monday, 0, time.Monday, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)},
		{"later that week", monday, 0, time.Tuesday, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"wraps to next week", monday, 0, time.Sunday, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{"third week", monday, 2, time.Wednesday, time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)},
		{"crosses month", monday, 4, time.Tuesday, time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextFulfillmentDate(tt.start, tt.week, tt.weekday, time.UTC)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.weekday, got.Weekday())
			assert.False(t, got.Before(DateOnly(tt.start).AddDate(0, 0, 7*tt.week)))
		})
	}
}

func TestNextFulfillmentDateUsesFarmTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	// 03:00 UTC Tuesday is still Monday evening in Chicago
	start := time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC)
	got := NextFulfillmentDate(start, 0, time.Tuesday, loc)

	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, loc), got)
}

func TestBuildOrders(t *testing.T) {
	env := newTestEnv(t)

	sub := &models.Subscription{
		ID:              9,
		UserID:          3,
		BoxSize:         "large",
		FulfillmentType: catalog.FulfillmentDelivery,
		PaymentInterval: 8,
		BoxPrice:        decimal.RequireFromString("38.00"),
		PeriodStart:     testStart,
		TotalOrders:     8,
	}

	orders, schedule, err := env.generator.BuildOrders(sub)
	require.NoError(t, err)
	require.Len(t, orders, 8)
	assert.Equal(t, time.Wednesday, schedule.DayOfWeek)

	for i, o := range orders {
		assert.Equal(t, i+1, o.Week)
		assert.Equal(t, time.Wednesday, o.FulfillmentDate.Weekday())
		assert.Equal(t, "10:00", o.FulfillmentTime)
		assert.Equal(t, models.OrderPending, o.Status)
		assert.True(t, o.TotalAmount.Equal(sub.BoxPrice))
		assert.Equal(t, sub.UserID, o.UserID)
		if i > 0 {
			assert.Equal(t, 7*24*time.Hour, o.FulfillmentDate.Sub(orders[i-1].FulfillmentDate))
		}
	}

	// Wednesday 2024-03-06 10:00, cutoff 48h before
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), orders[0].FulfillmentDate)
	assert.Equal(t, time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), orders[0].CutoffDatetime)
}

func TestBuildOrdersUsesFirstActiveSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.FulfillmentOptions[1].Schedules[0].Active = false

	sub := &models.Subscription{
		FulfillmentType: catalog.FulfillmentPickup,
		PeriodStart:     testStart,
		TotalOrders:     2,
	}
	orders, schedule, err := env.generator.BuildOrders(sub)
	require.NoError(t, err)

	assert.Equal(t, time.Friday, schedule.DayOfWeek)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), orders[0].FulfillmentDate)
}

func TestBuildOrdersErrors(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.generator.BuildOrders(&models.Subscription{FulfillmentType: "drone", TotalOrders: 4})
	assert.ErrorIs(t, err, ErrInvalidFulfillmentType)

	for i := range env.catalog.FulfillmentOptions[1].Schedules {
		env.catalog.FulfillmentOptions[1].Schedules[i].Active = false
	}
	_, _, err = env.generator.BuildOrders(&models.Subscription{FulfillmentType: catalog.FulfillmentPickup, TotalOrders: 4})
	assert.ErrorIs(t, err, ErrNoSchedulesAvailable)
}

func TestGenerateOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "gen")

	sub := models.Subscription{
		UserID:          user.ID,
		BoxSize:         "small",
		FulfillmentType: catalog.FulfillmentPickup,
		PaymentInterval: 4,
		BoxPrice:        decimal.RequireFromString("25.00"),
		Status:          models.SubscriptionActive,
		PeriodStart:     testStart,
		PeriodEnd:       testStart.AddDate(0, 0, 28),
		TotalOrders:     4,
		RemainingOrders: 4,
	}
	require.NoError(t, env.db.Create(&sub).Error)

	orders, err := env.generator.GenerateOrders(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, orders, 4)

	var stored int64
	env.db.Model(&models.Order{}).Where("subscription_id = ?", sub.ID).Count(&stored)
	assert.Equal(t, int64(4), stored)

	t.Run("schedules reminder and lock per order", func(t *testing.T) {
		// first cutoff is Monday 14:00, so its reminder (Sunday 14:00) already passed
		_, ok := env.scheduler.Get(ReminderKey(orders[0].ID))
		assert.False(t, ok)

		lock, ok := env.scheduler.Get(LockKey(orders[0].ID))
		require.True(t, ok)
		assert.Equal(t, orders[0].CutoffDatetime, lock.RunAt)
		assert.Equal(t, jobs.NewOrderLock(orders[0].ID), lock.Action)

		for _, o := range orders[1:] {
			reminder, ok := env.scheduler.Get(ReminderKey(o.ID))
			require.True(t, ok)
			assert.Equal(t, o.CutoffDatetime.Add(-ReminderLead), reminder.RunAt)
			_, ok = env.scheduler.Get(LockKey(o.ID))
			assert.True(t, ok)
		}
		assert.Equal(t, 7, env.scheduler.Len())
	})

	t.Run("regenerating is idempotent", func(t *testing.T) {
		again, err := env.generator.GenerateOrders(ctx, sub.ID)
		require.NoError(t, err)
		require.Len(t, again, 4)
		for i := range orders {
			assert.Equal(t, orders[i].ID, again[i].ID)
		}
		env.db.Model(&models.Order{}).Where("subscription_id = ?", sub.ID).Count(&stored)
		assert.Equal(t, int64(4), stored)
		assert.Equal(t, 7, env.scheduler.Len())
	})

	t.Run("unknown subscription", func(t *testing.T) {
		_, err := env.generator.GenerateOrders(ctx, 999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("cancelled subscription", func(t *testing.T) {
		require.NoError(t, env.db.Model(&sub).Update("status", models.SubscriptionCancelled).Error)
		_, err := env.generator.GenerateOrders(ctx, sub.ID)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestGenerateOrdersWithoutActiveSchedules(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "nosched")

	for i := range env.catalog.FulfillmentOptions[0].Schedules {
		env.catalog.FulfillmentOptions[0].Schedules[i].Active = false
	}
	sub := models.Subscription{
		UserID:          user.ID,
		BoxSize:         "small",
		FulfillmentType: catalog.FulfillmentDelivery,
		PaymentInterval: 4,
		BoxPrice:        decimal.RequireFromString("25.00"),
		Status:          models.SubscriptionActive,
		PeriodStart:     testStart,
		PeriodEnd:       testStart.AddDate(0, 0, 28),
		TotalOrders:     4,
		RemainingOrders: 4,
	}
	require.NoError(t, env.db.Create(&sub).Error)

	_, err := env.generator.GenerateOrders(context.Background(), sub.ID)
	assert.ErrorIs(t, err, ErrNoSchedulesAvailable)

	var count int64
	env.db.Model(&models.Order{}).Count(&count)
	assert.Zero(t, count)
	assert.Zero(t, env.scheduler.Len())
}
