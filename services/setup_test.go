package services

import (
	"testing"
	"time"

	"github.com/kendall-kelly/csa-share-api/catalog"
	"github.com/kendall-kelly/csa-share-api/clock"
	"github.com/kendall-kelly/csa-share-api/jobs"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Monday 2024-03-04 09:00 UTC
var testStart = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	db            *gorm.DB
	clock         *clock.Mock
	scheduler     *jobs.MockScheduler
	catalog       *catalog.Catalog
	cutoffs       *CutoffScheduler
	generator     *OrderGenerator
	orders        *OrderService
	subscriptions *SubscriptionService
	processor     *MockPaymentProcessor
	payments      *PaymentService
	channel       *MockChannel
	notifications *NotificationService
	addons        *AddonService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every pooled connection to :memory: would get its own empty database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.AutoMigrate(db))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	clk := clock.NewMock(testStart)
	sched := jobs.NewMockScheduler()
	cat := catalog.Default()
	log := zap.NewNop()

	cutoffs := NewCutoffScheduler(sched, clk, log)
	generator := NewOrderGenerator(db, cat, cutoffs, time.UTC, log)
	processor := NewMockPaymentProcessor()
	channel := NewMockChannel()

	return &testEnv{
		db:            db,
		clock:         clk,
		scheduler:     sched,
		catalog:       cat,
		cutoffs:       cutoffs,
		generator:     generator,
		orders:        NewOrderService(db, sched, clk, log),
		subscriptions: NewSubscriptionService(db, cat, generator, sched, clk, log),
		processor:     processor,
		payments:      NewPaymentService(db, processor, sched, clk, log),
		channel:       channel,
		notifications: NewNotificationService(db, channel, clk, log),
		addons:        NewAddonService(db, cat, clk, log),
	}
}

func (e *testEnv) createUser(t *testing.T, subject string) *models.User {
	t.Helper()
	user := &models.User{
		Subject: subject,
		Name:    "Member " + subject,
		Email:   subject + "@example.com",
		Phone:   "555-0100",
		Address: "1 Farm Lane",
		Role:    models.RoleMember,
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) subscribe(t *testing.T, userID uint, fulfillmentType string, weeks int) (*models.Subscription, []models.Order) {
	t.Helper()
	sub, orders, err := e.subscriptions.CreateSubscription(t.Context(), userID, CreateSubscriptionRequest{
		BoxSize:         "small",
		FulfillmentType: fulfillmentType,
		PaymentInterval: weeks,
		PaymentMethodID: "pm_card_visa",
	})
	require.NoError(t, err)
	return sub, orders
}

func (e *testEnv) reloadSubscription(t *testing.T, id uint) models.Subscription {
	t.Helper()
	var sub models.Subscription
	require.NoError(t, e.db.First(&sub, id).Error)
	return sub
}

func (e *testEnv) reloadOrder(t *testing.T, id uint) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, e.db.First(&order, id).Error)
	return order
}
