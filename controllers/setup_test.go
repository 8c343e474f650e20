package controllers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/csa-share-api/catalog"
	"github.com/kendall-kelly/csa-share-api/clock"
	"github.com/kendall-kelly/csa-share-api/jobs"
	"github.com/kendall-kelly/csa-share-api/middleware"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/kendall-kelly/csa-share-api/services"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Monday 2024-03-04 09:00 UTC
var testNow = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type testApp struct {
	db        *gorm.DB
	clock     *clock.Mock
	scheduler *jobs.MockScheduler
	storage   *services.MockS3Service
	orders    *services.OrderService
	subs      *services.SubscriptionService
	payments  *services.PaymentService
	processor *services.MockPaymentProcessor
	notifier  *services.NotificationService
	channel   *services.MockChannel

	users         *UserController
	subscriptions *SubscriptionController
	orderCtl      *OrderController
	catalogCtl    *CatalogController
	notifications *NotificationController
	manifests     *ManifestController
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db := setupTestDB(t)
	clk := clock.NewMock(testNow)
	sched := jobs.NewMockScheduler()
	cat := catalog.Default()
	log := zap.NewNop()

	cutoffs := services.NewCutoffScheduler(sched, clk, log)
	generator := services.NewOrderGenerator(db, cat, cutoffs, time.UTC, log)
	orders := services.NewOrderService(db, sched, clk, log)
	subs := services.NewSubscriptionService(db, cat, generator, sched, clk, log)
	processor := services.NewMockPaymentProcessor()
	payments := services.NewPaymentService(db, processor, sched, clk, log)
	channel := services.NewMockChannel()
	notifier := services.NewNotificationService(db, channel, clk, log)
	storage := services.NewMockS3Service()
	manifests := services.NewManifestService(orders, storage, log)

	return &testApp{
		db:            db,
		clock:         clk,
		scheduler:     sched,
		storage:       storage,
		orders:        orders,
		subs:          subs,
		payments:      payments,
		processor:     processor,
		notifier:      notifier,
		channel:       channel,
		users:         NewUserController(db),
		subscriptions: NewSubscriptionController(db, subs, orders, payments),
		orderCtl:      NewOrderController(db, orders, services.NewAddonService(db, cat, clk, log)),
		catalogCtl:    NewCatalogController(cat),
		notifications: NewNotificationController(db, notifier),
		manifests:     NewManifestController(manifests),
	}
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	return router
}

// mockAuthMiddleware stores claims the same way the real JWT middleware does
func mockAuthMiddleware(subject, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", subject)
		c.Set("validated_claims", &validator.ValidatedClaims{
			RegisteredClaims: validator.RegisteredClaims{Subject: subject},
			CustomClaims:     &middleware.CustomClaims{Role: role},
		})
		c.Next()
	}
}

func (a *testApp) createUser(t *testing.T, subject, role string) *models.User {
	t.Helper()
	user := &models.User{
		Subject: subject,
		Name:    "User " + subject,
		Email:   subject + "@example.com",
		Role:    role,
	}
	require.NoError(t, a.db.Create(user).Error)
	return user
}

func (a *testApp) subscribe(t *testing.T, userID uint, weeks int) (*models.Subscription, []models.Order) {
	t.Helper()
	sub, orders, err := a.subs.CreateSubscription(t.Context(), userID, services.CreateSubscriptionRequest{
		BoxSize:         "small",
		FulfillmentType: catalog.FulfillmentPickup,
		PaymentInterval: weeks,
	})
	require.NoError(t, err)
	return sub, orders
}

func performRequest(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	return response
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	response := decode(t, w)
	errObj, ok := response["error"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	return errObj["code"].(string)
}
