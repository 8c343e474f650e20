package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/kendall-kelly/csa-share-api/services"
	"gorm.io/gorm"
)

// CreateSubscriptionRequest represents the request body for buying a share
type CreateSubscriptionRequest struct {
	BoxSize         string `json:"box_size" binding:"required"`
	FulfillmentType string `json:"fulfillment_type" binding:"required"`
	PaymentInterval int    `json:"payment_interval" binding:"required,gt=0"`
	PaymentMethodID string `json:"payment_method_id" binding:"omitempty"`
}

type SubscriptionController struct {
	db            *gorm.DB
	subscriptions *services.SubscriptionService
	orders        *services.OrderService
	payments      *services.PaymentService
}

func NewSubscriptionController(db *gorm.DB, subscriptions *services.SubscriptionService, orders *services.OrderService, payments *services.PaymentService) *SubscriptionController {
	return &SubscriptionController{db: db, subscriptions: subscriptions, orders: orders, payments: payments}
}

// CreateSubscription handles POST /api/v1/subscriptions - buys a share and
// generates every order of its term
func (sc *SubscriptionController) CreateSubscription(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	user, ok := currentUser(c, sc.db)
	if !ok {
		return
	}

	sub, orders, err := sc.subscriptions.CreateSubscription(c.Request.Context(), user.ID, services.CreateSubscriptionRequest{
		BoxSize:         req.BoxSize,
		FulfillmentType: req.FulfillmentType,
		PaymentInterval: req.PaymentInterval,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	sub.Orders = orders
	respondData(c, http.StatusCreated, sub)
}

// ListSubscriptions handles GET /api/v1/subscriptions
func (sc *SubscriptionController) ListSubscriptions(c *gin.Context) {
	user, ok := currentUser(c, sc.db)
	if !ok {
		return
	}

	subs, err := sc.subscriptions.ListUserSubscriptions(c.Request.Context(), user.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, subs)
}

// GetSubscription handles GET /api/v1/subscriptions/:id
func (sc *SubscriptionController) GetSubscription(c *gin.Context) {
	sub, ok := sc.ownedSubscription(c)
	if !ok {
		return
	}
	respondData(c, http.StatusOK, sub)
}

// ListSubscriptionOrders handles GET /api/v1/subscriptions/:id/orders
func (sc *SubscriptionController) ListSubscriptionOrders(c *gin.Context) {
	sub, ok := sc.ownedSubscription(c)
	if !ok {
		return
	}

	orders, err := sc.orders.ListSubscriptionOrders(c.Request.Context(), sub.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, orders)
}

// ListSubscriptionPayments handles GET /api/v1/subscriptions/:id/payments
func (sc *SubscriptionController) ListSubscriptionPayments(c *gin.Context) {
	sub, ok := sc.ownedSubscription(c)
	if !ok {
		return
	}

	payments, err := sc.payments.ListSubscriptionPayments(c.Request.Context(), sub.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, payments)
}

// CancelSubscription handles POST /api/v1/subscriptions/:id/cancel
func (sc *SubscriptionController) CancelSubscription(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, ok := currentUser(c, sc.db)
	if !ok {
		return
	}

	sub, err := sc.subscriptions.CancelSubscription(c.Request.Context(), id, user.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, sub)
}

// ownedSubscription loads the path's subscription if the caller owns it or is staff
func (sc *SubscriptionController) ownedSubscription(c *gin.Context) (*models.Subscription, bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}
	user, ok := currentUser(c, sc.db)
	if !ok {
		return nil, false
	}

	sub, err := sc.subscriptions.GetSubscription(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}
	if sub.UserID != user.ID && !user.IsStaff() {
		respondError(c, http.StatusForbidden, services.CodeForbidden, "You do not have access to this subscription")
		return nil, false
	}
	return sub, true
}
