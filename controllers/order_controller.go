package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/kendall-kelly/csa-share-api/services"
	"gorm.io/gorm"
)

// UpdateOrderRequest represents the request body for changing an order
type UpdateOrderRequest struct {
	Notes *string `json:"notes" binding:"required"`
}

// AddonLine is one add-on in an UpdateOrderAddonsRequest
type AddonLine struct {
	Name     string `json:"name" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=10"`
}

// UpdateOrderAddonsRequest replaces an order's add-ons. An empty list clears them.
type UpdateOrderAddonsRequest struct {
	Addons []AddonLine `json:"addons" binding:"required,dive"`
}

type OrderController struct {
	db     *gorm.DB
	orders *services.OrderService
	addons *services.AddonService
}

func NewOrderController(db *gorm.DB, orders *services.OrderService, addons *services.AddonService) *OrderController {
	return &OrderController{db: db, orders: orders, addons: addons}
}

// ListOrders handles GET /api/v1/orders - lists the caller's orders with
// optional ?status= filter and pagination
func (oc *OrderController) ListOrders(c *gin.Context) {
	user, ok := currentUser(c, oc.db)
	if !ok {
		return
	}

	status := models.OrderStatus(c.Query("status"))
	switch status {
	case "", models.OrderPending, models.OrderLocked, models.OrderFulfilled, models.OrderCancelled:
	default:
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid status filter")
		return
	}

	limit, offset, page := pagination(c)
	orders, err := oc.orders.ListUserOrders(c.Request.Context(), user.ID, services.OrderListOptions{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
		},
	})
}

// GetOrder handles GET /api/v1/orders/:id
func (oc *OrderController) GetOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, ok := currentUser(c, oc.db)
	if !ok {
		return
	}

	order, err := oc.orders.GetOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if order.UserID != user.ID && !user.IsStaff() {
		respondError(c, http.StatusForbidden, services.CodeForbidden, "You do not have access to this order")
		return
	}
	respondData(c, http.StatusOK, order)
}

// UpdateOrder handles PUT /api/v1/orders/:id - changes notes before the cutoff
func (oc *OrderController) UpdateOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	user, ok := currentUser(c, oc.db)
	if !ok {
		return
	}

	order, err := oc.orders.UpdateOrderNotes(c.Request.Context(), id, user.ID, *req.Notes)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// UpdateOrderAddons handles PUT /api/v1/orders/:id/addons - picks this
// week's add-ons before the cutoff
func (oc *OrderController) UpdateOrderAddons(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req UpdateOrderAddonsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}
	user, ok := currentUser(c, oc.db)
	if !ok {
		return
	}

	selections := make([]services.AddonSelection, 0, len(req.Addons))
	for _, line := range req.Addons {
		selections = append(selections, services.AddonSelection{Name: line.Name, Quantity: line.Quantity})
	}

	order, err := oc.addons.SetOrderAddons(c.Request.Context(), id, user.ID, selections)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// CancelOrder handles POST /api/v1/orders/:id/cancel
func (oc *OrderController) CancelOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, ok := currentUser(c, oc.db)
	if !ok {
		return
	}

	order, err := oc.orders.CancelOrder(c.Request.Context(), id, user.ID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// LockOrder handles POST /api/v1/orders/:id/lock (staff)
func (oc *OrderController) LockOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := oc.orders.LockOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}

// FulfillOrder handles POST /api/v1/orders/:id/fulfill (staff)
func (oc *OrderController) FulfillOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := oc.orders.FulfillOrder(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusOK, order)
}
