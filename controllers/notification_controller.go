package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/csa-share-api/services"
	"gorm.io/gorm"
)

type NotificationController struct {
	db            *gorm.DB
	notifications *services.NotificationService
}

func NewNotificationController(db *gorm.DB, notifications *services.NotificationService) *NotificationController {
	return &NotificationController{db: db, notifications: notifications}
}

// ListNotifications handles GET /api/v1/notifications - newest first
func (nc *NotificationController) ListNotifications(c *gin.Context) {
	user, ok := currentUser(c, nc.db)
	if !ok {
		return
	}

	limit, offset, page := pagination(c)
	list, err := nc.notifications.ListUserNotifications(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    list,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
		},
	})
}
