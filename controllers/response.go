package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/csa-share-api/logger"
	"github.com/kendall-kelly/csa-share-api/middleware"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/kendall-kelly/csa-share-api/services"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// respondServiceError maps a service failure to its HTTP status. Errors
// without a domain code are reported as internal without leaking details.
func respondServiceError(c *gin.Context, err error) {
	var se *services.ServiceError
	if !errors.As(err, &se) {
		_ = c.Error(err)
		logger.FromContext(c.Request.Context()).Error("request failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	status := http.StatusInternalServerError
	switch se.Code {
	case services.CodeNotFound:
		status = http.StatusNotFound
	case services.CodeForbidden:
		status = http.StatusForbidden
	case services.CodeInvalidState, services.CodePreconditionFailed, services.CodeEditWindowClosed:
		status = http.StatusConflict
	case services.CodeValidation:
		status = http.StatusBadRequest
	case services.CodeInvalidFulfillmentType, services.CodeNoSchedulesAvailable:
		// the catalog cannot serve a request it accepted
		status = http.StatusInternalServerError
	}
	respondError(c, status, se.Code, se.Message)
}

func respondValidation(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

func respondData(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// currentUser loads the profile of the token's subject. It writes the error
// response and returns false when there is none.
func currentUser(c *gin.Context, db *gorm.DB) (*models.User, bool) {
	subject, err := middleware.GetUserID(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not extract user information")
		return nil, false
	}

	var user models.User
	if err := db.WithContext(c.Request.Context()).Where("subject = ?", subject).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "USER_NOT_FOUND", "User profile not found. Please create a profile first.")
			return nil, false
		}
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to load user profile")
		return nil, false
	}
	return &user, true
}

func pathID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// pagination reads ?page= and ?limit= the way list endpoints accept them
func pagination(c *gin.Context) (limit, offset, page int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return limit, (page - 1) * limit, page
}
