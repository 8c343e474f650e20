package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/csa-share-api/services"
)

// GenerateManifestRequest selects which fulfillment run to print
type GenerateManifestRequest struct {
	FulfillmentType string `json:"fulfillment_type" binding:"required,oneof=delivery pickup"`
}

type ManifestController struct {
	manifests *services.ManifestService
}

func NewManifestController(manifests *services.ManifestService) *ManifestController {
	return &ManifestController{manifests: manifests}
}

// GenerateManifest handles POST /api/v1/fulfillments/:date/manifest (staff)
func (mc *ManifestController) GenerateManifest(c *gin.Context) {
	date, err := time.Parse(time.DateOnly, c.Param("date"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_DATE", "Date must be formatted YYYY-MM-DD")
		return
	}

	var req GenerateManifestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	if mc.manifests == nil {
		respondError(c, http.StatusServiceUnavailable, "STORAGE_NOT_CONFIGURED", "Manifest storage is not configured")
		return
	}

	manifest, err := mc.manifests.GenerateManifest(c.Request.Context(), date, req.FulfillmentType)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondData(c, http.StatusCreated, manifest)
}

// DeleteManifest handles DELETE /api/v1/fulfillments/:date/manifest/:type (staff)
func (mc *ManifestController) DeleteManifest(c *gin.Context) {
	date, err := time.Parse(time.DateOnly, c.Param("date"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_DATE", "Date must be formatted YYYY-MM-DD")
		return
	}
	if mc.manifests == nil {
		respondError(c, http.StatusServiceUnavailable, "STORAGE_NOT_CONFIGURED", "Manifest storage is not configured")
		return
	}

	if err := mc.manifests.DeleteManifest(c.Request.Context(), date, c.Param("type")); err != nil {
		if services.CodeOf(err) == services.CodeInvalidFulfillmentType {
			respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
			return
		}
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Manifest deleted"})
}
