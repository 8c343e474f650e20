package controllers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCatalog(t *testing.T) {
	app := newTestApp(t)
	router := setupTestRouter()
	router.GET("/api/v1/catalog", app.catalogCtl.GetCatalog)

	w := performRequest(router, http.MethodGet, "/api/v1/catalog", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decode(t, w)["data"].(map[string]interface{})

	boxes := data["box_sizes"].([]interface{})
	require.Len(t, boxes, 2)
	assert.Equal(t, "small", boxes[0].(map[string]interface{})["name"])
	assert.Equal(t, "25.00", boxes[0].(map[string]interface{})["price"])

	intervals := data["payment_intervals"].([]interface{})
	require.Len(t, intervals, 3)
	twelve := intervals[2].(map[string]interface{})
	assert.Equal(t, float64(12), twelve["weeks"])
	assert.Equal(t, []interface{}{"small:22.50", "large:36.00"}, twelve["box_prices"])

	fulfillment := data["fulfillment"].(map[string]interface{})
	pickup := fulfillment["pickup"].([]interface{})
	require.NotEmpty(t, pickup)
	first := pickup[0].(map[string]interface{})
	assert.Equal(t, "Tuesday", first["day_of_week"])
	assert.Equal(t, "14:00", first["time"])
	assert.Equal(t, float64(24), first["cutoff_hours_before"])
	assert.Contains(t, fulfillment, "delivery")

	addons := data["addons"].([]interface{})
	require.Len(t, addons, 3, "flowers are out of season")
	eggs := addons[0].(map[string]interface{})
	assert.Equal(t, "eggs", eggs["name"])
	assert.Equal(t, "6.00", eggs["price"])
}
