package app

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/csa-share-api/controllers"
	"github.com/kendall-kelly/csa-share-api/logger"
	"github.com/kendall-kelly/csa-share-api/middleware"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Router builds the HTTP API
func (a *App) Router() (*gin.Engine, error) {
	if a.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.GinMiddleware(a.Log.Named("http")))
	router.Use(middleware.NewHTTPMetrics(a.Prometheus).Middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", logger.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", logger.RequestIDHeader, "X-RateLimit-Remaining"},
		AllowCredentials: false,
	}))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Prometheus, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		// Public endpoints
		v1.GET("/health", healthCheck)
		v1.GET("/database/status", a.databaseStatus)
		v1.GET("/catalog", controllers.NewCatalogController(a.Catalog).GetCatalog)
	}

	auth, err := middleware.EnsureValidToken(a.Config, a.Log.Named("auth"))
	if err != nil {
		return nil, err
	}

	protected := v1.Group("")
	protected.Use(auth)
	protected.Use(middleware.RateLimit(a.Redis, middleware.DefaultRateLimit, middleware.DefaultRateWindow, a.Log.Named("ratelimit")))
	a.registerRoutes(protected)

	return router, nil
}

func (a *App) registerRoutes(api *gin.RouterGroup) {
	users := controllers.NewUserController(a.DB)
	subscriptions := controllers.NewSubscriptionController(a.DB, a.Subscriptions, a.Orders, a.Payments)
	orders := controllers.NewOrderController(a.DB, a.Orders, a.Addons)
	notifications := controllers.NewNotificationController(a.DB, a.Notifications)
	manifests := controllers.NewManifestController(a.Manifests)

	// User routes
	api.POST("/users", users.CreateUser)
	api.GET("/users/me", users.GetMyProfile)
	api.PUT("/users/me", users.UpdateMyProfile)

	// Subscription routes
	api.POST("/subscriptions", subscriptions.CreateSubscription)
	api.GET("/subscriptions", subscriptions.ListSubscriptions)
	api.GET("/subscriptions/:id", subscriptions.GetSubscription)
	api.GET("/subscriptions/:id/orders", subscriptions.ListSubscriptionOrders)
	api.GET("/subscriptions/:id/payments", subscriptions.ListSubscriptionPayments)
	api.POST("/subscriptions/:id/cancel", subscriptions.CancelSubscription)

	// Order routes
	api.GET("/orders", orders.ListOrders)
	api.GET("/orders/:id", orders.GetOrder)
	api.PUT("/orders/:id", orders.UpdateOrder)
	api.PUT("/orders/:id/addons", orders.UpdateOrderAddons)
	api.POST("/orders/:id/cancel", orders.CancelOrder)

	api.GET("/notifications", notifications.ListNotifications)

	// Farm staff routes
	staff := api.Group("")
	staff.Use(middleware.RequireRole(models.RoleStaff))
	staff.POST("/orders/:id/lock", orders.LockOrder)
	staff.POST("/orders/:id/fulfill", orders.FulfillOrder)
	staff.POST("/fulfillments/:date/manifest", manifests.GenerateManifest)
	staff.DELETE("/fulfillments/:date/manifest/:type", manifests.DeleteManifest)
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "CSA Share API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func (a *App) databaseStatus(c *gin.Context) {
	sqlDB, err := a.DB.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		a.Log.Error("database ping failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	query := "SELECT tablename FROM pg_tables WHERE schemaname = 'public'"
	if a.DB.Dialector.Name() == "sqlite" {
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"
	}

	var tables []string
	if err := a.DB.WithContext(c.Request.Context()).Raw(query).Scan(&tables).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
