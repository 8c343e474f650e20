// Package app wires configuration, storage and services into the HTTP
// server and the background worker.
package app

import (
	"context"
	"fmt"

	"github.com/kendall-kelly/csa-share-api/catalog"
	"github.com/kendall-kelly/csa-share-api/clock"
	"github.com/kendall-kelly/csa-share-api/config"
	"github.com/kendall-kelly/csa-share-api/jobs"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/kendall-kelly/csa-share-api/services"
	"github.com/kendall-kelly/csa-share-api/workers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App holds every long-lived dependency of the process
type App struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      redis.UniversalClient
	Log        *zap.Logger
	Clock      clock.Clock
	Catalog    *catalog.Catalog
	Registry   *jobs.Registry
	Metrics    *jobs.Metrics
	Prometheus *prometheus.Registry

	Orders        *services.OrderService
	Addons        *services.AddonService
	Subscriptions *services.SubscriptionService
	Payments      *services.PaymentService
	Notifications *services.NotificationService
	Manifests     *services.ManifestService

	channel services.NotificationChannel
}

// Options overrides the external collaborators New would otherwise build
// from configuration. Zero fields fall back to the configured defaults.
type Options struct {
	Clock     clock.Clock
	Catalog   *catalog.Catalog
	Processor services.PaymentProcessor
	Channel   services.NotificationChannel
	Storage   services.S3Interface
	Registry  *prometheus.Registry
}

// New builds the service graph on an open database and redis connection
func New(ctx context.Context, cfg *config.Config, db *gorm.DB, rdb redis.UniversalClient, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}

	cat := opts.Catalog
	if cat == nil {
		var err error
		cat, err = loadCatalog(cfg)
		if err != nil {
			return nil, err
		}
	}

	promRegistry := opts.Registry
	if promRegistry == nil {
		promRegistry = prometheus.NewRegistry()
		promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	metrics := jobs.NewMetrics(promRegistry)

	registry, err := jobs.NewRegistry(rdb, jobs.DefaultQueueSpecs(), nil, metrics, log.Named("jobs"))
	if err != nil {
		return nil, fmt.Errorf("failed to create job registry: %w", err)
	}

	processor := opts.Processor
	if processor == nil {
		if cfg.StripeSecretKey != "" {
			processor = services.NewStripeProcessor(cfg.StripeSecretKey)
		} else {
			log.Warn("STRIPE_SECRET_KEY not set, payments are simulated")
			processor = services.NewMockPaymentProcessor()
		}
	}

	channel := opts.Channel
	if channel == nil {
		if len(cfg.KafkaBrokers) > 0 {
			channel = services.NewKafkaChannel(cfg.KafkaBrokers, cfg.KafkaTopic)
		} else {
			channel = services.NewLogChannel(log.Named("notifications"))
		}
	}

	storage := opts.Storage
	if storage == nil && cfg.AWSS3Bucket != "" {
		s3, err := services.NewS3Service(ctx, cfg)
		if err != nil {
			return nil, err
		}
		storage = s3
	}

	cutoffs := services.NewCutoffScheduler(registry, clk, log.Named("cutoffs"))
	generator := services.NewOrderGenerator(db, cat, cutoffs, cfg.Location(), log.Named("generator"))
	orders := services.NewOrderService(db, registry, clk, log.Named("orders"))

	a := &App{
		Config:        cfg,
		DB:            db,
		Redis:         rdb,
		Log:           log,
		Clock:         clk,
		Catalog:       cat,
		Registry:      registry,
		Metrics:       metrics,
		Prometheus:    promRegistry,
		Orders:        orders,
		Addons:        services.NewAddonService(db, cat, clk, log.Named("addons")),
		Subscriptions: services.NewSubscriptionService(db, cat, generator, registry, clk, log.Named("subscriptions")),
		Payments:      services.NewPaymentService(db, processor, registry, clk, log.Named("payments")),
		Notifications: services.NewNotificationService(db, channel, clk, log.Named("notifications")),
		channel:       channel,
	}
	if storage != nil {
		a.Manifests = services.NewManifestService(orders, storage, log.Named("manifests"))
	}
	return a, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.CatalogFile == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(cfg.CatalogFile)
}

// Migrate creates or updates the schema
func (a *App) Migrate() error {
	return models.AutoMigrate(a.DB)
}

// Dispatcher routes queued actions to the services
func (a *App) Dispatcher() *workers.Dispatcher {
	return workers.NewDispatcher(a.Orders, a.Payments, a.Notifications, a.Log.Named("dispatcher"))
}

// WorkerPool returns a pool that runs every queue through the dispatcher
func (a *App) WorkerPool() *jobs.WorkerPool {
	return jobs.NewWorkerPool(a.Registry, a.Dispatcher(), jobs.WorkerConfig{
		PollInterval: a.Config.WorkerPollInterval,
		Now:          a.Clock.Now,
	}, a.Metrics, a.Log.Named("worker"))
}

// Close releases the registry and notification channel
func (a *App) Close() error {
	var firstErr error
	if err := a.Registry.Close(); err != nil {
		firstErr = err
	}
	if closer, ok := a.channel.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
