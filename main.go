package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kendall-kelly/csa-share-api/app"
	"github.com/kendall-kelly/csa-share-api/config"
	"github.com/kendall-kelly/csa-share-api/logger"
	"github.com/kendall-kelly/csa-share-api/workers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "csa-share-api",
		Short:         "Farm share subscriptions, weekly orders and fulfillment",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCmd(), newWorkerCmd(), newMigrateCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return serve(ctx, a, withWorker)
			})
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also process queued jobs in this process")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process reminders, cutoffs, payments and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), work)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return nil
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// run loads configuration, connects to storage, migrates and hands the
// wired application to fn. fn's context is cancelled on SIGINT or SIGTERM.
func run(parent context.Context, fn func(context.Context, *app.App) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	db, err := config.ConnectDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	rdb, err := config.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	a, err := app.New(ctx, cfg, db, rdb, log, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("failed to close application", zap.Error(err))
		}
	}()

	if err := a.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info("database migration completed successfully")

	return fn(ctx, a)
}

func serve(ctx context.Context, a *app.App, withWorker bool) error {
	router, err := a.Router()
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Log.Info("server is running", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.Log.Info("shutting down server")
		return server.Shutdown(shutdownCtx)
	})
	if withWorker {
		g.Go(func() error { return work(ctx, a) })
	}
	return g.Wait()
}

// work runs the job workers and the overdue order sweeper until ctx ends
func work(ctx context.Context, a *app.App) error {
	pool := a.WorkerPool()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Start(ctx) })
	g.Go(func() error {
		workers.RunSweeper(ctx, a.Orders, time.Minute, a.Log.Named("sweeper"))
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return pool.Stop(stopCtx)
	})
	return g.Wait()
}
