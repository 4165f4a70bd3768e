package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/PortNumber53/storefront/backend/internal/checkout"
	"github.com/PortNumber53/storefront/backend/internal/config"
	"github.com/PortNumber53/storefront/backend/internal/events"
	"github.com/PortNumber53/storefront/backend/internal/httpserver"
	"github.com/PortNumber53/storefront/backend/internal/inventory"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/membership"
	"github.com/PortNumber53/storefront/backend/internal/migrations"
	"github.com/PortNumber53/storefront/backend/internal/pricing"
	"github.com/PortNumber53/storefront/backend/internal/settings"
	"github.com/PortNumber53/storefront/backend/internal/store"
	"github.com/PortNumber53/storefront/backend/internal/worker"
)

func main() {
	// Best-effort: load environment variables from .env-style files in local
	// development. These calls are safe to ignore in production environments.
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.Logger) error {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	logDBTarget(log, "primary", cfg.DatabaseURL)
	configureDB(db, cfg)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrationsWithDirtyFix(db, log); err != nil {
		return fmt.Errorf("apply database migrations: %w", err)
	}

	st, err := store.New(db)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	jobStore, err := store.NewJobStore(db)
	if err != nil {
		return fmt.Errorf("create job store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broadcaster := events.NewBroadcaster(log)
	defer broadcaster.Close()
	if cfg.RedisAddr != "" {
		relay, err := events.NewRedisRelay(ctx, cfg.RedisAddr, cfg.RedisChannel, log)
		if err != nil {
			return fmt.Errorf("connect event relay: %w", err)
		}
		defer relay.Close()
		if err := broadcaster.UseRelay(ctx, relay); err != nil {
			return fmt.Errorf("start event relay: %w", err)
		}
		log.Info("event relay enabled", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}

	jobWorker := worker.New(worker.Config{MaxConcurrent: cfg.WorkerConcurrency}, jobStore, log)
	worker.RegisterNotificationJobs(jobWorker, worker.LogMailer{Log: log})
	notifications := worker.NewNotifications(jobWorker)

	settingsProvider := settings.NewProvider(st, broadcaster, log)
	discounts := membership.NewDiscounts(cfg.MonthlyDiscountPercent, cfg.YearlyDiscountPercent)
	memberships := membership.NewService(st, discounts, broadcaster, log)
	engine := pricing.NewEngine(discounts, settingsProvider)

	ledger := inventory.NewLedger(st, broadcaster, cfg.LowStockThreshold, log)
	ledger.SetAlerter(notifications)

	coordinator, err := checkout.NewCoordinator(checkout.Deps{
		Store:     st,
		Engine:    engine,
		Ledger:    ledger,
		Settings:  settingsProvider,
		Publisher: broadcaster,
		Notifier:  notifications,
		TxTimeout: cfg.CheckoutTxTimeout,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("create checkout coordinator: %w", err)
	}

	srv := httpserver.New(cfg, httpserver.Deps{
		DB:          db,
		Checkout:    coordinator,
		Stock:       ledger,
		Settings:    settingsProvider,
		Memberships: memberships,
		Jobs:        jobWorker,
		Events:      broadcaster,
		Logger:      log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return jobWorker.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		// Ends open event streams so Shutdown does not wait on them.
		broadcaster.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("graceful shutdown failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func configureDB(db *sql.DB, cfg config.Config) {
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
}

func runMigrationsWithDirtyFix(db *sql.DB, log *logger.Logger) error {
	err := migrations.Up(db, log)
	if err == nil {
		return nil
	}

	var dirty migrate.ErrDirty
	if !errors.As(err, &dirty) {
		return err
	}
	log.Warn("migrations: dirty database detected, attempting to fix", "version", dirty.Version)
	if fixErr := migrations.FixDirtyDatabase(db, log); fixErr != nil {
		log.Error("migrations: failed to fix dirty database", "error", fixErr)
		return err
	}
	return migrations.Up(db, log)
}

func logDBTarget(log *logger.Logger, name, dsn string) {
	// Avoid logging secrets: only log hostname + database path.
	u, err := url.Parse(dsn)
	if err != nil {
		log.Info("db configured", "name", name, "dsn_error", err)
		return
	}
	log.Info("db configured", "name", name, "host", u.Hostname(), "db", strings.TrimPrefix(u.Path, "/"))
}
