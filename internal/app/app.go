package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	filestore "github.com/syncwavelabs/syncwave/internal/adapter/repository/file"
	"github.com/syncwavelabs/syncwave/internal/adapter/repository/postgres"
	"github.com/syncwavelabs/syncwave/internal/api"
	"github.com/syncwavelabs/syncwave/internal/config"
	"github.com/syncwavelabs/syncwave/internal/coordinator"
	"github.com/syncwavelabs/syncwave/internal/domain/action"
	"github.com/syncwavelabs/syncwave/internal/executor"
	"github.com/syncwavelabs/syncwave/internal/queue"
	"github.com/syncwavelabs/syncwave/internal/reachability"
	"github.com/syncwavelabs/syncwave/internal/version"
	"github.com/syncwavelabs/syncwave/pkg/db"
	zaplog "github.com/syncwavelabs/syncwave/pkg/log"
	"github.com/syncwavelabs/syncwave/pkg/snowflake"
	"github.com/syncwavelabs/syncwave/pkg/syncclient"
	"github.com/syncwavelabs/syncwave/sql/migrations"
)

// RunServer starts the HTTP server and background workers.
func RunServer() {
	app := fx.New(
		fx.Provide(
			// Config
			config.Load,

			// Infrastructure (Adapters)
			syncclient.NewFromEnv,
			newStore,
			newMonitor,
			newCoordinator,

			fx.Annotate(
				executor.NewHTTPExecutor,
				fx.As(new(action.Executor)),
			),

			// Services
			queue.NewService,
			version.NewRegistry,
			newNotifier,

			// API
			api.NewRouter,
		),
		db.Module,        // Database Module
		snowflake.Module, // Snowflake ID Module
		zaplog.Module,    // Logger Module
		fx.Invoke(registerHooks),
	)

	app.Run()
}

// RunMigrations executes database migrations (up or down).
func RunMigrations(command string) error {
	if command == "" {
		command = "up"
	}

	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting database migration...", zap.String("command", command))

	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration files: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("Migration up applied")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("Migration down applied")
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}

	return nil
}

func registerHooks(
	lc fx.Lifecycle,
	router *api.Router,
	coord *coordinator.Coordinator,
	monitor *reachability.Monitor,
	notifier *version.Notifier,
	cfg *config.Config,
	logger *zap.Logger,
) {
	var monitorCancel context.CancelFunc
	var coordCancel context.CancelFunc
	var notifierCancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server", zap.String("port", cfg.Port))

			monitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			monitorCancel = cancel
			go monitor.Run(monitorCtx)

			coordCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			coordCancel = cancel
			go coord.Run(coordCtx)

			notifierCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			notifierCancel = cancel
			go notifier.Run(notifierCtx)

			notifier.MarkReady()

			go func() {
				if err := router.Run(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed to start", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server gracefully...")

			if monitorCancel != nil {
				monitorCancel()
			}
			if coordCancel != nil {
				coordCancel()
			}
			if notifierCancel != nil {
				notifierCancel()
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := router.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", zap.Error(err))
				return err
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		},
	})
}

// newStore selects the queue store backend.
func newStore(cfg *config.Config, gdb *gorm.DB, logger *zap.Logger) (action.Store, error) {
	switch cfg.StoreBackend {
	case "file":
		return filestore.NewStore(cfg.StorePath, logger)
	case "postgres":
		return postgres.NewRepository(gdb), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

func newMonitor(cfg *config.Config, client *syncclient.Client, logger *zap.Logger) *reachability.Monitor {
	return reachability.NewMonitor(client, cfg.ProbeInterval, logger)
}

func newCoordinator(
	cfg *config.Config,
	store action.Store,
	exec action.Executor,
	monitor *reachability.Monitor,
	logger *zap.Logger,
) *coordinator.Coordinator {
	opts := coordinator.Options{
		MaxAttempts:  cfg.MaxAttempts,
		BaseDelay:    cfg.RetryBaseDelay,
		CapDelay:     cfg.RetryCapDelay,
		MaxInFlight:  cfg.MaxInFlight,
		PollInterval: cfg.DrainPollInterval,
		BatchSize:    cfg.DrainBatchSize,
	}
	return coordinator.NewCoordinator(store, exec, monitor, opts, logger)
}

func newNotifier(cfg *config.Config, registry *version.Registry, logger *zap.Logger) *version.Notifier {
	return version.NewNotifier(registry, cfg.AppVersion, cfg.UpdateCheckInterval, logger)
}
