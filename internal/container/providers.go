// Package container provides dependency injection and lifecycle management
// for the demande workflow service.
package container

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/dispatcher"
	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/application/service"
	"github.com/garyjia/demande-workflow/internal/application/workflow"
	"github.com/garyjia/demande-workflow/internal/config"
	"github.com/garyjia/demande-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/demande-workflow/internal/infrastructure/messaging/redis"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/memory"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/demande-workflow/internal/infrastructure/worker"
	"github.com/garyjia/demande-workflow/pkg/database"
	"github.com/garyjia/demande-workflow/pkg/utils"
)

const pingTimeout = 5 * time.Second

// DatabaseBundle holds database-related components.
// SQL is nil for the memory driver.
type DatabaseBundle struct {
	SQL          *database.DB
	TxManager    port.TransactionManager
	Repositories port.Repositories
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Demande      service.DemandeService
	Notification service.NotificationService
}

// ProvideDatabase opens the configured store. For SQLite it also applies
// pending migrations before building the repositories.
func ProvideDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Driver {
	case config.DriverMemory:
		store := memory.NewStore()
		logger.Info("Using in-memory store")
		return &DatabaseBundle{
			TxManager:    store,
			Repositories: store.Repositories(),
		}, nil

	case config.DriverSQLite:
		db, err := OpenSQLite(cfg, logger)
		if err != nil {
			return nil, err
		}
		if _, err := database.NewMigrator(db, logger).Run(ctx, database.Migrations()); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		txManager := sqlite.NewDB(db, logger)
		return &DatabaseBundle{
			SQL:          db,
			TxManager:    txManager,
			Repositories: repository.NewRepositories(txManager, logger),
		}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenSQLite opens the SQLite database without migrating it
func OpenSQLite(cfg config.DatabaseConfig, logger *zap.Logger) (*database.DB, error) {
	return database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
}

// Migrate applies pending migrations and returns how many ran
func Migrate(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (int, error) {
	if cfg.Driver != config.DriverSQLite {
		return 0, fmt.Errorf("migrations only apply to the %s driver", config.DriverSQLite)
	}
	db, err := OpenSQLite(cfg, logger)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return database.NewMigrator(db, logger).Run(ctx, database.Migrations())
}

// ProvideMessenger creates the Lark chat sender, or nil when Lark is disabled.
func ProvideMessenger(cfg config.LarkConfig, logger *zap.Logger) port.MessageSender {
	if !cfg.Enabled {
		return nil
	}
	client := lark.NewClient(lark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
	}, logger)
	return lark.NewMessenger(client, logger)
}

// ProvidePublisher connects the Redis event publisher, or returns nil when disabled.
// The broker must answer a ping at startup.
func ProvidePublisher(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client := redis.NewClient(redis.Config{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	publisher := redis.NewPublisher(client, cfg.Channel, logger)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := publisher.Ping(pingCtx); err != nil {
		_ = publisher.Close()
		return nil, err
	}
	return publisher, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger)))
}

// ProvideWorkflowEngine creates the workflow engine on the given store
func ProvideWorkflowEngine(db *DatabaseBundle, disp dispatcher.Dispatcher, logger *zap.Logger) workflow.Engine {
	return workflow.NewEngine(db.Repositories, db.TxManager,
		workflow.WithDispatcher(disp),
		workflow.WithLogger(utils.NewKVLogger(logger)),
	)
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Database   *DatabaseBundle
	Dispatcher dispatcher.Dispatcher
	Messenger  port.MessageSender
	Publisher  port.EventPublisher
	Logger     *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// notification handlers on the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Database == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	serviceLogger := utils.NewKVLogger(deps.Logger)
	repos := deps.Database.Repositories

	notifications := service.NewNotificationService(
		repos.Users,
		repos.Demandes,
		deps.Messenger,
		deps.Publisher,
		serviceLogger,
	)
	notifications.Register(deps.Dispatcher)

	return &ServiceBundle{
		Demande: service.NewDemandeService(
			repos,
			deps.Database.TxManager,
			deps.Dispatcher,
			serviceLogger,
		),
		Notification: notifications,
	}, nil
}

// ProvideWorkers creates the worker manager with every enabled worker registered.
func ProvideWorkers(cfg config.ReminderConfig, repos port.Repositories, disp dispatcher.Dispatcher, logger *zap.Logger) (*worker.WorkerManager, error) {
	manager := worker.NewWorkerManager(logger)

	if cfg.Enabled {
		reminderCfg := worker.DefaultReminderConfig()
		reminderCfg.Interval = cfg.Interval
		reminderCfg.StaleAfter = cfg.StaleAfter
		if cfg.BatchSize > 0 {
			reminderCfg.BatchSize = cfg.BatchSize
		}
		if err := manager.Register(worker.NewReminderWorker(reminderCfg, repos.Demandes, disp, logger)); err != nil {
			return nil, err
		}
	}

	return manager, nil
}
