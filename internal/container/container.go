package container

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/dispatcher"
	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/application/workflow"
	"github.com/garyjia/demande-workflow/internal/config"
	"github.com/garyjia/demande-workflow/internal/infrastructure/messaging/redis"
	"github.com/garyjia/demande-workflow/internal/infrastructure/worker"
	httpif "github.com/garyjia/demande-workflow/internal/interfaces/http"
)

// Container owns the demande service's components. Start builds them in
// dependency order; Close tears them down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	database *DatabaseBundle

	// optional notification sinks, nil when disabled
	messenger port.MessageSender
	publisher *redis.Publisher

	dispatcher dispatcher.Dispatcher
	engine     workflow.Engine
	services   *ServiceBundle
	workers    *worker.WorkerManager

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus is the per-component report served by Health.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates cfg. Nothing is opened until Start.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start opens the store, connects the enabled sinks, wires the engine and
// services, then starts the workers. A failing step undoes the earlier ones.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return errors.New("container has been closed")
	}
	if c.ready.Load() {
		return errors.New("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting demande workflow container")

	steps := []struct {
		name string
		init func() error
	}{
		{"database", c.initDatabase},
		{"notification sinks", c.initSinks},
		{"dispatcher and workflow", c.initDispatcherAndWorkflow},
		{"services", c.initServices},
		{"workers", c.initWorkers},
	}
	for _, step := range steps {
		if err := step.init(); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Component initialized", zap.String("component", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close stops workers first and closes the database last.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return errors.New("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized so far
func (c *Container) teardown() error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
		c.publisher = nil
	}

	if c.database != nil && c.database.SQL != nil {
		if err := c.database.SQL.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	c.database = nil

	return errors.Join(errs...)
}

// Ready reports whether Start completed and Close has not run.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health pings the store and the broker; the remaining components report their state.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.database == nil:
		set("database", false, "not initialized")
	case c.database.SQL == nil:
		set("database", true, config.DriverMemory)
	default:
		if err := c.database.SQL.PingContext(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.publisher != nil {
		if err := c.publisher.Ping(ctx); err != nil {
			set("redis", false, err.Error())
		} else {
			set("redis", true, c.publisher.Channel())
		}
	}

	if c.workers == nil {
		set("workers", false, "not initialized")
	} else {
		running := c.workers.Running()
		set("workers", c.workers.IsRunning(), fmt.Sprintf("running %d of %d: %s",
			len(running), c.workers.GetWorkerCount(), strings.Join(running, ",")))
	}

	set("dispatcher", c.dispatcher != nil, "")

	return status
}

func (c *Container) initDatabase() error {
	db, err := ProvideDatabase(c.ctx, c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = db
	return nil
}

func (c *Container) initSinks() error {
	c.messenger = ProvideMessenger(c.config.Notification.Lark, c.logger)

	publisher, err := ProvidePublisher(c.ctx, c.config.Notification.Redis, c.logger)
	if err != nil {
		return err
	}
	c.publisher = publisher
	return nil
}

func (c *Container) initDispatcherAndWorkflow() error {
	c.dispatcher = ProvideDispatcher(c.logger)
	c.engine = ProvideWorkflowEngine(c.database, c.dispatcher, c.logger)
	return nil
}

func (c *Container) initServices() error {
	deps := &ServiceDeps{
		Database:   c.database,
		Dispatcher: c.dispatcher,
		Messenger:  c.messenger,
		Logger:     c.logger,
	}
	// a nil *redis.Publisher must stay a nil interface
	if c.publisher != nil {
		deps.Publisher = c.publisher
	}

	services, err := ProvideServices(deps)
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(c.config.Reminder, c.database.Repositories, c.dispatcher, c.logger)
	if err != nil {
		return err
	}
	c.workers = workers
	return c.workers.StartAll(c.ctx)
}

func (c *Container) TxManager() port.TransactionManager {
	return c.database.TxManager
}

func (c *Container) Repositories() port.Repositories {
	return c.database.Repositories
}

// HealthChecker returns the SQL handle for readiness probes, or nil for the memory driver.
func (c *Container) HealthChecker() httpif.HealthChecker {
	if c.database == nil || c.database.SQL == nil {
		return nil
	}
	return c.database.SQL
}

func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

func (c *Container) Engine() workflow.Engine {
	return c.engine
}

// Services is nil until Start succeeds.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

func (c *Container) Logger() *zap.Logger {
	return c.logger
}

func (c *Container) Config() *config.Config {
	return c.config
}
