package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/dispatcher"
	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/event"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// ReminderConfig holds configuration for the reminder worker
type ReminderConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// DefaultReminderConfig returns default configuration
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Interval:   time.Hour,
		StaleAfter: 48 * time.Hour,
		BatchSize:  100,
	}
}

// ReminderWorker periodically emits demande.reminder events for demandes
// that have been waiting on the same holder longer than StaleAfter
type ReminderWorker struct {
	config     ReminderConfig
	demandes   port.DemandeRepository
	dispatcher dispatcher.Dispatcher
	now        func() time.Time
	logger     *zap.Logger

	mu            sync.Mutex
	scheduler     gocron.Scheduler
	isRunning     bool
	remindedCount int
}

// NewReminderWorker creates a new reminder worker
func NewReminderWorker(
	config ReminderConfig,
	demandes port.DemandeRepository,
	disp dispatcher.Dispatcher,
	logger *zap.Logger,
) *ReminderWorker {
	return &ReminderWorker{
		config:     config,
		demandes:   demandes,
		dispatcher: disp,
		now:        time.Now,
		logger:     logger,
	}
}

// Start schedules the scan every Interval
func (w *ReminderWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return fmt.Errorf("reminder worker already running")
	}
	if w.config.Interval <= 0 || w.config.StaleAfter <= 0 {
		return fmt.Errorf("reminder interval and stale_after must be positive")
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(w.config.Interval),
		gocron.NewTask(func() {
			if _, err := w.RunOnce(ctx); err != nil {
				w.logger.Error("Reminder scan failed", zap.Error(err))
			}
		}),
		gocron.WithName(w.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("failed to schedule reminder job: %w", err)
	}

	scheduler.Start()
	w.scheduler = scheduler
	w.isRunning = true

	w.logger.Info("ReminderWorker started",
		zap.Duration("interval", w.config.Interval),
		zap.Duration("stale_after", w.config.StaleAfter))
	return nil
}

// Stop shuts the scheduler down and waits for a running scan
func (w *ReminderWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	scheduler := w.scheduler
	w.scheduler = nil
	w.mu.Unlock()

	if err := scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}

	w.logger.Info("ReminderWorker stopped", zap.Int("reminded_count", w.RemindedCount()))
	return nil
}

// Name returns the worker name for identification
func (w *ReminderWorker) Name() string {
	return "ReminderWorker"
}

// RunOnce scans for stale demandes and dispatches one reminder per demande.
// It returns the number of reminders dispatched.
func (w *ReminderWorker) RunOnce(ctx context.Context) (int, error) {
	cutoff := w.now().Add(-w.config.StaleAfter)

	stale, err := w.demandes.ListStale(ctx, workflow.WaitingStates(), cutoff, w.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale demandes: %w", err)
	}

	sent := 0
	for _, d := range stale {
		evt := event.NewEvent(event.TypeReminder, d.ID, map[string]interface{}{
			event.KeyNumber:       d.Number,
			event.KeyRequestType:  d.Type.String(),
			event.KeyNewStatus:    d.Status.String(),
			event.KeyCreatorID:    d.CreatorID,
			event.KeyAssigneeID:   d.DeliveryAssigneeID,
			event.KeyPendingSince: d.ModifiedAt.UTC().Format("2006-01-02"),
		})
		if err := w.dispatcher.Dispatch(ctx, evt); err != nil {
			w.logger.Warn("Failed to dispatch reminder",
				zap.String("demande_id", d.ID),
				zap.String("number", d.Number),
				zap.Error(err))
			continue
		}
		sent++
	}

	w.mu.Lock()
	w.remindedCount += sent
	w.mu.Unlock()

	if len(stale) > 0 {
		w.logger.Info("Reminders dispatched", zap.Int("stale", len(stale)), zap.Int("sent", sent))
	}
	return sent, nil
}

// RemindedCount returns the number of reminders dispatched since creation
func (w *ReminderWorker) RemindedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.remindedCount
}

var _ Worker = (*ReminderWorker)(nil)
