package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/demande-workflow/internal/application/dispatcher"
	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/event"
	domainwf "github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	repos      port.Repositories
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     Logger
	now        func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events after commit
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new workflow engine
func NewEngine(repos port.Repositories, txManager port.TransactionManager, opts ...EngineOption) Engine {
	e := &engineImpl{
		repos:     repos,
		txManager: txManager,
		logger:    nopLogger{},
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// actionContext is the state of one action inside its transaction
type actionContext struct {
	ctx           context.Context
	demande       *entity.Demande
	items         []*entity.DemandeItem
	actor         *entity.User
	def           domainwf.Definition
	now           time.Time
	correlationID string
	events        []*event.Event
}

func (ac *actionContext) isCreator() bool {
	return ac.actor.ID == ac.demande.CreatorID
}

func (ac *actionContext) isSuperadmin() bool {
	return ac.actor.Role.IsSuperadmin()
}

func (ac *actionContext) emit(t event.Type, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload[event.KeyNumber] = ac.demande.Number
	payload[event.KeyRequestType] = ac.demande.Type.String()
	payload[event.KeyCreatorID] = ac.demande.CreatorID
	payload[event.KeyActorID] = ac.actor.ID
	ac.events = append(ac.events, event.NewEventWithCorrelation(t, ac.demande.ID, payload, ac.correlationID))
}

// run loads the demande, its items and the actor inside a transaction, applies fn,
// persists the demande and dispatches collected events once committed.
func (e *engineImpl) run(ctx context.Context, demandeID, actorID string, action Action, fn func(ac *actionContext) error) (*entity.Demande, error) {
	var (
		result *entity.Demande
		events []*event.Event
	)

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		d, err := e.repos.Demandes.GetByID(txCtx, demandeID)
		if err != nil {
			return fmt.Errorf("failed to load demande: %w", err)
		}
		if d == nil {
			return domainwf.NewError(domainwf.KindNotFound, "demande %s not found", demandeID)
		}

		items, err := e.repos.Items.GetByDemandeID(txCtx, demandeID)
		if err != nil {
			return fmt.Errorf("failed to load items: %w", err)
		}

		actor, err := e.repos.Users.GetByID(txCtx, actorID)
		if err != nil {
			return fmt.Errorf("failed to load actor: %w", err)
		}
		if actor == nil {
			return domainwf.NewError(domainwf.KindPermissionDenied, "unknown user %s", actorID)
		}

		def, err := domainwf.DefinitionFor(d.Type)
		if err != nil {
			return err
		}

		ac := &actionContext{
			ctx:           txCtx,
			demande:       d,
			items:         items,
			actor:         actor,
			def:           def,
			now:           e.now(),
			correlationID: uuid.NewString(),
		}

		if err := fn(ac); err != nil {
			return err
		}

		d.ModifiedAt = ac.now
		if err := e.repos.Demandes.Update(txCtx, d); err != nil {
			return fmt.Errorf("failed to update demande: %w", err)
		}

		d.Items = ac.items
		result = d
		events = ac.events
		return nil
	})
	if err != nil {
		if domainwf.KindOf(err) == "" {
			e.logger.Error("Workflow action failed",
				"action", action,
				"demande_id", demandeID,
				"actor_id", actorID,
				"error", err,
			)
		}
		return nil, err
	}

	e.logger.Info("Workflow action applied",
		"action", action,
		"demande_id", demandeID,
		"actor_id", actorID,
		"status", result.Status,
	)

	if e.dispatcher != nil {
		for _, evt := range events {
			e.dispatcher.DispatchAsync(ctx, evt)
		}
	}

	return result, nil
}

// machine builds the state machine of the demande in its current status
func (e *engineImpl) machine(ac *actionContext, in MachineInput) (*domainwf.Machine, error) {
	in.Type = ac.demande.Type
	in.Current = ac.demande.Status
	return BuildDemandeMachine(in)
}

// expect fails with INVALID_TRANSITION unless trigger is configured from the current status
func (e *engineImpl) expect(ac *actionContext, trigger domainwf.Trigger, in MachineInput) error {
	m, err := e.machine(ac, in)
	if err != nil {
		return err
	}
	if !m.CanFire(trigger) {
		return domainwf.NewError(domainwf.KindInvalidTransition,
			"%s is not allowed while demande is %s", strings.ToLower(trigger.String()), ac.demande.Status)
	}
	return nil
}

// transition fires trigger, applies the new status and records history and a status change event
func (e *engineImpl) transition(ac *actionContext, trigger domainwf.Trigger, action, comment string, in MachineInput) error {
	m, err := e.machine(ac, in)
	if err != nil {
		return err
	}

	tr, err := m.Fire(ac.ctx, trigger)
	if err != nil {
		if errors.Is(err, domainwf.ErrGuardFailed) {
			return domainwf.NewError(domainwf.KindInvalidTransition,
				"%s blocked: %v", strings.ToLower(trigger.String()), errIncomplete)
		}
		return domainwf.NewError(domainwf.KindInvalidTransition,
			"%s is not allowed while demande is %s", strings.ToLower(trigger.String()), ac.demande.Status)
	}

	previous, next := tr.From, tr.To
	ac.demande.Status = next
	if next == ac.def.Preparation && ac.demande.PreparationEnteredAt == nil {
		at := ac.now
		ac.demande.PreparationEnteredAt = &at
	}

	if err := e.record(ac, action, previous, next, comment); err != nil {
		return err
	}

	ac.emit(event.TypeStatusChanged, map[string]interface{}{
		event.KeyPreviousStatus: previous.String(),
		event.KeyNewStatus:      next.String(),
		event.KeyComment:        comment,
	})
	return nil
}

// record appends a history entry
func (e *engineImpl) record(ac *actionContext, action string, previous, next domainwf.State, comment string) error {
	entry := &entity.HistoryEntry{
		DemandeID:      ac.demande.ID,
		ActorID:        ac.actor.ID,
		Action:         action,
		PreviousStatus: previous,
		NewStatus:      next,
		Comment:        comment,
		Timestamp:      ac.now,
	}
	if err := e.repos.History.Create(ac.ctx, entry); err != nil {
		return fmt.Errorf("failed to create history entry: %w", err)
	}
	return nil
}

// sign appends a validation signature for an executed approval step
func (e *engineImpl) sign(ac *actionContext, step domainwf.State, comment string) error {
	sig := &entity.ValidationSignature{
		DemandeID: ac.demande.ID,
		ActorID:   ac.actor.ID,
		Role:      ac.actor.Role,
		Status:    step,
		Comment:   comment,
		Token:     uuid.NewString(),
		SignedAt:  ac.now,
	}
	if err := e.repos.Signatures.Create(ac.ctx, sig); err != nil {
		return fmt.Errorf("failed to create signature: %w", err)
	}
	return nil
}

// requireAct fails with PERMISSION_DENIED unless the actor can act on the current status
func requireAct(ac *actionContext) error {
	if !domainwf.CanAct(ac.actor.Role, ac.demande.Status) {
		return domainwf.NewError(domainwf.KindPermissionDenied,
			"role %s cannot act on status %s", ac.actor.Role, ac.demande.Status)
	}
	return nil
}

// requireCreator fails with PERMISSION_DENIED unless the actor created the demande or is a superadmin
func requireCreator(ac *actionContext) error {
	if !ac.isCreator() && !ac.isSuperadmin() {
		return domainwf.NewError(domainwf.KindPermissionDenied, "only the creator may do this")
	}
	return nil
}

// requireComment trims and checks a mandatory comment
func requireComment(comment, what string) (string, error) {
	c := strings.TrimSpace(comment)
	if c == "" {
		return "", domainwf.NewError(domainwf.KindValidationFailed, "a comment is required to %s", what)
	}
	return c, nil
}
