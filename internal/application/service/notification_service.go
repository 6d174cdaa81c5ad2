package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/demande-workflow/internal/application/dispatcher"
	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/event"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// Handler names, also used to unsubscribe
const (
	HandlerNotifyStatus   = "notification.status_changed"
	HandlerNotifyReminder = "notification.reminder"
	HandlerForwardEvents  = "notification.forward"
)

// NotificationService turns workflow events into chat messages and broker messages
type NotificationService interface {
	// Register subscribes the service's handlers on d
	Register(d dispatcher.Dispatcher)
	HandleStatusChanged(ctx context.Context, evt *event.Event) error
	HandleReminder(ctx context.Context, evt *event.Event) error
	Forward(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	users     port.UserDirectory
	demandes  port.DemandeRepository
	sender    port.MessageSender
	publisher port.EventPublisher
	logger    Logger
}

// NewNotificationService creates a new NotificationService.
// sender and publisher are optional; a nil sink is skipped.
func NewNotificationService(
	users port.UserDirectory,
	demandes port.DemandeRepository,
	sender port.MessageSender,
	publisher port.EventPublisher,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		users:     users,
		demandes:  demandes,
		sender:    sender,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	if s.sender != nil {
		d.SubscribeNamed(event.TypeStatusChanged, HandlerNotifyStatus, s.HandleStatusChanged)
		d.SubscribeNamed(event.TypeReminder, HandlerNotifyReminder, s.HandleReminder)
	}
	if s.publisher != nil {
		d.SubscribeNamed(dispatcher.AllEvents, HandlerForwardEvents, s.Forward)
	}
}

// HandleStatusChanged tells whoever now holds the demande that it waits for them
func (s *notificationServiceImpl) HandleStatusChanged(ctx context.Context, evt *event.Event) error {
	status := workflow.State(evt.GetPayloadString(event.KeyNewStatus))
	recipients, err := s.recipientsFor(ctx, evt, status)
	if err != nil {
		return err
	}
	return s.send(ctx, evt, recipients, statusMessage(evt, status))
}

// HandleReminder nudges the holders of a demande idle for too long
func (s *notificationServiceImpl) HandleReminder(ctx context.Context, evt *event.Event) error {
	status := workflow.State(evt.GetPayloadString(event.KeyNewStatus))
	recipients, err := s.recipientsFor(ctx, evt, status)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Rappel : la demande %s attend une action depuis le %s (%s).",
		evt.GetPayloadString(event.KeyNumber), evt.GetPayloadString(event.KeyPendingSince), status)
	return s.send(ctx, evt, recipients, msg)
}

// Forward publishes every event to the broker
func (s *notificationServiceImpl) Forward(ctx context.Context, evt *event.Event) error {
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("Failed to publish event", "event_type", evt.Type, "demande_id", evt.DemandeID, "error", err)
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// recipientsFor resolves the users to notify for a demande entering status:
// its creator when the demande comes back to them, the assigned driver on delivery steps,
// every holder of the approving role otherwise. The actor is never notified of their own action.
func (s *notificationServiceImpl) recipientsFor(ctx context.Context, evt *event.Event, status workflow.State) ([]*entity.User, error) {
	var (
		users []*entity.User
		err   error
	)

	switch status {
	case workflow.StateRejected, workflow.StatePendingFinalConfirmation, workflow.StateClosed:
		users, err = s.lookup(ctx, evt.GetPayloadString(event.KeyCreatorID))
	case workflow.StatePendingReception, workflow.StatePendingDelivery:
		d, derr := s.demandes.GetByID(ctx, evt.DemandeID)
		if derr != nil {
			return nil, fmt.Errorf("get demande: %w", derr)
		}
		if d != nil && d.DeliveryAssigneeID != "" {
			users, err = s.lookup(ctx, d.DeliveryAssigneeID)
			break
		}
		users, err = s.users.ListByRole(ctx, workflow.RoleResponsableLivreur)
	default:
		role, ok := workflow.ApproverFor(status)
		if !ok {
			return nil, nil
		}
		users, err = s.users.ListByRole(ctx, role)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve recipients: %w", err)
	}

	actorID := evt.GetPayloadString(event.KeyActorID)
	out := users[:0]
	for _, u := range users {
		if u.ID != actorID && u.LarkOpenID != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *notificationServiceImpl) lookup(ctx context.Context, id string) ([]*entity.User, error) {
	if id == "" {
		return nil, nil
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil || u == nil {
		return nil, err
	}
	return []*entity.User{u}, nil
}

func (s *notificationServiceImpl) send(ctx context.Context, evt *event.Event, recipients []*entity.User, msg string) error {
	var errs []error
	for _, u := range recipients {
		if err := s.sender.SendText(ctx, u.LarkOpenID, msg); err != nil {
			s.logger.Error("Failed to send notification",
				"demande_id", evt.DemandeID,
				"user_id", u.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("send to %s: %w", u.ID, err))
			continue
		}
		s.logger.Info("Notification sent", "demande_id", evt.DemandeID, "user_id", u.ID, "event_type", evt.Type)
	}
	return errors.Join(errs...)
}

func statusMessage(evt *event.Event, status workflow.State) string {
	number := evt.GetPayloadString(event.KeyNumber)
	switch status {
	case workflow.StateRejected:
		return fmt.Sprintf("Votre demande %s a été rejetée : %s", number, evt.GetPayloadString(event.KeyComment))
	case workflow.StatePendingFinalConfirmation:
		return fmt.Sprintf("La demande %s a été livrée, merci de confirmer la réception.", number)
	case workflow.StateClosed:
		return fmt.Sprintf("La demande %s est clôturée.", number)
	case workflow.StatePendingReception:
		return fmt.Sprintf("La demande %s est prête à être récupérée.", number)
	case workflow.StatePendingDelivery:
		return fmt.Sprintf("La demande %s est à livrer.", number)
	default:
		return fmt.Sprintf("La demande %s attend votre action (%s).", number, status)
	}
}
