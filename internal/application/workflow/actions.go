package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/event"
	"github.com/garyjia/demande-workflow/internal/domain/reconciliation"
	domainwf "github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// Submit numbers a draft and sends it to the first step its creator's role does not skip
func (e *engineImpl) Submit(ctx context.Context, demandeID, actorID string) (*entity.Demande, error) {
	return e.run(ctx, demandeID, actorID, ActionSubmit, func(ac *actionContext) error {
		d := ac.demande
		if d.Status != domainwf.StateDraft {
			return domainwf.NewError(domainwf.KindInvalidTransition, "only drafts can be submitted, demande is %s", d.Status)
		}
		if err := requireCreator(ac); err != nil {
			return err
		}
		if len(ac.items) == 0 {
			return domainwf.NewError(domainwf.KindValidationFailed, "a demande needs at least one item")
		}
		for _, item := range ac.items {
			if item.QuantityRequested <= 0 {
				return domainwf.NewError(domainwf.KindValidationFailed, "item %s has a non-positive quantity", item.ID)
			}
		}

		creator := ac.actor
		if !ac.isCreator() {
			u, err := e.repos.Users.GetByID(ac.ctx, d.CreatorID)
			if err != nil {
				return fmt.Errorf("failed to load creator: %w", err)
			}
			if u == nil {
				return domainwf.NewError(domainwf.KindNotFound, "creator %s not found", d.CreatorID)
			}
			creator = u
		}

		initial, err := domainwf.ResolveInitialStatus(d.Type, creator.Role)
		if err != nil {
			return err
		}

		year := ac.now.Year()
		seq, err := e.repos.Sequences.Next(ac.ctx, d.Type, year)
		if err != nil {
			return fmt.Errorf("failed to allocate demande number: %w", err)
		}
		d.Number = fmt.Sprintf("%s-%d-%04d", d.Type.NumberPrefix(), year, seq)
		submittedAt := ac.now
		d.SubmittedAt = &submittedAt

		if err := e.transition(ac, domainwf.TriggerSubmit, entity.ActionSubmit, "", MachineInput{Initial: initial}); err != nil {
			return err
		}
		ac.emit(event.TypeDemandeSubmitted, nil)
		return nil
	})
}

// Validate approves the current step and moves to the next one.
// On a preparation step every item must already be fully delivered.
func (e *engineImpl) Validate(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error) {
	return e.run(ctx, demandeID, actorID, ActionValidate, func(ac *actionContext) error {
		in := MachineInput{Complete: reconciliation.IsComplete(ac.items)}
		if err := e.expect(ac, domainwf.TriggerValidate, in); err != nil {
			return err
		}
		if err := requireAct(ac); err != nil {
			return err
		}

		step := ac.demande.Status
		comment = strings.TrimSpace(comment)
		if err := e.transition(ac, domainwf.TriggerValidate, entity.ActionValidate, comment, in); err != nil {
			return err
		}
		if err := e.sign(ac, step, comment); err != nil {
			return err
		}
		ac.emit(event.TypeDemandeValidated, map[string]interface{}{
			event.KeyPreviousStatus: step.String(),
			event.KeyNewStatus:      ac.demande.Status.String(),
		})
		return nil
	})
}

// Reject sends the demande back for correction, remembering the step it was rejected from
func (e *engineImpl) Reject(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error) {
	return e.run(ctx, demandeID, actorID, ActionReject, func(ac *actionContext) error {
		d := ac.demande
		if err := e.expect(ac, domainwf.TriggerReject, MachineInput{}); err != nil {
			return err
		}
		if err := requireAct(ac); err != nil {
			return err
		}
		c, err := requireComment(comment, "reject")
		if err != nil {
			return err
		}
		if d.RejectionCount >= domainwf.MaxRejections {
			return domainwf.NewError(domainwf.KindRejectionLimitExceeded,
				"demande was already rejected %d times and needs manual intervention", d.RejectionCount)
		}

		step := d.Status
		if err := e.transition(ac, domainwf.TriggerReject, entity.ActionReject, c, MachineInput{}); err != nil {
			return err
		}
		d.PreviousStatus = step
		d.RejectionCount++

		ac.emit(event.TypeDemandeRejected, map[string]interface{}{
			event.KeyPreviousStatus: step.String(),
			event.KeyComment:        c,
			event.KeyRejectionCount: d.RejectionCount,
		})
		return nil
	})
}

// Resubmit returns a rejected demande to the step it was rejected from, optionally applying a modification.
// The target is the recorded previousStatus itself, not its predecessor in the chain; the predecessor's
// approver only holds the demande while it is rejected.
func (e *engineImpl) Resubmit(ctx context.Context, demandeID, actorID string, mod *Modification, comment string) (*entity.Demande, error) {
	return e.run(ctx, demandeID, actorID, ActionResubmit, func(ac *actionContext) error {
		d := ac.demande
		if d.Status != domainwf.StateRejected {
			return domainwf.NewError(domainwf.KindInvalidTransition, "only rejected demandes can be resubmitted, demande is %s", d.Status)
		}
		if !ac.def.Contains(d.PreviousStatus) {
			return domainwf.NewError(domainwf.KindInvalidTransition,
				"recorded previous status %q is not part of the %s chain", d.PreviousStatus, d.Type)
		}
		if !ac.isCreator() && !ac.isSuperadmin() && !holdsRejected(ac) {
			return domainwf.NewError(domainwf.KindPermissionDenied, "role %s cannot resubmit this demande", ac.actor.Role)
		}

		if mod != nil && !mod.IsEmpty() {
			if err := e.applyModification(ac, *mod); err != nil {
				return err
			}
		}

		target := d.PreviousStatus
		in := MachineInput{Previous: target}
		if err := e.transition(ac, domainwf.TriggerResubmit, entity.ActionResubmit, strings.TrimSpace(comment), in); err != nil {
			return err
		}
		d.PreviousStatus = ""

		ac.emit(event.TypeDemandeResubmitted, map[string]interface{}{
			event.KeyNewStatus: target.String(),
		})
		return nil
	})
}

// Receive confirms the delivery driver picked up the prepared deliveries
func (e *engineImpl) Receive(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error) {
	return e.run(ctx, demandeID, actorID, ActionReceive, func(ac *actionContext) error {
		if err := e.expect(ac, domainwf.TriggerReceive, MachineInput{}); err != nil {
			return err
		}
		if err := requireDriver(ac); err != nil {
			return err
		}
		if err := e.repos.Deliveries.MarkReceived(ac.ctx, ac.demande.ID, ac.actor.ID, ac.now); err != nil {
			return fmt.Errorf("failed to mark deliveries received: %w", err)
		}
		return e.transition(ac, domainwf.TriggerReceive, entity.ActionReceive, strings.TrimSpace(comment), MachineInput{})
	})
}

// Deliver hands the demande to its creator for final confirmation
func (e *engineImpl) Deliver(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error) {
	return e.run(ctx, demandeID, actorID, ActionDeliver, func(ac *actionContext) error {
		if err := e.expect(ac, domainwf.TriggerDeliver, MachineInput{}); err != nil {
			return err
		}
		if err := requireDriver(ac); err != nil {
			return err
		}
		return e.transition(ac, domainwf.TriggerDeliver, entity.ActionDeliver, strings.TrimSpace(comment), MachineInput{})
	})
}

// Confirm records the creator's acknowledgement of the delivery
func (e *engineImpl) Confirm(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error) {
	return e.run(ctx, demandeID, actorID, ActionConfirm, func(ac *actionContext) error {
		if err := e.expect(ac, domainwf.TriggerConfirm, MachineInput{}); err != nil {
			return err
		}
		if err := requireCreator(ac); err != nil {
			return err
		}
		return e.transition(ac, domainwf.TriggerConfirm, entity.ActionConfirm, strings.TrimSpace(comment), MachineInput{})
	})
}

// Close ends the demande once every item is fully delivered
func (e *engineImpl) Close(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error) {
	return e.run(ctx, demandeID, actorID, ActionClose, func(ac *actionContext) error {
		in := MachineInput{Complete: reconciliation.IsComplete(ac.items)}
		if err := e.expect(ac, domainwf.TriggerClose, in); err != nil {
			return err
		}
		if err := requireCreator(ac); err != nil {
			return err
		}
		if err := e.transition(ac, domainwf.TriggerClose, entity.ActionClose, strings.TrimSpace(comment), in); err != nil {
			return err
		}
		closedAt := ac.now
		ac.demande.ClosedAt = &closedAt
		ac.emit(event.TypeDemandeClosed, nil)
		return nil
	})
}

// Archive moves a closed demande out of the active lists
func (e *engineImpl) Archive(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error) {
	return e.run(ctx, demandeID, actorID, ActionArchive, func(ac *actionContext) error {
		if err := e.expect(ac, domainwf.TriggerArchive, MachineInput{}); err != nil {
			return err
		}
		if !ac.isSuperadmin() {
			return domainwf.NewError(domainwf.KindPermissionDenied, "only a superadmin may archive")
		}
		return e.transition(ac, domainwf.TriggerArchive, entity.ActionArchive, strings.TrimSpace(comment), MachineInput{})
	})
}

// SendBack re-derives the predecessor step from the type definition, ignoring previousStatus
func (e *engineImpl) SendBack(ctx context.Context, demandeID, actorID, comment string) (*entity.Demande, error) {
	return e.run(ctx, demandeID, actorID, ActionSendBack, func(ac *actionContext) error {
		if !ac.isSuperadmin() {
			return domainwf.NewError(domainwf.KindPermissionDenied, "only a superadmin may send a demande back")
		}
		if _, ok := domainwf.PreviousStatusFor(ac.demande.Status, ac.demande.Type); !ok {
			return domainwf.NewError(domainwf.KindInvalidTransition,
				"status %s has no previous step in the %s chain", ac.demande.Status, ac.demande.Type)
		}
		c, err := requireComment(comment, "send a demande back")
		if err != nil {
			return err
		}
		return e.transition(ac, domainwf.TriggerSendBack, entity.ActionSendBack, c, MachineInput{})
	})
}

// Act dispatches a named action
func (e *engineImpl) Act(ctx context.Context, demandeID, actorID string, action Action, in ActionInput) (*ActionResult, error) {
	var (
		d   *entity.Demande
		err error
	)

	switch action {
	case ActionSubmit:
		d, err = e.Submit(ctx, demandeID, actorID)
	case ActionValidate:
		d, err = e.Validate(ctx, demandeID, actorID, in.Comment)
	case ActionReject:
		d, err = e.Reject(ctx, demandeID, actorID, in.Comment)
	case ActionResubmit:
		d, err = e.Resubmit(ctx, demandeID, actorID, in.Modification, in.Comment)
	case ActionPrepare:
		res, derr := e.RecordDelivery(ctx, demandeID, actorID, DeliveryInput{Lines: in.Lines, AssigneeID: in.AssigneeID})
		if derr != nil {
			return nil, derr
		}
		return &ActionResult{Demande: res.Demande, Delivery: res}, nil
	case ActionReceive:
		d, err = e.Receive(ctx, demandeID, actorID, in.Comment)
	case ActionDeliver:
		d, err = e.Deliver(ctx, demandeID, actorID, in.Comment)
	case ActionConfirm:
		d, err = e.Confirm(ctx, demandeID, actorID, in.Comment)
	case ActionClose:
		d, err = e.Close(ctx, demandeID, actorID, in.Comment)
	case ActionArchive:
		d, err = e.Archive(ctx, demandeID, actorID, in.Comment)
	case ActionSendBack:
		d, err = e.SendBack(ctx, demandeID, actorID, in.Comment)
	default:
		return nil, domainwf.NewError(domainwf.KindValidationFailed, "unknown action %q", action)
	}
	if err != nil {
		return nil, err
	}
	return &ActionResult{Demande: d}, nil
}

// holdsRejected reports whether the actor's role is in charge of a rejected demande:
// the approver of the step before the rejected one, or of the rejected step itself
func holdsRejected(ac *actionContext) bool {
	prev := ac.demande.PreviousStatus
	if role, ok := ac.def.ApproverOf(prev); ok && role == ac.actor.Role {
		return true
	}
	if before, ok := ac.def.Previous(prev); ok {
		if role, ok := ac.def.ApproverOf(before); ok && role == ac.actor.Role {
			return true
		}
	}
	return false
}

// requireDriver checks the actor may act on a delivery step, honouring the stamped assignee
func requireDriver(ac *actionContext) error {
	if err := requireAct(ac); err != nil {
		return err
	}
	assignee := ac.demande.DeliveryAssigneeID
	if assignee != "" && assignee != ac.actor.ID && !ac.isSuperadmin() {
		return domainwf.NewError(domainwf.KindPermissionDenied, "demande is assigned to another driver")
	}
	return nil
}
