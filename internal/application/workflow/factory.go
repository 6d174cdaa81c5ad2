package workflow

import (
	"context"
	"errors"

	domainwf "github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// MachineInput carries the facts a demande machine needs beyond its current status.
// Submit and resubmit targets are resolved by the caller; an empty target disables the trigger.
type MachineInput struct {
	Type     domainwf.RequestType
	Current  domainwf.State
	Initial  domainwf.State
	Previous domainwf.State
	Complete bool
}

var errIncomplete = errors.New("some items are not fully delivered")

// BuildDemandeMachine creates a state machine for one demande from its type's Definition
func BuildDemandeMachine(in MachineInput) (*domainwf.Machine, error) {
	def, err := domainwf.DefinitionFor(in.Type)
	if err != nil {
		return nil, err
	}
	if !in.Current.IsValid() {
		return nil, domainwf.NewError(domainwf.KindValidationFailed, "invalid status %q", in.Current)
	}

	complete := func(ctx context.Context) error {
		if !in.Complete {
			return errIncomplete
		}
		return nil
	}
	builder := domainwf.NewBuilder()

	draft := builder.Configure(domainwf.StateDraft)
	if in.Initial.IsValid() {
		draft.Permit(domainwf.TriggerSubmit, in.Initial)
	}

	// Approval chain: every step validates forward, rejects, and can be sent back one step
	for i, step := range def.Steps {
		next, _ := def.Next(step.State)
		cfg := builder.Configure(step.State)
		if step.State == def.Preparation {
			cfg.PermitIf(domainwf.TriggerValidate, next, complete).
				PermitIf(domainwf.TriggerPrepare, next, complete)
		} else {
			cfg.Permit(domainwf.TriggerValidate, next)
		}
		cfg.Permit(domainwf.TriggerReject, domainwf.StateRejected)
		if i > 0 {
			cfg.Permit(domainwf.TriggerSendBack, def.Steps[i-1].State)
		}
	}

	rejected := builder.Configure(domainwf.StateRejected)
	if def.Contains(in.Previous) {
		rejected.Permit(domainwf.TriggerResubmit, in.Previous)
	}

	builder.Configure(domainwf.StatePendingReception).
		Permit(domainwf.TriggerReceive, domainwf.StatePendingDelivery)

	builder.Configure(domainwf.StatePendingDelivery).
		Permit(domainwf.TriggerDeliver, domainwf.StatePendingFinalConfirmation)

	builder.Configure(domainwf.StatePendingFinalConfirmation).
		Permit(domainwf.TriggerConfirm, domainwf.StateConfirmed).
		PermitIf(domainwf.TriggerClose, domainwf.StateClosed, complete)

	builder.Configure(domainwf.StateConfirmed).
		PermitIf(domainwf.TriggerClose, domainwf.StateClosed, complete)

	builder.Configure(domainwf.StateClosed).
		Permit(domainwf.TriggerArchive, domainwf.StateArchived)

	// archived has no outgoing transitions

	return builder.Build(in.Current)
}
