package workflow

// State represents a demande status in the approval and delivery lifecycle
type State string

const (
	StateDraft                        State = "brouillon"
	StateSubmitted                    State = "soumise"
	StatePendingConducteur            State = "en_attente_validation_conducteur"
	StatePendingLogistique            State = "en_attente_validation_logistique"
	StatePendingResponsableTravaux    State = "en_attente_validation_responsable_travaux"
	StatePendingChargeAffaire         State = "en_attente_validation_charge_affaire"
	StatePendingAppro                 State = "en_attente_preparation_appro"
	StatePendingPreparationLogistique State = "en_attente_preparation_logistique"
	StatePendingReception             State = "en_attente_reception_livreur"
	StatePendingDelivery              State = "en_attente_livraison"
	StatePendingFinalConfirmation     State = "en_attente_validation_finale_demandeur"
	StateConfirmed                    State = "confirmee_demandeur"
	StateRejected                     State = "rejetee"
	StateClosed                       State = "cloturee"
	StateArchived                     State = "archivee"
)

var validStates = map[State]bool{
	StateDraft:                        true,
	StateSubmitted:                    true,
	StatePendingConducteur:            true,
	StatePendingLogistique:            true,
	StatePendingResponsableTravaux:    true,
	StatePendingChargeAffaire:         true,
	StatePendingAppro:                 true,
	StatePendingPreparationLogistique: true,
	StatePendingReception:             true,
	StatePendingDelivery:              true,
	StatePendingFinalConfirmation:     true,
	StateConfirmed:                    true,
	StateRejected:                     true,
	StateClosed:                       true,
	StateArchived:                     true,
}

var terminalStates = map[State]bool{
	StateClosed:   true,
	StateArchived: true,
}

// IsTerminal returns true if the demande can no longer be modified
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid demande status
func (s State) IsValid() bool {
	return validStates[s]
}

// ParseState converts a raw status string, failing with a validation error when unknown
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.IsValid() {
		return "", NewError(KindValidationFailed, "unknown status %q", raw)
	}
	return s, nil
}
