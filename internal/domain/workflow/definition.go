package workflow

import "sort"

// MaxRejections is the number of rejections after which a demande needs manual intervention
const MaxRejections = 5

// Step is one approval step: the status a demande waits in and the role that acts on it
type Step struct {
	State State
	Role  Role
}

// Definition is the ordered approval chain of one request type. Rollback targets,
// approvers and the next status are all derived from Steps.
type Definition struct {
	Type  RequestType
	Steps []Step

	// Preparation is the step that fills deliveries and only advances once every item is complete
	Preparation State
}

var definitions = map[RequestType]Definition{
	TypeMaterial: {
		Type: TypeMaterial,
		Steps: []Step{
			{State: StatePendingConducteur, Role: RoleConducteurTravaux},
			{State: StatePendingResponsableTravaux, Role: RoleResponsableTravaux},
			{State: StatePendingChargeAffaire, Role: RoleChargeAffaire},
			{State: StatePendingAppro, Role: RoleResponsableAppro},
		},
		Preparation: StatePendingAppro,
	},
	TypeTooling: {
		Type: TypeTooling,
		Steps: []Step{
			{State: StatePendingLogistique, Role: RoleResponsableLogistique},
			{State: StatePendingResponsableTravaux, Role: RoleResponsableTravaux},
			{State: StatePendingChargeAffaire, Role: RoleChargeAffaire},
			{State: StatePendingAppro, Role: RoleResponsableAppro},
			{State: StatePendingPreparationLogistique, Role: RoleResponsableLogistique},
		},
		Preparation: StatePendingPreparationLogistique,
	},
}

// deliverySteps follow the approval chain for every request type
var deliverySteps = []Step{
	{State: StatePendingReception, Role: RoleResponsableLivreur},
	{State: StatePendingDelivery, Role: RoleResponsableLivreur},
}

// approvers maps every role-approved status to its designated role
var approvers = buildApprovers()

func buildApprovers() map[State]Role {
	m := make(map[State]Role)
	for _, def := range definitions {
		for _, step := range def.Steps {
			m[step.State] = step.Role
		}
	}
	for _, step := range deliverySteps {
		m[step.State] = step.Role
	}
	return m
}

// DefinitionFor returns the approval chain for a request type
func DefinitionFor(t RequestType) (Definition, error) {
	def, ok := definitions[t]
	if !ok {
		return Definition{}, NewError(KindValidationFailed, "unknown request type %q", t)
	}
	return def, nil
}

// Index returns the position of s in the approval chain, or -1
func (d Definition) Index(s State) int {
	for i, step := range d.Steps {
		if step.State == s {
			return i
		}
	}
	return -1
}

// Contains reports whether s is an approval-chain status of this type
func (d Definition) Contains(s State) bool {
	return d.Index(s) >= 0
}

// First returns the first approval step
func (d Definition) First() State {
	return d.Steps[0].State
}

// Next returns the status that follows s. The last approval step hands over to delivery reception.
func (d Definition) Next(s State) (State, bool) {
	i := d.Index(s)
	if i < 0 {
		return "", false
	}
	if i == len(d.Steps)-1 {
		return StatePendingReception, true
	}
	return d.Steps[i+1].State, true
}

// Previous returns the approval step before s, if any
func (d Definition) Previous(s State) (State, bool) {
	i := d.Index(s)
	if i <= 0 {
		return "", false
	}
	return d.Steps[i-1].State, true
}

// ApproverOf returns the role that acts on s, covering the approval chain and delivery steps
func (d Definition) ApproverOf(s State) (Role, bool) {
	if i := d.Index(s); i >= 0 {
		return d.Steps[i].Role, true
	}
	for _, step := range deliverySteps {
		if step.State == s {
			return step.Role, true
		}
	}
	return "", false
}

// PreviousStatusFor returns the type-specific predecessor of an approval-chain status.
// It is the source of truth for rollback validity, independent of a demande's recorded previousStatus.
func PreviousStatusFor(s State, t RequestType) (State, bool) {
	def, err := DefinitionFor(t)
	if err != nil {
		return "", false
	}
	return def.Previous(s)
}

// ApproverFor returns the designated role of a status regardless of request type
func ApproverFor(s State) (Role, bool) {
	r, ok := approvers[s]
	return r, ok
}

// CanAct reports whether role is the designated approver of status, or a superadmin
func CanAct(role Role, status State) bool {
	if role.IsSuperadmin() {
		return true
	}
	approver, ok := approvers[status]
	return ok && approver == role
}

// IsPreparation reports whether s is the preparation step of any request type
func IsPreparation(s State) bool {
	for _, def := range definitions {
		if def.Preparation == s {
			return true
		}
	}
	return false
}

// WaitingStates lists every status in which a demande waits on someone, sorted
func WaitingStates() []State {
	states := make([]State, 0, len(approvers)+1)
	for s := range approvers {
		states = append(states, s)
	}
	states = append(states, StatePendingFinalConfirmation)
	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })
	return states
}
