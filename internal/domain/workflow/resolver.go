package workflow

// ownSteps lists, per request type and creator role, the steps the creator's own
// authority already satisfies. Roles absent from a type's table skip nothing.
var ownSteps = map[RequestType]map[Role][]State{
	TypeMaterial: {
		RoleConducteurTravaux:  {StatePendingConducteur},
		RoleResponsableTravaux: {StatePendingConducteur, StatePendingResponsableTravaux},
		RoleChargeAffaire:      {StatePendingConducteur, StatePendingResponsableTravaux, StatePendingChargeAffaire},
	},
	TypeTooling: {
		RoleResponsableLogistique: {StatePendingLogistique},
	},
}

// ResolveInitialStatus returns the first approval step not skipped by the creator's role.
// Superadmins always enter at the first step. When every step is skipped the demande
// goes straight to final confirmation.
func ResolveInitialStatus(t RequestType, creatorRole Role) (State, error) {
	def, err := DefinitionFor(t)
	if err != nil {
		return "", err
	}

	skipped := make(map[State]bool)
	for _, s := range ownSteps[t][creatorRole] {
		skipped[s] = true
	}

	for _, step := range def.Steps {
		if !skipped[step.State] {
			return step.State, nil
		}
	}
	return StatePendingFinalConfirmation, nil
}
