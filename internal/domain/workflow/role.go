package workflow

// Role is the organisational role a user holds in the approval chain
type Role string

const (
	RoleEmploye               Role = "employe"
	RoleConducteurTravaux     Role = "conducteur_travaux"
	RoleResponsableTravaux    Role = "responsable_travaux"
	RoleChargeAffaire         Role = "charge_affaire"
	RoleResponsableAppro      Role = "responsable_appro"
	RoleResponsableLogistique Role = "responsable_logistique"
	RoleResponsableLivreur    Role = "responsable_livreur"
	RoleSuperadmin            Role = "superadmin"
)

var validRoles = map[Role]bool{
	RoleEmploye:               true,
	RoleConducteurTravaux:     true,
	RoleResponsableTravaux:    true,
	RoleChargeAffaire:         true,
	RoleResponsableAppro:      true,
	RoleResponsableLogistique: true,
	RoleResponsableLivreur:    true,
	RoleSuperadmin:            true,
}

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	return validRoles[r]
}

// String returns the string representation of the role
func (r Role) String() string {
	return string(r)
}

// IsSuperadmin reports whether the role bypasses per-step permissions
func (r Role) IsSuperadmin() bool {
	return r == RoleSuperadmin
}

// ParseRole converts a raw role string
func ParseRole(raw string) (Role, error) {
	r := Role(raw)
	if !r.IsValid() {
		return "", NewError(KindValidationFailed, "unknown role %q", raw)
	}
	return r, nil
}

// RequestType distinguishes material requests from tooling requests
type RequestType string

const (
	TypeMaterial RequestType = "materiel"
	TypeTooling  RequestType = "outillage"
)

// IsValid returns true if the request type is known
func (t RequestType) IsValid() bool {
	return t == TypeMaterial || t == TypeTooling
}

// String returns the string representation of the request type
func (t RequestType) String() string {
	return string(t)
}

// NumberPrefix returns the prefix used in human readable demande numbers
func (t RequestType) NumberPrefix() string {
	if t == TypeTooling {
		return "DA-O"
	}
	return "DA-M"
}
