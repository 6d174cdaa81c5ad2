package workflow

// Scope lists the fields a role may change on a demande
type Scope struct {
	Quantities  bool `json:"quantities"`
	Articles    bool `json:"articles"`
	Comments    bool `json:"comments"`
	DesiredDate bool `json:"desired_date"`
	Budget      bool `json:"budget"`
}

// FullScope allows every field
var FullScope = Scope{Quantities: true, Articles: true, Comments: true, DesiredDate: true, Budget: true}

var validatorScope = Scope{Quantities: true, Articles: true, Comments: true, DesiredDate: true}

var scopeByRole = map[Role]Scope{
	RoleConducteurTravaux:     validatorScope,
	RoleResponsableLogistique: validatorScope,
	RoleResponsableTravaux:    validatorScope,
	RoleChargeAffaire:         {Quantities: true, Articles: true, Comments: true, Budget: true},
	RoleResponsableAppro:      {Quantities: true, Articles: true, Comments: true},
	RoleResponsableLivreur:    {Quantities: true, Comments: true},
	RoleSuperadmin:            FullScope,
}

// ModificationScope returns the fields role may edit while a demande is in status.
// Closed and archived demandes are read-only for everyone.
func ModificationScope(role Role, status State) Scope {
	if status.IsTerminal() {
		return Scope{}
	}
	if s, ok := scopeByRole[role]; ok {
		return s
	}
	return Scope{Comments: true}
}

// Allows reports whether every capability in want is granted by s
func (s Scope) Allows(want Scope) bool {
	return (!want.Quantities || s.Quantities) &&
		(!want.Articles || s.Articles) &&
		(!want.Comments || s.Comments) &&
		(!want.DesiredDate || s.DesiredDate) &&
		(!want.Budget || s.Budget)
}

// IsEmpty reports whether the scope grants nothing
func (s Scope) IsEmpty() bool {
	return !s.Quantities && !s.Articles && !s.Comments && !s.DesiredDate && !s.Budget
}
