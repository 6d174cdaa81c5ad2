package event

// Type identifies the type of domain event
type Type string

const (
	TypeDemandeCreated     Type = "demande.created"
	TypeDemandeSubmitted   Type = "demande.submitted"
	TypeDemandeValidated   Type = "demande.validated"
	TypeDemandeRejected    Type = "demande.rejected"
	TypeDemandeResubmitted Type = "demande.resubmitted"
	TypeDemandeModified    Type = "demande.modified"
	TypeStatusChanged      Type = "demande.status_changed"
	TypeDeliveryRecorded   Type = "demande.delivery_recorded"
	TypeDemandePriced      Type = "demande.priced"
	TypeDemandeClosed      Type = "demande.closed"
	TypeReminder           Type = "demande.reminder"
)

// Payload keys shared by publishers and subscribers
const (
	KeyNumber         = "number"
	KeyRequestType    = "type"
	KeyCreatorID      = "creator_id"
	KeyActorID        = "actor_id"
	KeyPreviousStatus = "previous_status"
	KeyNewStatus      = "new_status"
	KeyComment        = "comment"
	KeyRejectionCount = "rejection_count"
	KeyTotalCost      = "total_cost"
	KeyBudgetExceeded = "budget_exceeded"
	KeyDeliveryID     = "delivery_id"
	KeyComplete       = "complete"
	KeyAssigneeID     = "assignee_id"
	KeyPendingSince   = "pending_since"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeDemandeCreated,
		TypeDemandeSubmitted,
		TypeDemandeValidated,
		TypeDemandeRejected,
		TypeDemandeResubmitted,
		TypeDemandeModified,
		TypeStatusChanged,
		TypeDeliveryRecorded,
		TypeDemandePriced,
		TypeDemandeClosed,
		TypeReminder:
		return true
	default:
		return false
	}
}
