package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerSubmit   Trigger = "SUBMIT"
	TriggerValidate Trigger = "VALIDATE"
	TriggerReject   Trigger = "REJECT"
	TriggerResubmit Trigger = "RESUBMIT"
	TriggerPrepare  Trigger = "PREPARE"
	TriggerReceive  Trigger = "RECEIVE"
	TriggerDeliver  Trigger = "DELIVER"
	TriggerConfirm  Trigger = "CONFIRM"
	TriggerClose    Trigger = "CLOSE"
	TriggerArchive  Trigger = "ARCHIVE"
	TriggerSendBack Trigger = "SEND_BACK"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
