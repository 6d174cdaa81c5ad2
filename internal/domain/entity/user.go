package entity

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

// User is a directory entry: who someone is and which role they hold
type User struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Role       workflow.Role `json:"role"`
	LarkOpenID string        `json:"lark_open_id,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Validate checks a directory entry before it is stored
func (u *User) Validate() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&u.Name, validation.Required),
		validation.Field(&u.Role, validation.Required, validation.By(knownRole)),
	)
}

func knownRole(value interface{}) error {
	r, _ := value.(workflow.Role)
	if !r.IsValid() {
		return validation.NewError("validation_unknown_role", "unknown role")
	}
	return nil
}
