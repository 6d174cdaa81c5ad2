package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name    string
		user    User
		wantErr bool
	}{
		{"valid", User{ID: "u1", Name: "Alice", Role: workflow.RoleChargeAffaire}, false},
		{"missing id", User{Name: "Alice", Role: workflow.RoleEmploye}, true},
		{"missing name", User{ID: "u1", Role: workflow.RoleEmploye}, true},
		{"missing role", User{ID: "u1", Name: "Alice"}, true},
		{"unknown role", User{ID: "u1", Name: "Alice", Role: "directeur"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.user.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
