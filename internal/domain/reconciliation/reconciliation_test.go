package reconciliation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
)

func items() []*entity.DemandeItem {
	validated := int64(5)
	return []*entity.DemandeItem{
		{ID: "a", QuantityRequested: 10, QuantityDelivered: 3},
		{ID: "b", QuantityRequested: 8, QuantityValidated: &validated},
	}
}

func TestValidateLines(t *testing.T) {
	tests := []struct {
		name  string
		lines []Line
		kind  workflow.Kind
	}{
		{"exact remainder", []Line{{ItemID: "a", Quantity: 7}, {ItemID: "b", Quantity: 5}}, ""},
		{"partial", []Line{{ItemID: "a", Quantity: 1}}, ""},
		{"empty batch", nil, workflow.KindValidationFailed},
		{"zero quantity", []Line{{ItemID: "a", Quantity: 0}}, workflow.KindValidationFailed},
		{"negative quantity", []Line{{ItemID: "a", Quantity: -2}}, workflow.KindValidationFailed},
		{"unknown item", []Line{{ItemID: "zz", Quantity: 1}}, workflow.KindNotFound},
		{"over validated quantity", []Line{{ItemID: "b", Quantity: 6}}, workflow.KindOverDelivery},
		{"split lines overshoot", []Line{{ItemID: "a", Quantity: 4}, {ItemID: "a", Quantity: 4}}, workflow.KindOverDelivery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLines(items(), tt.lines)
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.kind, workflow.KindOf(err))
		})
	}
}

func TestIsComplete(t *testing.T) {
	list := items()
	assert.False(t, IsComplete(list))
	assert.False(t, IsComplete(nil))

	list[0].QuantityDelivered = 10
	list[1].QuantityDelivered = 5
	assert.True(t, IsComplete(list))
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, map[string]int64{"a": 7, "b": 5}, Remaining(items()))
}
