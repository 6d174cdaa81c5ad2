package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/demande-workflow/internal/application/dispatcher"
	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/event"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/memory"
)

func seedDirectory(t *testing.T) port.Repositories {
	t.Helper()
	repos := memory.NewStore().Repositories()
	ctx := context.Background()
	for _, u := range []*entity.User{
		{ID: "emp", Role: workflow.RoleEmploye, LarkOpenID: "ou_emp"},
		{ID: "ca1", Role: workflow.RoleChargeAffaire, LarkOpenID: "ou_ca1"},
		{ID: "ca2", Role: workflow.RoleChargeAffaire, LarkOpenID: "ou_ca2"},
		{ID: "ca3", Role: workflow.RoleChargeAffaire},
		{ID: "liv1", Role: workflow.RoleResponsableLivreur, LarkOpenID: "ou_liv1"},
		{ID: "liv2", Role: workflow.RoleResponsableLivreur, LarkOpenID: "ou_liv2"},
	} {
		require.NoError(t, repos.Users.Upsert(ctx, u))
	}
	return repos
}

func statusEvent(demandeID string, status workflow.State, actorID string) *event.Event {
	return event.NewEvent(event.TypeStatusChanged, demandeID, map[string]interface{}{
		event.KeyNumber:    "DA-M-2025-0003",
		event.KeyCreatorID: "emp",
		event.KeyActorID:   actorID,
		event.KeyNewStatus: status.String(),
		event.KeyComment:   "budget",
	})
}

func TestHandleStatusChanged_Recipients(t *testing.T) {
	repos := seedDirectory(t)
	ctx := context.Background()
	require.NoError(t, repos.Demandes.Create(ctx, &entity.Demande{
		ID: "d1", Type: workflow.TypeMaterial, Status: workflow.StatePendingReception,
		CreatorID: "emp", DeliveryAssigneeID: "liv2",
	}))

	tests := []struct {
		name   string
		evt    *event.Event
		expect []string
	}{
		{"approver role without actor or lark id", statusEvent("d1", workflow.StatePendingChargeAffaire, "ca2"), []string{"ou_ca1"}},
		{"rejection goes to creator", statusEvent("d1", workflow.StateRejected, "ca1"), []string{"ou_emp"}},
		{"final confirmation goes to creator", statusEvent("d1", workflow.StatePendingFinalConfirmation, "liv1"), []string{"ou_emp"}},
		{"assigned driver only", statusEvent("d1", workflow.StatePendingReception, "appro"), []string{"ou_liv2"}},
		{"no holder", statusEvent("d1", workflow.StateArchived, "admin"), []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &mockMessageSender{}
			svc := NewNotificationService(repos.Users, repos.Demandes, sender, nil, nopLogger{})

			require.NoError(t, svc.HandleStatusChanged(ctx, tt.evt))
			assert.ElementsMatch(t, tt.expect, sender.recipients())
		})
	}
}

func TestHandleStatusChanged_RejectionMessageCarriesComment(t *testing.T) {
	repos := seedDirectory(t)
	sender := &mockMessageSender{}
	svc := NewNotificationService(repos.Users, repos.Demandes, sender, nil, nopLogger{})

	require.NoError(t, svc.HandleStatusChanged(context.Background(), statusEvent("d1", workflow.StateRejected, "ca1")))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].content, "DA-M-2025-0003")
	assert.Contains(t, sender.sent[0].content, "budget")
}

func TestHandleStatusChanged_JoinsSendErrors(t *testing.T) {
	repos := seedDirectory(t)
	sender := &mockMessageSender{
		sendTextFunc: func(ctx context.Context, openID, content string) error {
			if openID == "ou_ca1" {
				return errors.New("lark down")
			}
			return nil
		},
	}
	svc := NewNotificationService(repos.Users, repos.Demandes, sender, nil, nopLogger{})

	err := svc.HandleStatusChanged(context.Background(), statusEvent("d1", workflow.StatePendingChargeAffaire, "emp"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lark down")
	assert.Equal(t, []string{"ou_ca2"}, sender.recipients())
}

func TestHandleReminder(t *testing.T) {
	repos := seedDirectory(t)
	sender := &mockMessageSender{}
	svc := NewNotificationService(repos.Users, repos.Demandes, sender, nil, nopLogger{})

	evt := event.NewEvent(event.TypeReminder, "d1", map[string]interface{}{
		event.KeyNumber:       "DA-O-2025-0010",
		event.KeyNewStatus:    workflow.StatePendingChargeAffaire.String(),
		event.KeyPendingSince: "2025-05-01",
	})
	require.NoError(t, svc.HandleReminder(context.Background(), evt))
	assert.ElementsMatch(t, []string{"ou_ca1", "ou_ca2"}, sender.recipients())
	assert.Contains(t, sender.sent[0].content, "2025-05-01")
}

func TestRegister_WiresOnlyConfiguredSinks(t *testing.T) {
	repos := seedDirectory(t)
	d := dispatcher.NewDispatcher()
	defer d.Close()

	NewNotificationService(repos.Users, repos.Demandes, nil, &mockPublisher{}, nopLogger{}).Register(d)

	assert.Empty(t, d.ListHandlers(event.TypeStatusChanged))
	assert.Len(t, d.ListHandlers(dispatcher.AllEvents), 1)
}

func TestForward(t *testing.T) {
	repos := seedDirectory(t)
	pub := &mockPublisher{}
	svc := NewNotificationService(repos.Users, repos.Demandes, nil, pub, nopLogger{})

	evt := statusEvent("d1", workflow.StateClosed, "emp")
	require.NoError(t, svc.Forward(context.Background(), evt))
	require.Len(t, pub.published, 1)
	assert.Equal(t, evt.ID, pub.published[0].ID)

	pub.publishFunc = func(ctx context.Context, evt *event.Event) error { return errors.New("redis gone") }
	assert.Error(t, svc.Forward(context.Background(), evt))
}
