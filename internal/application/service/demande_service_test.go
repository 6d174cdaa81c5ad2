package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/memory"
)

func newDemandeService(t *testing.T) (DemandeService, port.Repositories) {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	ctx := context.Background()
	require.NoError(t, repos.Users.Upsert(ctx, &entity.User{ID: "emp", Role: workflow.RoleEmploye}))
	require.NoError(t, repos.Users.Upsert(ctx, &entity.User{ID: "emp2", Role: workflow.RoleEmploye}))
	require.NoError(t, repos.Users.Upsert(ctx, &entity.User{ID: "admin", Role: workflow.RoleSuperadmin}))
	return NewDemandeService(repos, store, nil, nopLogger{}), repos
}

func validDraft() CreateDraftInput {
	budget := decimal.NewFromInt(500)
	return CreateDraftInput{
		CreatorID:     "emp",
		Type:          workflow.TypeMaterial,
		ProjectID:     " chantier-7 ",
		PlannedBudget: &budget,
		Items: []DraftItem{
			{ArticleID: "CIMENT-35", Quantity: 20},
			{ArticleID: "SABLE", Quantity: 3, Comment: "0/4"},
		},
	}
}

func TestCreateDraft(t *testing.T) {
	svc, repos := newDemandeService(t)
	ctx := context.Background()

	d, err := svc.CreateDraft(ctx, validDraft())
	require.NoError(t, err)
	assert.Equal(t, workflow.StateDraft, d.Status)
	assert.Empty(t, d.Number)
	assert.Equal(t, "chantier-7", d.ProjectID)
	assert.True(t, d.PlannedBudget.Valid)

	got, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "CIMENT-35", got.Items[0].ArticleID)
	assert.Equal(t, 1, got.Items[1].Position)

	history, err := repos.History.GetByDemandeID(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entity.ActionCreate, history[0].Action)
}

func TestCreateDraft_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreateDraftInput)
		kind   workflow.Kind
	}{
		{"unknown type", func(in *CreateDraftInput) { in.Type = "gravats" }, workflow.KindValidationFailed},
		{"no items", func(in *CreateDraftInput) { in.Items = nil }, workflow.KindValidationFailed},
		{"zero quantity", func(in *CreateDraftInput) { in.Items[0].Quantity = 0 }, workflow.KindValidationFailed},
		{"missing article", func(in *CreateDraftInput) { in.Items[1].ArticleID = "" }, workflow.KindValidationFailed},
		{"missing project", func(in *CreateDraftInput) { in.ProjectID = "  " }, workflow.KindValidationFailed},
		{"negative budget", func(in *CreateDraftInput) {
			b := decimal.NewFromInt(-1)
			in.PlannedBudget = &b
		}, workflow.KindValidationFailed},
		{"unknown creator", func(in *CreateDraftInput) { in.CreatorID = "ghost" }, workflow.KindPermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newDemandeService(t)
			in := validDraft()
			tt.mutate(&in)

			_, err := svc.CreateDraft(context.Background(), in)
			require.Error(t, err)
			assert.Equal(t, tt.kind, workflow.KindOf(err), "error: %v", err)
		})
	}
}

func TestDeleteDraft(t *testing.T) {
	svc, repos := newDemandeService(t)
	ctx := context.Background()

	d, err := svc.CreateDraft(ctx, validDraft())
	require.NoError(t, err)

	err = svc.DeleteDraft(ctx, d.ID, "emp2")
	assert.Equal(t, workflow.KindPermissionDenied, workflow.KindOf(err))

	stored, err := repos.Demandes.GetByID(ctx, d.ID)
	require.NoError(t, err)
	stored.Status = workflow.StatePendingConducteur
	require.NoError(t, repos.Demandes.Update(ctx, stored))

	err = svc.DeleteDraft(ctx, d.ID, "emp")
	assert.Equal(t, workflow.KindInvalidTransition, workflow.KindOf(err))

	stored.Status = workflow.StateDraft
	require.NoError(t, repos.Demandes.Update(ctx, stored))
	require.NoError(t, svc.DeleteDraft(ctx, d.ID, "admin"))

	_, err = svc.Get(ctx, d.ID)
	assert.Equal(t, workflow.KindNotFound, workflow.KindOf(err))
}

func TestReadSide_NotFound(t *testing.T) {
	svc, _ := newDemandeService(t)
	ctx := context.Background()

	_, err := svc.History(ctx, "missing")
	assert.Equal(t, workflow.KindNotFound, workflow.KindOf(err))
	_, err = svc.Deliveries(ctx, "missing")
	assert.Equal(t, workflow.KindNotFound, workflow.KindOf(err))
	_, err = svc.Signatures(ctx, "missing")
	assert.Equal(t, workflow.KindNotFound, workflow.KindOf(err))
}

func TestList_ClampsPaging(t *testing.T) {
	svc, _ := newDemandeService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateDraft(ctx, validDraft())
		require.NoError(t, err)
	}

	list, err := svc.List(ctx, port.DemandeFilter{CreatorID: "emp", Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, list, 3)

	list, err = svc.List(ctx, port.DemandeFilter{CreatorID: "emp2"})
	require.NoError(t, err)
	assert.Empty(t, list)
}
