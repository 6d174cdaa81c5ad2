package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/demande-workflow/internal/application/port"
	appworkflow "github.com/garyjia/demande-workflow/internal/application/workflow"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/reconciliation"
	"github.com/garyjia/demande-workflow/internal/domain/workflow"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/demande-workflow/pkg/database"
)

var base = time.Date(2025, 4, 14, 9, 30, 0, 0, time.UTC)

func setupDB(t *testing.T) (*sqlite.DB, port.Repositories) {
	t.Helper()
	logger := zap.NewNop()

	conn, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "demandes.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 4,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	_, err = database.NewMigrator(conn, logger).Run(context.Background(), database.Migrations())
	require.NoError(t, err)

	db := sqlite.NewDB(conn, logger)
	return db, NewRepositories(db, logger)
}

func createDemande(t *testing.T, repos port.Repositories, id string, status workflow.State, at time.Time) *entity.Demande {
	t.Helper()
	return createDemandeBy(t, repos, id, "u1", status, at)
}

func createDemandeBy(t *testing.T, repos port.Repositories, id, creatorID string, status workflow.State, at time.Time) *entity.Demande {
	t.Helper()
	d := &entity.Demande{
		ID:         id,
		Type:       workflow.TypeMaterial,
		Status:     status,
		CreatorID:  creatorID,
		ProjectID:  "p1",
		CreatedAt:  at,
		ModifiedAt: at,
	}
	require.NoError(t, repos.Demandes.Create(context.Background(), d))
	return d
}

func createItem(t *testing.T, repos port.Repositories, demandeID, id string, qty int64) *entity.DemandeItem {
	t.Helper()
	item := &entity.DemandeItem{
		ID:                id,
		DemandeID:         demandeID,
		ArticleID:         "ART-" + id,
		QuantityRequested: qty,
		CreatedAt:         base,
		UpdatedAt:         base,
	}
	require.NoError(t, repos.Items.Create(context.Background(), item))
	return item
}

func TestDemandeRepository_RoundTrip(t *testing.T) {
	_, repos := setupDB(t)
	ctx := context.Background()

	desired := base.AddDate(0, 0, 10)
	d := &entity.Demande{
		ID:            "d1",
		Type:          workflow.TypeTooling,
		Status:        workflow.StateDraft,
		CreatorID:     "u1",
		ProjectID:     "p1",
		Comment:       "perceuses",
		DesiredDate:   &desired,
		PlannedBudget: decimal.NewNullDecimal(decimal.RequireFromString("1234.50")),
		CreatedAt:     base,
		ModifiedAt:    base,
	}
	require.NoError(t, repos.Demandes.Create(ctx, d))

	got, err := repos.Demandes.GetByID(ctx, "d1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, workflow.TypeTooling, got.Type)
	assert.Equal(t, workflow.StateDraft, got.Status)
	assert.True(t, got.CreatedAt.Equal(base))
	require.NotNil(t, got.DesiredDate)
	assert.True(t, got.DesiredDate.Equal(desired))
	require.True(t, got.PlannedBudget.Valid)
	assert.True(t, got.PlannedBudget.Decimal.Equal(decimal.RequireFromString("1234.5")))
	assert.False(t, got.TotalCost.Valid)
	assert.Nil(t, got.SubmittedAt)

	submitted := base.Add(time.Hour)
	got.Number = "DA-O-2025-0001"
	got.Status = workflow.StateRejected
	got.PreviousStatus = workflow.StatePendingLogistique
	got.RejectionCount = 1
	got.SubmittedAt = &submitted
	got.TotalCost = decimal.NewNullDecimal(decimal.NewFromInt(99))
	got.ModifiedAt = submitted
	require.NoError(t, repos.Demandes.Update(ctx, got))

	again, err := repos.Demandes.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "DA-O-2025-0001", again.Number)
	assert.Equal(t, workflow.StatePendingLogistique, again.PreviousStatus)
	assert.Equal(t, 1, again.RejectionCount)
	require.NotNil(t, again.SubmittedAt)
	assert.True(t, again.SubmittedAt.Equal(submitted))
	assert.True(t, again.TotalCost.Decimal.Equal(decimal.NewFromInt(99)))

	missing, err := repos.Demandes.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repos.Demandes.Update(ctx, &entity.Demande{ID: "nope", ModifiedAt: base})
	assert.Equal(t, workflow.KindNotFound, workflow.KindOf(err))
}

func TestDemandeRepository_DeleteCascadesItems(t *testing.T) {
	_, repos := setupDB(t)
	ctx := context.Background()
	createDemande(t, repos, "d1", workflow.StateDraft, base)
	createItem(t, repos, "d1", "i1", 3)

	require.NoError(t, repos.Demandes.Delete(ctx, "d1"))

	items, err := repos.Items.GetByDemandeID(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDemandeRepository_ListAndStale(t *testing.T) {
	_, repos := setupDB(t)
	ctx := context.Background()

	createDemande(t, repos, "a", workflow.StatePendingConducteur, base)
	createDemande(t, repos, "b", workflow.StatePendingAppro, base.Add(time.Hour))
	createDemande(t, repos, "c", workflow.StatePendingConducteur, base.Add(2*time.Hour))

	list, err := repos.Demandes.List(ctx, port.DemandeFilter{Status: workflow.StatePendingConducteur})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "a", list[1].ID)

	page, err := repos.Demandes.List(ctx, port.DemandeFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)

	stale, err := repos.Demandes.ListStale(ctx,
		[]workflow.State{workflow.StatePendingConducteur, workflow.StatePendingAppro},
		base.Add(90*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, "a", stale[0].ID)
	assert.Equal(t, "b", stale[1].ID)
}

func TestItemRepository_IncrementDelivered(t *testing.T) {
	_, repos := setupDB(t)
	ctx := context.Background()
	createDemande(t, repos, "d1", workflow.StatePendingAppro, base)
	item := createItem(t, repos, "d1", "i1", 10)

	validated := int64(6)
	item.QuantityValidated = &validated
	item.UpdatedAt = base.Add(time.Minute)
	require.NoError(t, repos.Items.Update(ctx, item))

	require.NoError(t, repos.Items.IncrementDelivered(ctx, "i1", 4, base))
	require.NoError(t, repos.Items.IncrementDelivered(ctx, "i1", 2, base))

	err := repos.Items.IncrementDelivered(ctx, "i1", 1, base)
	assert.Equal(t, workflow.KindOverDelivery, workflow.KindOf(err))

	err = repos.Items.IncrementDelivered(ctx, "ghost", 1, base)
	assert.Equal(t, workflow.KindNotFound, workflow.KindOf(err))

	items, err := repos.Items.GetByDemandeID(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(6), items[0].QuantityDelivered)
	require.NotNil(t, items[0].QuantityValidated)
	assert.Equal(t, int64(6), *items[0].QuantityValidated)
}

func TestItemRepository_SetUnitPrice(t *testing.T) {
	_, repos := setupDB(t)
	ctx := context.Background()
	createDemande(t, repos, "d1", workflow.StatePendingAppro, base)
	createItem(t, repos, "d1", "i1", 2)

	require.NoError(t, repos.Items.SetUnitPrice(ctx, "i1", decimal.RequireFromString("12.35"), base))

	items, err := repos.Items.GetByDemandeID(ctx, "d1")
	require.NoError(t, err)
	require.True(t, items[0].UnitPrice.Valid)
	assert.Equal(t, "12.35", items[0].UnitPrice.Decimal.String())

	err = repos.Items.SetUnitPrice(ctx, "ghost", decimal.NewFromInt(1), base)
	assert.Equal(t, workflow.KindNotFound, workflow.KindOf(err))
}

func TestDeliveryRepository_CreateAndReceive(t *testing.T) {
	_, repos := setupDB(t)
	ctx := context.Background()
	createDemande(t, repos, "d1", workflow.StatePendingAppro, base)
	createItem(t, repos, "d1", "i1", 5)
	createItem(t, repos, "d1", "i2", 5)

	delivery := &entity.Delivery{
		ID:           "del1",
		DemandeID:    "d1",
		PreparedByID: "appro",
		Status:       entity.DeliveryStatusPrepared,
		CreatedAt:    base,
		Lines: []*entity.DeliveryLine{
			{ItemID: "i1", Quantity: 2},
			{ItemID: "i2", Quantity: 3},
		},
	}
	require.NoError(t, repos.Deliveries.Create(ctx, delivery))
	assert.NotZero(t, delivery.Lines[0].ID)

	require.NoError(t, repos.Deliveries.MarkReceived(ctx, "d1", "liv", base.Add(time.Hour)))

	got, err := repos.Deliveries.GetByDemandeID(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, entity.DeliveryStatusReceived, got[0].Status)
	assert.Equal(t, "liv", got[0].ReceivedByID)
	require.NotNil(t, got[0].ReceivedAt)
	require.Len(t, got[0].Lines, 2)
	assert.Equal(t, int64(5), got[0].TotalQuantity())
}

func TestSequenceRepository_NextPerTypeAndYear(t *testing.T) {
	_, repos := setupDB(t)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		n, err := repos.Sequences.Next(ctx, workflow.TypeMaterial, 2025)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	n, err := repos.Sequences.Next(ctx, workflow.TypeTooling, 2025)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repos.Sequences.Next(ctx, workflow.TypeMaterial, 2026)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUserRepository_Upsert(t *testing.T) {
	_, repos := setupDB(t)
	ctx := context.Background()

	require.NoError(t, repos.Users.Upsert(ctx, &entity.User{ID: "u1", Name: "Paul", Role: workflow.RoleEmploye}))
	require.NoError(t, repos.Users.Upsert(ctx, &entity.User{ID: "u1", Name: "Paul", Role: workflow.RoleChargeAffaire, LarkOpenID: "ou_1"}))

	u, err := repos.Users.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, workflow.RoleChargeAffaire, u.Role)
	assert.Equal(t, "ou_1", u.LarkOpenID)

	byRole, err := repos.Users.ListByRole(ctx, workflow.RoleChargeAffaire)
	require.NoError(t, err)
	assert.Len(t, byRole, 1)

	none, err := repos.Users.GetByID(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestWithTransaction_RollsBack(t *testing.T) {
	db, repos := setupDB(t)
	ctx := context.Background()
	createDemande(t, repos, "d1", workflow.StatePendingAppro, base)

	boom := errors.New("boom")
	assert.False(t, sqlite.InTransaction(ctx))
	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		assert.True(t, sqlite.InTransaction(txCtx))
		if err := repos.History.Create(txCtx, &entity.HistoryEntry{
			DemandeID: "d1", ActorID: "u1", Action: entity.ActionModify, Timestamp: base,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	history, err := repos.History.GetByDemandeID(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

// setupEngine seeds one user per acting role and returns an engine on the SQLite store
func setupEngine(t *testing.T) (appworkflow.Engine, port.Repositories) {
	t.Helper()
	db, repos := setupDB(t)
	for _, u := range []*entity.User{
		{ID: "emp", Role: workflow.RoleEmploye},
		{ID: "appro", Role: workflow.RoleResponsableAppro},
		{ID: "liv", Role: workflow.RoleResponsableLivreur},
		{ID: "ca", Role: workflow.RoleChargeAffaire},
	} {
		require.NoError(t, repos.Users.Upsert(context.Background(), u))
	}
	return appworkflow.NewEngine(repos, db, appworkflow.WithClock(func() time.Time { return base })), repos
}

func TestEngineOnSQLite_PartialDeliveries(t *testing.T) {
	engine, repos := setupEngine(t)
	ctx := context.Background()

	createDemandeBy(t, repos, "d1", "ca", workflow.StateDraft, base)
	createItem(t, repos, "d1", "i1", 10)

	submitted, err := engine.Submit(ctx, "d1", "ca")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingAppro, submitted.Status)
	assert.Equal(t, "DA-M-2025-0001", submitted.Number)

	res, err := engine.RecordDelivery(ctx, "d1", "appro", appworkflow.DeliveryInput{
		Lines: []reconciliation.Line{{ItemID: "i1", Quantity: 4}},
	})
	require.NoError(t, err)
	assert.False(t, res.Complete)
	assert.Equal(t, workflow.StatePendingAppro, res.Demande.Status)

	_, err = engine.RecordDelivery(ctx, "d1", "appro", appworkflow.DeliveryInput{
		Lines: []reconciliation.Line{{ItemID: "i1", Quantity: 7}},
	})
	assert.Equal(t, workflow.KindOverDelivery, workflow.KindOf(err))

	res, err = engine.RecordDelivery(ctx, "d1", "appro", appworkflow.DeliveryInput{
		Lines:      []reconciliation.Line{{ItemID: "i1", Quantity: 6}},
		AssigneeID: "liv",
	})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, workflow.StatePendingReception, res.Demande.Status)

	stored, err := repos.Demandes.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingReception, stored.Status)
	assert.Equal(t, "liv", stored.DeliveryAssigneeID)
	require.NotNil(t, stored.PreparationEnteredAt)

	items, err := repos.Items.GetByDemandeID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), items[0].QuantityDelivered)

	deliveries, err := repos.Deliveries.GetByDemandeID(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, deliveries, 2, "the rejected batch left nothing behind")
}

func TestEngineOnSQLite_ConcurrentDeliveriesNeverOvershoot(t *testing.T) {
	engine, repos := setupEngine(t)
	ctx := context.Background()

	createDemandeBy(t, repos, "d1", "ca", workflow.StateDraft, base)
	createItem(t, repos, "d1", "i1", 10)
	_, err := engine.Submit(ctx, "d1", "ca")
	require.NoError(t, err)

	const batches = 8
	errs := make([]error, batches)
	var wg sync.WaitGroup
	for i := 0; i < batches; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.RecordDelivery(ctx, "d1", "appro", appworkflow.DeliveryInput{
				Lines: []reconciliation.Line{{ItemID: "i1", Quantity: 3}},
			})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.Equal(t, workflow.KindOverDelivery, workflow.KindOf(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 3, accepted)

	items, err := repos.Items.GetByDemandeID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), items[0].QuantityDelivered)

	deliveries, err := repos.Deliveries.GetByDemandeID(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, deliveries, 3)

	stored, err := repos.Demandes.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingAppro, stored.Status)
}

func TestEngineOnSQLite_ConcurrentSubmitsGetDistinctNumbers(t *testing.T) {
	engine, repos := setupEngine(t)
	ctx := context.Background()

	const drafts = 6
	for i := 0; i < drafts; i++ {
		id := fmt.Sprintf("d%d", i)
		createDemandeBy(t, repos, id, "ca", workflow.StateDraft, base)
		createItem(t, repos, id, "i"+id, 1)
	}

	numbers := make([]string, drafts)
	errs := make([]error, drafts)
	var wg sync.WaitGroup
	for i := 0; i < drafts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := engine.Submit(ctx, fmt.Sprintf("d%d", i), "ca")
			errs[i] = err
			if err == nil {
				numbers[i] = d.Number
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, drafts)
	for i := range numbers {
		require.NoError(t, errs[i])
		assert.False(t, seen[numbers[i]], "duplicate number %s", numbers[i])
		seen[numbers[i]] = true
	}
	for n := 1; n <= drafts; n++ {
		assert.True(t, seen[fmt.Sprintf("DA-M-2025-%04d", n)], "missing sequence %d", n)
	}
}
