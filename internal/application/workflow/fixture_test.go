package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/demande-workflow/internal/application/dispatcher"
	"github.com/garyjia/demande-workflow/internal/application/port"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	"github.com/garyjia/demande-workflow/internal/domain/event"
	domainwf "github.com/garyjia/demande-workflow/internal/domain/workflow"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/memory"
)

// recordingDispatcher captures dispatched events
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *recordingDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {}

func (m *recordingDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
}

func (m *recordingDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *recordingDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *recordingDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (m *recordingDispatcher) Close() error {
	return nil
}

func (m *recordingDispatcher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

var fixedNow = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

// fixture wires an engine on the memory store with one user per role
type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *memory.Store
	repos      port.Repositories
	dispatcher *recordingDispatcher
	engine     Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	disp := &recordingDispatcher{}

	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      store,
		repos:      repos,
		dispatcher: disp,
		engine: NewEngine(repos, store,
			WithDispatcher(disp),
			WithClock(func() time.Time { return fixedNow }),
		),
	}

	for _, u := range []*entity.User{
		{ID: "emp", Name: "Employe", Role: domainwf.RoleEmploye},
		{ID: "emp2", Name: "Autre employe", Role: domainwf.RoleEmploye},
		{ID: "cond", Name: "Conducteur", Role: domainwf.RoleConducteurTravaux},
		{ID: "rt", Name: "Responsable travaux", Role: domainwf.RoleResponsableTravaux},
		{ID: "ca", Name: "Charge affaire", Role: domainwf.RoleChargeAffaire},
		{ID: "appro", Name: "Appro", Role: domainwf.RoleResponsableAppro},
		{ID: "logi", Name: "Logistique", Role: domainwf.RoleResponsableLogistique},
		{ID: "liv", Name: "Livreur", Role: domainwf.RoleResponsableLivreur},
		{ID: "liv2", Name: "Autre livreur", Role: domainwf.RoleResponsableLivreur},
		{ID: "admin", Name: "Admin", Role: domainwf.RoleSuperadmin},
	} {
		require.NoError(t, repos.Users.Upsert(f.ctx, u))
	}
	return f
}

// draft stores a draft demande with one item per quantity
func (f *fixture) draft(reqType domainwf.RequestType, creatorID string, quantities ...int64) *entity.Demande {
	f.t.Helper()
	d := &entity.Demande{
		ID:         uuid.NewString(),
		Type:       reqType,
		Status:     domainwf.StateDraft,
		CreatorID:  creatorID,
		ProjectID:  "chantier-42",
		CreatedAt:  fixedNow,
		ModifiedAt: fixedNow,
	}
	require.NoError(f.t, f.repos.Demandes.Create(f.ctx, d))
	for i, q := range quantities {
		item := &entity.DemandeItem{
			ID:                uuid.NewString(),
			DemandeID:         d.ID,
			ArticleID:         "ART-" + string(rune('A'+i)),
			QuantityRequested: q,
			Position:          i,
			CreatedAt:         fixedNow,
			UpdatedAt:         fixedNow,
		}
		require.NoError(f.t, f.repos.Items.Create(f.ctx, item))
		d.Items = append(d.Items, item)
	}
	return d
}

// submitted stores and submits a draft
func (f *fixture) submitted(reqType domainwf.RequestType, creatorID string, quantities ...int64) *entity.Demande {
	f.t.Helper()
	d := f.draft(reqType, creatorID, quantities...)
	out, err := f.engine.Submit(f.ctx, d.ID, creatorID)
	require.NoError(f.t, err)
	return out
}

// advance validates with the designated approver until the demande reaches target
func (f *fixture) advance(d *entity.Demande, target domainwf.State) *entity.Demande {
	f.t.Helper()
	approverIDs := map[domainwf.Role]string{
		domainwf.RoleConducteurTravaux:     "cond",
		domainwf.RoleResponsableTravaux:    "rt",
		domainwf.RoleChargeAffaire:         "ca",
		domainwf.RoleResponsableAppro:      "appro",
		domainwf.RoleResponsableLogistique: "logi",
	}
	for d.Status != target {
		role, ok := domainwf.ApproverFor(d.Status)
		require.True(f.t, ok, "no approver for %s", d.Status)
		next, err := f.engine.Validate(f.ctx, d.ID, approverIDs[role], "ok")
		require.NoError(f.t, err)
		d = next
	}
	return d
}

func (f *fixture) items(demandeID string) []*entity.DemandeItem {
	f.t.Helper()
	items, err := f.repos.Items.GetByDemandeID(f.ctx, demandeID)
	require.NoError(f.t, err)
	return items
}

func (f *fixture) history(demandeID string) []*entity.HistoryEntry {
	f.t.Helper()
	h, err := f.repos.History.GetByDemandeID(f.ctx, demandeID)
	require.NoError(f.t, err)
	return h
}

func requireKind(t *testing.T, err error, kind domainwf.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, domainwf.KindOf(err), "error: %v", err)
}

func int64p(v int64) *int64 { return &v }

func strp(v string) *string { return &v }
