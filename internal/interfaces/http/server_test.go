package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/demande-workflow/internal/application/service"
	"github.com/garyjia/demande-workflow/internal/application/workflow"
	"github.com/garyjia/demande-workflow/internal/domain/entity"
	domainwf "github.com/garyjia/demande-workflow/internal/domain/workflow"
	"github.com/garyjia/demande-workflow/internal/infrastructure/persistence/memory"
)

const testSecret = "test-secret"

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeHealth struct{ err error }

func (f fakeHealth) PingContext(ctx context.Context) error { return f.err }

func newTestServer(t *testing.T, health HealthChecker) *Server {
	t.Helper()
	store := memory.NewStore()
	repos := store.Repositories()
	for _, u := range []*entity.User{
		{ID: "emp", Name: "Employe", Role: domainwf.RoleEmploye},
		{ID: "cond", Name: "Conducteur", Role: domainwf.RoleConducteurTravaux},
		{ID: "rt", Name: "Responsable travaux", Role: domainwf.RoleResponsableTravaux},
	} {
		require.NoError(t, repos.Users.Upsert(context.Background(), u))
	}

	engine := workflow.NewEngine(repos, store)
	demandes := service.NewDemandeService(repos, store, nil, nopLogger{})

	cfg := DefaultServerConfig()
	cfg.JWTSecret = testSecret
	return NewServer(cfg, engine, demandes, health, nopLogger{})
}

func token(t *testing.T, uid string, method jwt.SigningMethod, secret string) string {
	t.Helper()
	claims := Claims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// call performs a request as uid (unauthenticated when uid is empty) and decodes the envelope
func call(t *testing.T, s *Server, method, path, uid string, body interface{}) (int, Response) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if uid != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, uid, jwt.SigningMethodHS256, testSecret))
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var resp Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w.Code, resp
}

func dataField(t *testing.T, resp Response, key string) interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return m[key]
}

func createDraft(t *testing.T, s *Server) string {
	t.Helper()
	code, resp := call(t, s, http.MethodPost, "/api/v1/demandes", "emp", map[string]interface{}{
		"type":       "materiel",
		"project_id": "CH-42",
		"items":      []map[string]interface{}{{"article_id": "CIM-25", "quantity": 10}},
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	id, _ := dataField(t, resp, "id").(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name     string
		health   HealthChecker
		code     int
		database string
	}{
		{"memory", nil, http.StatusOK, "memory"},
		{"database up", fakeHealth{}, http.StatusOK, "ok"},
		{"database down", fakeHealth{err: errors.New("disk I/O error")}, http.StatusServiceUnavailable, "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.health)
			code, resp := call(t, s, http.MethodGet, "/health", "", nil)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.database, dataField(t, resp, "database"))
		})
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestStart_ReportsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	s := newTestServer(t, nil)
	s.config.Host = "127.0.0.1"
	s.config.Port = ln.Addr().(*net.TCPAddr).Port

	assert.Error(t, s.Start(context.Background()))
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + token(t, "emp", jwt.SigningMethodHS256, "other")},
		{"wrong algorithm", "Bearer " + token(t, "emp", jwt.SigningMethodHS512, testSecret)},
		{"no uid", "Bearer " + token(t, "", jwt.SigningMethodHS256, testSecret)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/demandes", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.Router().ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestDemandeLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	id := createDraft(t, s)
	base := "/api/v1/demandes/" + id

	code, resp := call(t, s, http.MethodPost, base+"/submit", "emp", nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, string(domainwf.StatePendingConducteur), dataField(t, resp, "status"))
	assert.Regexp(t, `^DA-M-\d{4}-0001$`, dataField(t, resp, "number"))

	// wrong role
	code, resp = call(t, s, http.MethodPost, base+"/actions/validate", "rt", nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, string(domainwf.KindPermissionDenied), resp.Code)

	// rejection needs a comment
	code, resp = call(t, s, http.MethodPost, base+"/actions/reject", "cond", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, string(domainwf.KindValidationFailed), resp.Code)

	code, resp = call(t, s, http.MethodPost, base+"/actions/validate", "cond", map[string]string{"comment": "ok"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	demande := dataField(t, resp, "demande").(map[string]interface{})
	assert.Equal(t, string(domainwf.StatePendingResponsableTravaux), demande["status"])

	// already validated
	code, _ = call(t, s, http.MethodPost, base+"/actions/validate", "cond", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, resp = call(t, s, http.MethodGet, base+"/history", "emp", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Data, 3)

	code, resp = call(t, s, http.MethodGet, base+"/signatures", "emp", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Data, 1)

	code, resp = call(t, s, http.MethodGet, "/api/v1/demandes?status="+string(domainwf.StatePendingResponsableTravaux), "emp", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, resp.Data, 1)
}

func TestModifyAndDeleteDraft(t *testing.T) {
	s := newTestServer(t, nil)
	id := createDraft(t, s)
	base := "/api/v1/demandes/" + id

	code, resp := call(t, s, http.MethodPatch, base, "emp", map[string]interface{}{"comment": "pour lundi"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "pour lundi", dataField(t, resp, "comment"))

	code, _ = call(t, s, http.MethodDelete, base, "cond", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = call(t, s, http.MethodDelete, base, "emp", nil)
	assert.Equal(t, http.StatusOK, code)

	code, resp = call(t, s, http.MethodGet, base, "emp", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(domainwf.KindNotFound), resp.Code)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t, nil)
	id := createDraft(t, s)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		code   int
	}{
		{"unknown action", http.MethodPost, "/api/v1/demandes/" + id + "/actions/approve", nil, http.StatusBadRequest},
		{"unknown status filter", http.MethodGet, "/api/v1/demandes?status=ouverte", nil, http.StatusBadRequest},
		{"unknown type filter", http.MethodGet, "/api/v1/demandes?type=vehicule", nil, http.StatusBadRequest},
		{"draft without items", http.MethodPost, "/api/v1/demandes", map[string]interface{}{"type": "materiel", "project_id": "P"}, http.StatusBadRequest},
		{"delivery on draft", http.MethodPost, "/api/v1/demandes/" + id + "/deliveries", map[string]interface{}{"lines": []interface{}{}}, http.StatusConflict},
		{"unknown demande", http.MethodPost, "/api/v1/demandes/nope/submit", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := call(t, s, tt.method, tt.path, "emp", tt.body)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domainwf.NewError(domainwf.KindNotFound, "x"), http.StatusNotFound},
		{domainwf.NewError(domainwf.KindPermissionDenied, "x"), http.StatusForbidden},
		{domainwf.NewError(domainwf.KindInvalidTransition, "x"), http.StatusConflict},
		{domainwf.NewError(domainwf.KindRejectionLimitExceeded, "x"), http.StatusUnprocessableEntity},
		{domainwf.NewError(domainwf.KindValidationFailed, "x"), http.StatusBadRequest},
		{domainwf.NewError(domainwf.KindOverDelivery, "x"), http.StatusConflict},
		{errors.New("database is locked"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusForError(tt.err); got != tt.want {
			t.Errorf("statusForError(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
