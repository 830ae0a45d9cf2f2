package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backoffice-suite/boar/pkg/agent"
	"github.com/backoffice-suite/boar/pkg/analysis"
	"github.com/backoffice-suite/boar/pkg/config"
	"github.com/backoffice-suite/boar/pkg/erp"
	"github.com/backoffice-suite/boar/pkg/llm"
	"github.com/backoffice-suite/boar/pkg/otp"
	"github.com/backoffice-suite/boar/pkg/scheduler"
)

type stubGateway struct {
	missing bool
	records []erp.Record
}

func (g *stubGateway) SearchRead(context.Context, string, []interface{}, []string, *erp.SearchOptions) ([]erp.Record, error) {
	return g.records, nil
}

func (g *stubGateway) RequireModel(model string) error {
	if g.missing {
		return &erp.ModuleMissingError{Model: model, Module: "project", DisplayName: "Project"}
	}
	return nil
}

type stubStore struct {
	params map[string]string
}

func (s *stubStore) GetParam(_ context.Context, key string) (string, error) {
	return s.params[key], nil
}
func (s *stubStore) SetParam(_ context.Context, key, value string) error {
	s.params[key] = value
	return nil
}
func (s *stubStore) DeleteParam(_ context.Context, key string) error {
	delete(s.params, key)
	return nil
}

type stubDirectory struct{}

func (stubDirectory) FindByWorkEmail(context.Context, string) (int64, string, error) {
	return 42, "Jane", nil
}

func newTestServer(t *testing.T, gw *stubGateway) *Server {
	t.Helper()
	llmClient, err := llm.New(config.LLMConfig{})
	require.NoError(t, err)

	sched, err := scheduler.New("UTC")
	require.NoError(t, err)
	require.NoError(t, sched.Register("daily_report", "Daily report", "0 6 * * *",
		func(context.Context) error { return nil }))

	store := &stubStore{params: map[string]string{"telegram_link_bound": "42|jane"}}
	auth := otp.New(store, stubDirectory{}, nil, nil, false)

	registry := agent.NewRegistry()
	loop := agent.NewLoop(llmClient, registry, llm.NewMemory(llm.DefaultMemoryCapacity))
	surface := agent.NewSurface(auth, loop)

	return NewServer(Deps{
		Config:    &config.Config{APIKey: "sekret", Port: "0"},
		LLM:       llmClient,
		Surface:   surface,
		Analysis:  analysis.NewService(gw, llmClient, nil, nil),
		Scheduler: sched,
		Auth:      auth,
	})
}

func doJSON(t *testing.T, s *Server, method, path, apiKey string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func detail(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	d, ok := body["detail"].(string)
	require.True(t, ok, "error body must carry a detail string: %s", w.Body.String())
	return d
}

func TestRequestsWithoutKeyAreRejected(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	w := doJSON(t, s, http.MethodPost, "/api/v1/analysis/overdue", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, detail(t, w))

	w = doJSON(t, s, http.MethodPost, "/api/v1/analysis/overdue", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthIsOpen(t *testing.T) {
	s := newTestServer(t, &stubGateway{})
	w := doJSON(t, s, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["ai_enabled"])
}

func TestMissingModuleMapsTo503(t *testing.T) {
	s := newTestServer(t, &stubGateway{missing: true})
	w := doJSON(t, s, http.MethodPost, "/api/v1/analysis/overdue", "sekret", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, detail(t, w), "not installed in Odoo")
}

func TestAIUnavailableMapsTo503(t *testing.T) {
	s := newTestServer(t, &stubGateway{})
	w := doJSON(t, s, http.MethodPost, "/api/v1/agent/chat", "sekret",
		map[string]string{"external_id": "bound", "message": "show my tasks"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUnknownReportMapsTo404(t *testing.T) {
	s := newTestServer(t, &stubGateway{})
	w := doJSON(t, s, http.MethodGet, "/api/v1/reports/nope", "sekret", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, detail(t, w), "report nope not found")
}

func TestBadRequestBodyMapsTo400(t *testing.T) {
	s := newTestServer(t, &stubGateway{})
	w := doJSON(t, s, http.MethodPost, "/api/v1/agent/chat", "sekret",
		map[string]string{"external_id": "bound"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthFlowOverHTTP(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	w := doJSON(t, s, http.MethodPost, "/api/v1/auth/link", "sekret",
		map[string]string{"external_id": "u1", "email": "jane@example.com"})
	require.Equal(t, http.StatusOK, w.Code)

	session, ok := s.deps.Auth.PendingSession("u1")
	require.True(t, ok)

	w = doJSON(t, s, http.MethodPost, "/api/v1/auth/verify", "sekret",
		map[string]string{"external_id": "u1", "code": session.Code, "username": "jane"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/auth/resolve/u1", "sekret", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(42), body["employee_id"])

	// wrong code on a consumed session is a client error, not a 500
	w = doJSON(t, s, http.MethodPost, "/api/v1/auth/verify", "sekret",
		map[string]string{"external_id": "u1", "code": "000000"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/auth/unlink", "sekret",
		map[string]string{"external_id": "u1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSchedulerRoutes(t *testing.T) {
	s := newTestServer(t, &stubGateway{})

	w := doJSON(t, s, http.MethodGet, "/api/v1/scheduler/jobs", "sekret", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body["jobs"], 1)
	assert.Equal(t, "daily_report", body["jobs"][0]["id"])

	w = doJSON(t, s, http.MethodPost, "/api/v1/scheduler/jobs/daily_report/pause", "sekret", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/scheduler/jobs/ghost/trigger", "sekret", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
