package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/config"
	"github.com/memoryd/memoryd/internal/learning"
	"github.com/memoryd/memoryd/internal/repository"
	"github.com/memoryd/memoryd/internal/search"
	"github.com/memoryd/memoryd/internal/services"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	repo, err := repository.Open(repository.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	engine, err := search.New(repo.DB(), nil, search.Config{}, nil)
	require.NoError(t, err)

	svc := services.New(services.Options{
		Config:     config.NewStore(config.Default()),
		Repository: repo,
		Search:     engine,
		Learning:   learning.New(context.Background(), repo, nil),
	})

	srv, err := NewServer(svc, zap.NewNop(), nil)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var health services.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	// No embedder in the test harness: degraded, not failing.
	assert.Equal(t, "degraded", health.OverallStatus)
	assert.Equal(t, "healthy", health.Components["repository"].Status)
}

func TestStoreAndSearchRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/context",
		`{"content":"the deployment pipeline uses blue green switching","tool_name":"claude-code"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var stored services.StoreResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Equal(t, services.OutcomeStored, stored.Outcome)
	require.NotEmpty(t, stored.ConversationID)

	rec = do(t, srv, http.MethodPost, "/context/search", `{"query":"blue green deployment"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotZero(t, resp.Count)
	assert.Equal(t, stored.ConversationID, resp.Results[0].ID)
}

func TestStoreContextValidation(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodPost, "/context", `{"content":"","tool_name":"x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_argument", body.Kind)
}

func TestGetMissingConversationIs404(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/conversations/nope", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body.Kind)
}

func TestDeleteRequiresConfirm(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/context",
		`{"content":"short lived memo for deletion tests","tool_name":"claude-code"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var stored services.StoreResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))

	rec = do(t, srv, http.MethodDelete, "/conversations/"+stored.ConversationID, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/conversations/"+stored.ConversationID+"?confirm=true", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/conversations/"+stored.ConversationID+"?confirm=true", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSuggestionLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/suggestions",
		`{"user_message":"this project uses a monorepo layout with bazel","ai_response":"Right, everything builds through bazel targets","tool_name":"claude-code"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var result services.StoreResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, services.OutcomeSuggested, result.Outcome)

	rec = do(t, srv, http.MethodPost, "/suggestions/"+result.SuggestionID+"/approve", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	// A second approval is an invalid transition: 409.
	rec = do(t, srv, http.MethodPost, "/suggestions/"+result.SuggestionID+"/approve", `{}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProjectCRUD(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/projects", `{"name":"billing","path":"/home/dev/billing"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var project struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &project))
	require.NotEmpty(t, project.ID)

	rec = do(t, srv, http.MethodGet, "/projects/"+project.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	// Duplicate name conflicts.
	rec = do(t, srv, http.MethodPost, "/projects", `{"name":"Billing"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/projects/"+project.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPreferenceRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPut, "/preferences/editor.indent", `{"value":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "editor.indent")

	rec = do(t, srv, http.MethodDelete, "/preferences/editor.indent", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestStatisticsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/context",
		`{"content":"memo for stats counting","tool_name":"claude-code"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/statistics?window_days=7", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats services.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalConversations)
}
