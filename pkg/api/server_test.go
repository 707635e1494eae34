package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembleworks/ensemble/pkg/agents"
	"github.com/ensembleworks/ensemble/pkg/coordinator"
	"github.com/ensembleworks/ensemble/pkg/knowledge"
	"github.com/ensembleworks/ensemble/pkg/llm"
	"github.com/ensembleworks/ensemble/pkg/memory"
	"github.com/ensembleworks/ensemble/pkg/metrics"
	"github.com/ensembleworks/ensemble/pkg/models"
	"github.com/ensembleworks/ensemble/pkg/realtime"
	"github.com/ensembleworks/ensemble/pkg/router"
)

// ─────────────────────────────────────────────────────────────────────────
// Stubs
// ─────────────────────────────────────────────────────────────────────────

type stubRouter struct {
	agent models.Agent
}

func (r stubRouter) Route(_ context.Context, _ string) ([]router.Selection, error) {
	return []router.Selection{{Agent: r.agent, Confidence: 0.9}}, nil
}

type stubPool struct{}

func (stubPool) Invoke(_ context.Context, _ llm.InvokeRequest) (*llm.InvokeResult, error) {
	return &llm.InvokeResult{
		Text:      "Rotate the key from the account settings page [1].",
		Tier:      models.TierBalanced,
		ModelID:   "gpt-4o",
		TokensIn:  50,
		TokensOut: 100,
		Cost:      0.003,
		LatencyMs: 12,
	}, nil
}

func (stubPool) RecordQuality(models.CapabilityTier, float64) {}

type stubRetriever struct{}

func (stubRetriever) Retrieve(_ context.Context, _ string) *knowledge.Knowledge {
	return &knowledge.Knowledge{
		Results: []knowledge.Result{{
			ID:      "kb-1",
			Title:   "API Key Rotation",
			Content: "Keys rotate from the account settings page.",
			Source:  knowledge.SourceIndexed,
			Score:   0.92,
		}},
		Citations: []models.Citation{{
			Index: 1, Title: "API Key Rotation", Source: "knowledge_base", Relevance: 0.92,
		}},
	}
}

// ─────────────────────────────────────────────────────────────────────────
// Harness
// ─────────────────────────────────────────────────────────────────────────

type harness struct {
	server   *Server
	memory   *memory.Memory
	metrics  *metrics.Store
	tracker  *realtime.Tracker
	registry *agents.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	agent := models.Agent{
		ID:       "agent-technical",
		Name:     "technical_support",
		Role:     "Senior Technical Support Engineer",
		Goal:     "Resolve technical issues",
		Keywords: []string{"api", "error"},
		Domain:   "technical",
		IsActive: true,
	}

	store := agents.NewMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), agent))
	registry := agents.NewRegistry(store)

	mem := memory.New()
	met := metrics.NewStore()
	t.Cleanup(met.Close)
	tracker := realtime.NewTracker()

	coord := coordinator.New(coordinator.Dependencies{
		Memory:    mem,
		Metrics:   met,
		Retriever: stubRetriever{},
		Pool:      stubPool{},
		Router:    stubRouter{agent: agent},
		Tracker:   tracker,
	}, coordinator.DefaultBudgets())

	server := NewServer(Config{Host: "127.0.0.1", Port: 0}, Dependencies{
		Coordinator: coord,
		Memory:      mem,
		Metrics:     met,
		Registry:    registry,
		Tracker:     tracker,
		Retriever:   stubRetriever{},
	})

	return &harness{server: server, memory: mem, metrics: met, tracker: tracker, registry: registry}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// ─────────────────────────────────────────────────────────────────────────
// Query
// ─────────────────────────────────────────────────────────────────────────

func TestProcessQueryEndpoint(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/query",
		coordinator.Request{SessionID: "sess-1", Query: "my api key returns an auth error"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[coordinator.Result](t, rec)
	assert.Equal(t, "sess-1", result.SessionID)
	assert.Contains(t, result.Response, "account settings")
	assert.Equal(t, []string{"technical_support"}, result.AgentsUsed)
	assert.NotEmpty(t, result.Citations)
	assert.Equal(t, 150, result.Performance.TokensUsed)
}

func TestProcessQueryRejectsEmptyQuery(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/query", coordinator.Request{Query: "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := decode[map[string]string](t, rec)
	assert.Equal(t, string(models.ErrKindInvalidInput), body["kind"])
}

func TestProcessQueryRejectsMalformedBody(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ─────────────────────────────────────────────────────────────────────────
// Sessions
// ─────────────────────────────────────────────────────────────────────────

func TestSessionLifecycleEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/query",
		coordinator.Request{SessionID: "sess-life", Query: "api error on login"})
	require.Equal(t, http.StatusOK, rec.Code)

	// List includes the session.
	rec = h.do(t, http.MethodGet, "/api/v1/sessions?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[sessionListResponse](t, rec)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "sess-life", list.Sessions[0].SessionID)
	assert.Equal(t, 2, list.Sessions[0].MessageCount)

	// Conversation holds the user turn and the assistant answer.
	rec = h.do(t, http.MethodGet, "/api/v1/sessions/sess-life/conversation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conv := decode[models.Conversation](t, rec)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.RoleUser, conv.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, conv.Messages[1].Role)

	// Tracker snapshot reports the finished execution.
	rec = h.do(t, http.MethodGet, "/api/v1/sessions/sess-life", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[realtime.SessionState](t, rec)
	assert.Equal(t, realtime.PhaseDone, state.Phase)

	// Feedback lands in the metrics rollup.
	rec = h.do(t, http.MethodPost, "/api/v1/sessions/sess-life/feedback",
		feedbackRequest{Rating: 5, Comment: "solved it"})
	require.Equal(t, http.StatusOK, rec.Code)
	feedbackBody := decode[map[string]any](t, rec)
	assert.Equal(t, true, feedbackBody["learning_insight_generated"], "rating 5 yields a high_satisfaction insight")
	assert.Equal(t, 5.0, h.metrics.SystemSummary(time.Hour).AvgRating)
}

func TestSessionListValidation(t *testing.T) {
	h := newHarness(t)

	for _, query := range []string{"limit=0", "limit=101", "limit=abc", "offset=-1"} {
		rec := h.do(t, http.MethodGet, "/api/v1/sessions?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestSessionNotFound(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/sessions/missing/conversation", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/sessions/missing/feedback", feedbackRequest{Rating: 3})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFeedbackRatingValidation(t *testing.T) {
	h := newHarness(t)

	for _, rating := range []int{0, 6, -1} {
		rec := h.do(t, http.MethodPost, "/api/v1/sessions/x/feedback", map[string]int{"rating": rating})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "rating %d", rating)
	}
}

func TestCancelUnknownSession(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/sessions/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestActiveSessionsEmpty(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/sessions/active", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string][]realtime.SessionState](t, rec)
	assert.Empty(t, body["sessions"])
}

// ─────────────────────────────────────────────────────────────────────────
// Agents
// ─────────────────────────────────────────────────────────────────────────

func TestAgentCRUD(t *testing.T) {
	h := newHarness(t)

	created := decode[models.Agent](t, func() *httptest.ResponseRecorder {
		rec := h.do(t, http.MethodPost, "/api/v1/agents", models.Agent{
			Name:     "billing_support",
			Role:     "Billing Specialist",
			Goal:     "Resolve billing questions",
			Keywords: []string{"invoice", "refund"},
			Domain:   "billing",
			IsActive: true,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return rec
	}())
	require.NotEmpty(t, created.ID)

	rec := h.do(t, http.MethodGet, "/api/v1/agents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decode[map[string][]models.Agent](t, rec)
	assert.Len(t, listing["agents"], 2)

	created.Role = "Senior Billing Specialist"
	rec = h.do(t, http.MethodPut, "/api/v1/agents/"+created.ID, created)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.Agent](t, rec)
	assert.Equal(t, "Senior Billing Specialist", updated.Role)

	rec = h.do(t, http.MethodDelete, "/api/v1/agents/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/agents", nil)
	listing = decode[map[string][]models.Agent](t, rec)
	assert.Len(t, listing["agents"], 1)
}

func TestCreateAgentValidationError(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/agents", models.Agent{Name: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "blank name is rejected")

	// Duplicate active name is also rejected.
	rec = h.do(t, http.MethodPost, "/api/v1/agents", models.Agent{Name: "technical_support"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeactivateUnknownAgent(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodDelete, "/api/v1/agents/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ─────────────────────────────────────────────────────────────────────────
// Knowledge, metrics, health
// ─────────────────────────────────────────────────────────────────────────

func TestKnowledgeSearch(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/knowledge/search?q=api+key", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[knowledgeSearchResponse](t, rec)
	require.Len(t, body.Results, 1)
	assert.Equal(t, 1, body.TotalResults)
	assert.Equal(t, "API Key Rotation", body.Results[0].Title)
	assert.Equal(t, "indexed", body.Results[0].Source)
	assert.Len(t, body.Citations, 1)

	rec = h.do(t, http.MethodGet, "/api/v1/knowledge/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing q")

	rec = h.do(t, http.MethodGet, "/api/v1/knowledge/search?q=x&limit=51", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "limit over cap")
}

func TestMetricsSummaryEndpoint(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/query",
		coordinator.Request{SessionID: "sess-m", Query: "api error"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Journal appends are asynchronous; poll until the record lands.
	require.Eventually(t, func() bool {
		return h.metrics.InteractionCount() >= 1
	}, time.Second, 5*time.Millisecond)

	rec = h.do(t, http.MethodGet, "/api/v1/metrics/summary?window=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[metricsSummaryResponse](t, rec)
	assert.Equal(t, "1h0m0s", body.Window)
	assert.GreaterOrEqual(t, body.Summary.Interactions, 1)
	assert.Equal(t, 1.0, body.Summary.SuccessRate)

	rec = h.do(t, http.MethodGet, "/api/v1/metrics/summary?window=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInsightsEndpoint(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/insights", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/insights?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetInsightStatusEndpoint(t *testing.T) {
	h := newHarness(t)

	// A processed query plus a poor rating yields a pending insight.
	rec := h.do(t, http.MethodPost, "/api/v1/query",
		coordinator.Request{SessionID: "sess-i", Query: "api error"})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/v1/sessions/sess-i/feedback",
		feedbackRequest{Rating: 1, Comment: "did not help"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/v1/insights", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decode[struct {
		Insights []models.LearningInsight `json:"insights"`
	}](t, rec)
	require.NotEmpty(t, listing.Insights)
	insightID := listing.Insights[0].ID

	rec = h.do(t, http.MethodPost, "/api/v1/insights/"+insightID+"/status",
		insightStatusRequest{Status: "applied"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/v1/insights?status=applied", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	applied := decode[struct {
		Insights []models.LearningInsight `json:"insights"`
	}](t, rec)
	require.Len(t, applied.Insights, 1)
	assert.Equal(t, insightID, applied.Insights[0].ID)
	assert.NotNil(t, applied.Insights[0].ImplementedAt)

	// Only applied and dismissed are accepted, and the insight must exist.
	rec = h.do(t, http.MethodPost, "/api/v1/insights/"+insightID+"/status",
		insightStatusRequest{Status: "pending"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/v1/insights/ghost/status",
		insightStatusRequest{Status: "dismissed"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, body["version"])
	_, hasDB := body["database"]
	assert.False(t, hasDB, "no database section without a health checker")
}

func TestHealthReportsDegradedDatabase(t *testing.T) {
	h := newHarness(t)
	h.server.deps.DatabaseHealth = func(context.Context) (any, error) {
		return nil, errors.New("connection refused")
	}

	rec := h.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "degraded", body["status"])
}

func TestSecurityHeaders(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

// ─────────────────────────────────────────────────────────────────────────
// Error mapping
// ─────────────────────────────────────────────────────────────────────────

func TestHTTPStatusFor(t *testing.T) {
	tests := []struct {
		kind models.ErrorKind
		want int
	}{
		{models.ErrKindInvalidInput, http.StatusBadRequest},
		{models.ErrKindNotFound, http.StatusNotFound},
		{models.ErrKindNoAgentsAvailable, http.StatusServiceUnavailable},
		{models.ErrKindPoolExhausted, http.StatusServiceUnavailable},
		{models.ErrKindRateLimited, http.StatusTooManyRequests},
		{models.ErrKindTimeout, http.StatusGatewayTimeout},
		{models.ErrKindCancelled, statusCanceled},
		{models.ErrKindProviderError, http.StatusBadGateway},
		{models.ErrKindKnowledgeUnavailable, http.StatusBadGateway},
		{models.ErrKindPartialFailure, http.StatusBadGateway},
		{models.ErrKindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatusFor(tt.kind), string(tt.kind))
	}
}
