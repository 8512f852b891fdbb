package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ppiankov/vigil/internal/model"
	"github.com/ppiankov/vigil/internal/store"
)

type stubReporter struct {
	status model.Status
}

func (s *stubReporter) Status() model.Status { return s.status }

func newTestRouter(t *testing.T) (http.Handler, *store.ClaimStore, *store.ConflictStore, *stubReporter) {
	t.Helper()
	dir := t.TempDir()
	logger := zap.NewNop()

	claims, err := store.NewClaimStore(dir, time.Minute, logger)
	require.NoError(t, err)
	conflicts, err := store.NewConflictStore(dir, logger)
	require.NoError(t, err)

	reporter := &stubReporter{}
	cfg := model.ServerConfig{RateLimitRPS: 1000, RateLimitBurst: 1000}
	return NewRouter(claims, conflicts, reporter, cfg, logger), claims, conflicts, reporter
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	rr := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "vigil", body["service"])
}

func TestGetClaims(t *testing.T) {
	router, claims, _, _ := newTestRouter(t)

	stored := model.Claim{
		ClaimID:    "clm_1",
		SessionID:  "session_a",
		EventID:    "evt_1",
		Scope:      model.ScopeGlobal,
		Modality:   model.ModalityMustNot,
		Action:     "file_write",
		Target:     "production files",
		Conditions: []string{},
		Exceptions: []string{},
		Confidence: 0.95,
		Evidence:   []string{"Never modify production files"},
	}
	require.NoError(t, claims.Append("session_a", []model.Claim{stored}))

	rr := get(t, router, "/monitor/claims/session_a")
	assert.Equal(t, http.StatusOK, rr.Code)

	var got []model.Claim
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, stored, got[0])
}

func TestGetClaims_UnknownSessionReturnsEmptyList(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	rr := get(t, router, "/monitor/claims/nope")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String(), "unknown session must be an empty list, not null")
}

func TestGetConflicts(t *testing.T) {
	router, _, conflicts, _ := newTestRouter(t)

	stored := model.Conflict{
		ConflictID:  "cfl_abc123",
		SessionID:   "session_a",
		Claims:      []string{"clm_1", "clm_2"},
		Severity:    model.SeverityHard,
		Explanation: "Contradictory instructions: must_not file_write vs must file_write on 'production files'",
		Confidence:  0.9,
	}
	_, err := conflicts.AppendNew("session_a", []model.Conflict{stored})
	require.NoError(t, err)

	rr := get(t, router, "/monitor/conflicts/session_a")
	assert.Equal(t, http.StatusOK, rr.Code)

	var got []model.Conflict
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, stored.ConflictID, got[0].ConflictID)
	assert.Equal(t, model.SeverityHard, got[0].Severity)
	assert.Equal(t, []string{"clm_1", "clm_2"}, got[0].Claims)
}

func TestGetConflicts_UnknownSessionReturnsEmptyList(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	rr := get(t, router, "/monitor/conflicts/nope")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestGetStatus(t *testing.T) {
	router, _, _, reporter := newTestRouter(t)
	reporter.status = model.Status{
		SessionsTracked: 3,
		PendingCount:    2,
		FailedCount:     1,
		LastCycleTime:   time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
	}

	rr := get(t, router, "/monitor/status")
	assert.Equal(t, http.StatusOK, rr.Code)

	var got model.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, reporter.status, got)
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	rr := get(t, router, "/health")
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
}

func TestUnknownRouteIs404(t *testing.T) {
	router, _, _, _ := newTestRouter(t)

	rr := get(t, router, "/monitor/nope")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
