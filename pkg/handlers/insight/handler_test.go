package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/costlens/costlens/pkg/models/api"
	"github.com/costlens/costlens/pkg/models/domain"
	storemodels "github.com/costlens/costlens/pkg/models/store"
)

type mockReader struct {
	mock.Mock
}

func (m *mockReader) ListFindings(ctx context.Context, status domain.FindingStatus, kind domain.FindingKind) ([]domain.Finding, error) {
	args := m.Called(ctx, status, kind)
	return args.Get(0).([]domain.Finding), args.Error(1)
}

func (m *mockReader) ListRecommendations(ctx context.Context, status domain.RecommendationStatus) ([]domain.Recommendation, error) {
	args := m.Called(ctx, status)
	return args.Get(0).([]domain.Recommendation), args.Error(1)
}

func (m *mockReader) SetRecommendationStatus(ctx context.Context, id string, status domain.RecommendationStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *mockReader) GetForecast(ctx context.Context, scope domain.Scope) ([]domain.ForecastPoint, error) {
	args := m.Called(ctx, scope)
	return args.Get(0).([]domain.ForecastPoint), args.Error(1)
}

func (m *mockReader) ListAlertEvents(ctx context.Context, since time.Time) ([]domain.BudgetAlertEvent, error) {
	args := m.Called(ctx, since)
	return args.Get(0).([]domain.BudgetAlertEvent), args.Error(1)
}

func (m *mockReader) GetStats(ctx context.Context) (*storemodels.IngestStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(*storemodels.IngestStats), args.Error(1)
}

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context) (domain.RunResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.RunResult), args.Error(1)
}

func newTestRouter(reader Reader, analyzer Analyzer) *chi.Mux {
	h := NewHandler(reader, analyzer)
	r := chi.NewRouter()
	r.Get("/findings", h.ListFindings)
	r.Get("/recommendations", h.ListRecommendations)
	r.Patch("/recommendations/{id}", h.UpdateRecommendation)
	r.Get("/forecast", h.GetForecast)
	r.Get("/alerts", h.ListAlerts)
	r.Post("/runs", h.TriggerRun)
	r.Get("/stats", h.GetStats)
	return r
}

func TestListFindings_PassesFilters(t *testing.T) {
	savings := 60.0
	finding := domain.Finding{
		ID:                      "idle-abc",
		Kind:                    domain.FindingIdle,
		Scope:                   domain.AccountScope(domain.ProviderAWS, "111"),
		ResourceID:              "i-abc",
		Service:                 "EC2",
		Provider:                domain.ProviderAWS,
		StartDate:               time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC),
		EndDate:                 time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC),
		Severity:                domain.SeverityMedium,
		Evidence:                domain.Evidence{Summary: "resource billed while unused"},
		EstimatedMonthlySavings: &savings,
		Status:                  domain.FindingOpen,
		DetectedAt:              time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC),
	}

	reader := &mockReader{}
	reader.On("ListFindings", mock.Anything, domain.FindingOpen, domain.FindingIdle).
		Return([]domain.Finding{finding}, nil)

	router := newTestRouter(reader, &mockAnalyzer{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/findings?status=open&kind=idle", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []api.Finding
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "idle-abc", got[0].ID)
	assert.Equal(t, "2026-08-10", got[0].StartDate)
	assert.Equal(t, "medium", got[0].Severity)
	require.NotNil(t, got[0].EstimatedMonthlySavings)
	assert.Equal(t, 60.0, *got[0].EstimatedMonthlySavings)
}

func TestListFindings_EmptyResultIsEmptyArray(t *testing.T) {
	reader := &mockReader{}
	reader.On("ListFindings", mock.Anything, domain.FindingStatus(""), domain.FindingKind("")).
		Return([]domain.Finding(nil), nil)

	router := newTestRouter(reader, &mockAnalyzer{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/findings", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestListFindings_StoreError(t *testing.T) {
	reader := &mockReader{}
	reader.On("ListFindings", mock.Anything, mock.Anything, mock.Anything).
		Return([]domain.Finding(nil), errors.New("database is locked"))

	router := newTestRouter(reader, &mockAnalyzer{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/findings", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var e api.Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "failed to list findings", e.Message)
}

func TestUpdateRecommendation_Dismiss(t *testing.T) {
	reader := &mockReader{}
	reader.On("SetRecommendationStatus", mock.Anything, "rec-1", domain.RecommendationDismissed).
		Return(nil)

	router := newTestRouter(reader, &mockAnalyzer{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/recommendations/rec-1",
		strings.NewReader(`{"status":"dismissed"}`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	reader.AssertExpectations(t)
}

func TestUpdateRecommendation_RejectsAnalyzerOwnedStatus(t *testing.T) {
	reader := &mockReader{}
	router := newTestRouter(reader, &mockAnalyzer{})

	for _, status := range []string{"open", "stale", "bogus"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPatch, "/recommendations/rec-1",
			strings.NewReader(`{"status":"`+status+`"}`))
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, status)
	}
	reader.AssertNotCalled(t, "SetRecommendationStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateRecommendation_UnknownID(t *testing.T) {
	reader := &mockReader{}
	reader.On("SetRecommendationStatus", mock.Anything, "rec-missing", domain.RecommendationApplied).
		Return(errors.New(`recommendation "rec-missing" not found`))

	router := newTestRouter(reader, &mockAnalyzer{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPatch, "/recommendations/rec-missing",
		strings.NewReader(`{"status":"applied"}`))
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetForecast_DefaultsToTotalScope(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetForecast", mock.Anything, domain.ScopeTotal).
		Return([]domain.ForecastPoint{{
			Scope:           domain.ScopeTotal,
			Date:            time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
			PointEstimate:   120,
			LowerBound:      100,
			UpperBound:      140,
			ModelConfidence: 0.8,
		}}, nil)

	router := newTestRouter(reader, &mockAnalyzer{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/forecast", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []api.ForecastPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "total", got[0].Scope)
	assert.Equal(t, "2026-08-29", got[0].Date)
	assert.Equal(t, 120.0, got[0].PointEstimate)
}

func TestGetForecast_MonthlyGranularity(t *testing.T) {
	reader := &mockReader{}
	reader.On("GetForecast", mock.Anything, domain.ScopeTotal).
		Return([]domain.ForecastPoint{
			{Scope: domain.ScopeTotal, Date: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), PointEstimate: 100, LowerBound: 90, UpperBound: 110},
			{Scope: domain.ScopeTotal, Date: time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), PointEstimate: 100, LowerBound: 90, UpperBound: 110},
			{Scope: domain.ScopeTotal, Date: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), PointEstimate: 120, LowerBound: 105, UpperBound: 135},
		}, nil)

	router := newTestRouter(reader, &mockAnalyzer{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/forecast?granularity=monthly", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []api.MonthlyForecast
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "2026-08", got[0].Month)
	assert.Equal(t, 200.0, got[0].Total)
	assert.Equal(t, 180.0, got[0].LowerTotal)
	assert.Equal(t, "2026-09", got[1].Month)
	assert.Equal(t, 120.0, got[1].Total)
}

func TestGetForecast_ExplicitScope(t *testing.T) {
	scope := domain.AccountScope(domain.ProviderAWS, "111")
	reader := &mockReader{}
	reader.On("GetForecast", mock.Anything, scope).
		Return([]domain.ForecastPoint(nil), nil)

	router := newTestRouter(reader, &mockAnalyzer{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/forecast?scope=account/AWS/111", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	reader.AssertExpectations(t)
}

func TestTriggerRun_ReportsScopeOutcomes(t *testing.T) {
	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything).Return(domain.RunResult{
		RunID: "run-1",
		Scopes: []domain.ScopeResult{
			{Scope: domain.AccountScope(domain.ProviderAWS, "111"), Status: domain.ScopeSuccess, Findings: 2, ForecastPoints: 30, Recommendations: 1},
			{Scope: domain.AccountScope(domain.ProviderGCP, "p1"), Status: domain.ScopeSkipped, Reason: "malformed input: negative amount -5.0000"},
		},
		AlertEvents: []domain.BudgetAlertEvent{{BudgetID: "total"}},
	}, nil)

	router := newTestRouter(&mockReader{}, analyzer)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got api.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 1, got.AlertsFired)
	require.Len(t, got.Scopes, 2)
	assert.Equal(t, "success", got.Scopes[0].Status)
	assert.Equal(t, "skipped", got.Scopes[1].Status)
	assert.Contains(t, got.Scopes[1].Reason, "malformed input")
}

func TestTriggerRun_AnalyzerError(t *testing.T) {
	analyzer := &mockAnalyzer{}
	analyzer.On("Analyze", mock.Anything).
		Return(domain.RunResult{}, errors.New("no records in store"))

	router := newTestRouter(&mockReader{}, analyzer)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/runs", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetStats_FormatsDates(t *testing.T) {
	first := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)
	reader := &mockReader{}
	reader.On("GetStats", mock.Anything).Return(&storemodels.IngestStats{
		RecordCount:     1200,
		SignalCount:     340,
		FirstRecordDate: &first,
		LastRecordDate:  &last,
	}, nil)

	router := newTestRouter(reader, &mockAnalyzer{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got api.StoreStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1200), got.RecordCount)
	require.NotNil(t, got.FirstRecordDate)
	assert.Equal(t, "2026-05-01", *got.FirstRecordDate)
	require.NotNil(t, got.LastRecordDate)
	assert.Equal(t, "2026-08-27", *got.LastRecordDate)
}

func TestListAlerts_WindowedSince(t *testing.T) {
	reader := &mockReader{}
	reader.On("ListAlertEvents", mock.Anything, mock.MatchedBy(func(since time.Time) bool {
		return time.Since(since) > 89*24*time.Hour && time.Since(since) < 91*24*time.Hour
	})).Return([]domain.BudgetAlertEvent{{
		BudgetID:             "total",
		Kind:                 domain.AlertThresholdCrossed,
		ThresholdCrossed:     80,
		PeriodKey:            "2026-08",
		ActualSpendAtTrigger: 850,
	}}, nil)

	router := newTestRouter(reader, &mockAnalyzer{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alerts", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []api.BudgetAlertEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "threshold_crossed", got[0].Kind)
	assert.Equal(t, 80.0, got[0].ThresholdCrossed)
}
