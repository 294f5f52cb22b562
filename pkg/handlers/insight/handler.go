// Package insight serves analysis results: findings, forecasts,
// recommendations, budget alerts, and on-demand runs.
package insight

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/costlens/costlens/pkg/models/api"
	"github.com/costlens/costlens/pkg/models/domain"
	storemodels "github.com/costlens/costlens/pkg/models/store"
	"github.com/costlens/costlens/pkg/services/analysis/forecast"
)

const defaultAlertWindowDays = 90

// Reader is the store surface the handler needs.
type Reader interface {
	ListFindings(ctx context.Context, status domain.FindingStatus, kind domain.FindingKind) ([]domain.Finding, error)
	ListRecommendations(ctx context.Context, status domain.RecommendationStatus) ([]domain.Recommendation, error)
	SetRecommendationStatus(ctx context.Context, id string, status domain.RecommendationStatus) error
	GetForecast(ctx context.Context, scope domain.Scope) ([]domain.ForecastPoint, error)
	ListAlertEvents(ctx context.Context, since time.Time) ([]domain.BudgetAlertEvent, error)
	GetStats(ctx context.Context) (*storemodels.IngestStats, error)
}

// Analyzer triggers a full analysis run over the stored records.
type Analyzer interface {
	Analyze(ctx context.Context) (domain.RunResult, error)
}

type Handler struct {
	reader   Reader
	analyzer Analyzer
}

func NewHandler(reader Reader, analyzer Analyzer) *Handler {
	return &Handler{
		reader:   reader,
		analyzer: analyzer,
	}
}

func (h *Handler) ListFindings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := domain.FindingStatus(r.URL.Query().Get("status"))
	kind := domain.FindingKind(r.URL.Query().Get("kind"))

	findings, err := h.reader.ListFindings(ctx, status, kind)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, "failed to list findings", err)
		return
	}

	response := make([]api.Finding, 0, len(findings))
	for _, f := range findings {
		response = append(response, toAPIFinding(f))
	}
	writeJSON(ctx, w, response)
}

func (h *Handler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := domain.RecommendationStatus(r.URL.Query().Get("status"))
	recs, err := h.reader.ListRecommendations(ctx, status)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, "failed to list recommendations", err)
		return
	}

	response := make([]api.Recommendation, 0, len(recs))
	for _, rec := range recs {
		response = append(response, toAPIRecommendation(rec))
	}
	writeJSON(ctx, w, response)
}

// UpdateRecommendation applies a manual status transition. Only dismissed
// and applied are accepted; the analyzer owns the other states.
func (h *Handler) UpdateRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	status := domain.RecommendationStatus(body.Status)
	if status != domain.RecommendationDismissed && status != domain.RecommendationApplied {
		writeError(ctx, w, http.StatusBadRequest, "status must be dismissed or applied", nil)
		return
	}

	if err := h.reader.SetRecommendationStatus(ctx, id, status); err != nil {
		writeError(ctx, w, http.StatusNotFound, "failed to update recommendation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetForecast serves the stored daily forecast for a scope; with
// granularity=monthly the points are rolled up by calendar month.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	scope := domain.Scope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = domain.ScopeTotal
	}

	points, err := h.reader.GetForecast(ctx, scope)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, "failed to load forecast", err)
		return
	}

	if r.URL.Query().Get("granularity") == "monthly" {
		months := forecast.MonthlyTotals(points)
		response := make([]api.MonthlyForecast, 0, len(months))
		for _, m := range months {
			response = append(response, api.MonthlyForecast{
				Scope:      string(m.Scope),
				Month:      m.Month,
				Total:      m.Total,
				LowerTotal: m.LowerTotal,
				UpperTotal: m.UpperTotal,
			})
		}
		writeJSON(ctx, w, response)
		return
	}

	response := make([]api.ForecastPoint, 0, len(points))
	for _, p := range points {
		response = append(response, api.ForecastPoint{
			Scope:           string(p.Scope),
			Date:            p.Date.Format(domain.DateLayout),
			PointEstimate:   p.PointEstimate,
			LowerBound:      p.LowerBound,
			UpperBound:      p.UpperBound,
			ModelConfidence: p.ModelConfidence,
		})
	}
	writeJSON(ctx, w, response)
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	since := time.Now().UTC().AddDate(0, 0, -defaultAlertWindowDays)
	events, err := h.reader.ListAlertEvents(ctx, since)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, "failed to list alerts", err)
		return
	}

	response := make([]api.BudgetAlertEvent, 0, len(events))
	for _, e := range events {
		response = append(response, api.BudgetAlertEvent{
			BudgetID:             e.BudgetID,
			Kind:                 string(e.Kind),
			ThresholdCrossed:     e.ThresholdCrossed,
			PeriodKey:            e.PeriodKey,
			ActualSpendAtTrigger: e.ActualSpendAtTrigger,
			ProjectedPeriodSpend: e.ProjectedPeriodSpend,
			TriggeredAt:          e.TriggeredAt,
		})
	}
	writeJSON(ctx, w, response)
}

// TriggerRun executes a synchronous analysis run and reports per-scope
// outcomes.
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.analyzer.Analyze(ctx)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, "analysis run failed", err)
		return
	}

	summary := api.RunSummary{
		RunID:       result.RunID,
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
		AlertsFired: len(result.AlertEvents),
	}
	for _, s := range result.Scopes {
		summary.Scopes = append(summary.Scopes, api.ScopeResult{
			Scope:           string(s.Scope),
			Status:          string(s.Status),
			Reason:          s.Reason,
			Findings:        s.Findings,
			ForecastPoints:  s.ForecastPoints,
			Recommendations: s.Recommendations,
		})
	}
	writeJSON(ctx, w, summary)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.reader.GetStats(ctx)
	if err != nil {
		writeError(ctx, w, http.StatusInternalServerError, "failed to load stats", err)
		return
	}

	response := api.StoreStats{
		RecordCount: stats.RecordCount,
		SignalCount: stats.SignalCount,
	}
	if stats.FirstRecordDate != nil {
		d := stats.FirstRecordDate.Format(domain.DateLayout)
		response.FirstRecordDate = &d
	}
	if stats.LastRecordDate != nil {
		d := stats.LastRecordDate.Format(domain.DateLayout)
		response.LastRecordDate = &d
	}
	writeJSON(ctx, w, response)
}

func toAPIFinding(f domain.Finding) api.Finding {
	return api.Finding{
		ID:                      f.ID,
		Kind:                    string(f.Kind),
		Scope:                   string(f.Scope),
		ResourceID:              f.ResourceID,
		Service:                 f.Service,
		Provider:                string(f.Provider),
		StartDate:               f.StartDate.Format(domain.DateLayout),
		EndDate:                 f.EndDate.Format(domain.DateLayout),
		Severity:                f.Severity.String(),
		Status:                  string(f.Status),
		Summary:                 f.Evidence.Summary,
		EstimatedMonthlySavings: f.EstimatedMonthlySavings,
		ExpectedAmount:          f.Evidence.ExpectedAmount,
		ActualAmount:            f.Evidence.ActualAmount,
		Deviation:               f.Evidence.Deviation,
		PossibleCauses:          f.Evidence.PossibleCauses,
		RecommendedActions:      f.Evidence.RecommendedActions,
		DetectedAt:              f.DetectedAt,
	}
}

func toAPIRecommendation(r domain.Recommendation) api.Recommendation {
	return api.Recommendation{
		ID:                      r.ID,
		Category:                string(r.Category),
		Scope:                   string(r.Scope),
		Description:             r.Description,
		EstimatedMonthlySavings: r.EstimatedMonthlySavings,
		Confidence:              r.Confidence,
		SourceFindingIDs:        r.SourceFindingIDs,
		ImplementationSteps:     r.ImplementationSteps,
		Status:                  string(r.Status),
		CreatedAt:               r.CreatedAt,
		UpdatedAt:               r.UpdatedAt,
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, code int, msg string, err error) {
	logger := zerolog.Ctx(ctx)
	if err != nil {
		logger.Error().Err(err).Msg(msg)
	} else {
		logger.Error().Msg(msg)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(api.Error{Message: msg})
}
