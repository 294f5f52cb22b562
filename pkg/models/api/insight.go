// Package api holds the JSON shapes served by the web API. Domain types stay
// internal; these are the stable wire contract.
package api

import "time"

type Error struct {
	Message string `json:"message"`
}

type Finding struct {
	ID                      string    `json:"id"`
	Kind                    string    `json:"kind"`
	Scope                   string    `json:"scope"`
	ResourceID              string    `json:"resource_id,omitempty"`
	Service                 string    `json:"service,omitempty"`
	Provider                string    `json:"provider,omitempty"`
	StartDate               string    `json:"start_date"`
	EndDate                 string    `json:"end_date"`
	Severity                string    `json:"severity"`
	Status                  string    `json:"status"`
	Summary                 string    `json:"summary"`
	EstimatedMonthlySavings *float64  `json:"estimated_monthly_savings,omitempty"`
	ExpectedAmount          float64   `json:"expected_amount,omitempty"`
	ActualAmount            float64   `json:"actual_amount,omitempty"`
	Deviation               float64   `json:"deviation,omitempty"`
	PossibleCauses          []string  `json:"possible_causes,omitempty"`
	RecommendedActions      []string  `json:"recommended_actions,omitempty"`
	DetectedAt              time.Time `json:"detected_at"`
}

type Recommendation struct {
	ID                      string    `json:"id"`
	Category                string    `json:"category"`
	Scope                   string    `json:"scope"`
	Description             string    `json:"description"`
	EstimatedMonthlySavings float64   `json:"estimated_monthly_savings"`
	Confidence              float64   `json:"confidence"`
	SourceFindingIDs        []string  `json:"source_finding_ids,omitempty"`
	ImplementationSteps     []string  `json:"implementation_steps,omitempty"`
	Status                  string    `json:"status"`
	CreatedAt               time.Time `json:"created_at"`
	UpdatedAt               time.Time `json:"updated_at"`
}

type ForecastPoint struct {
	Scope           string  `json:"scope"`
	Date            string  `json:"date"`
	PointEstimate   float64 `json:"point_estimate"`
	LowerBound      float64 `json:"lower_bound"`
	UpperBound      float64 `json:"upper_bound"`
	ModelConfidence float64 `json:"model_confidence"`
}

type MonthlyForecast struct {
	Scope      string  `json:"scope"`
	Month      string  `json:"month"`
	Total      float64 `json:"total"`
	LowerTotal float64 `json:"lower_total"`
	UpperTotal float64 `json:"upper_total"`
}

type BudgetAlertEvent struct {
	BudgetID             string    `json:"budget_id"`
	Kind                 string    `json:"kind"`
	ThresholdCrossed     float64   `json:"threshold_crossed,omitempty"`
	PeriodKey            string    `json:"period_key"`
	ActualSpendAtTrigger float64   `json:"actual_spend_at_trigger"`
	ProjectedPeriodSpend *float64  `json:"projected_period_spend,omitempty"`
	TriggeredAt          time.Time `json:"triggered_at"`
}

type ScopeResult struct {
	Scope           string `json:"scope"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
	Findings        int    `json:"findings"`
	ForecastPoints  int    `json:"forecast_points"`
	Recommendations int    `json:"recommendations"`
}

type RunSummary struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Scopes      []ScopeResult `json:"scopes"`
	AlertsFired int           `json:"alerts_fired"`
}

type StoreStats struct {
	RecordCount     int64   `json:"record_count"`
	SignalCount     int64   `json:"signal_count"`
	FirstRecordDate *string `json:"first_record_date,omitempty"`
	LastRecordDate  *string `json:"last_record_date,omitempty"`
}
