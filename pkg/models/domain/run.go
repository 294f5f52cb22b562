package domain

import "time"

type ScopeStatus string

const (
	ScopeSuccess ScopeStatus = "success"
	ScopeSkipped ScopeStatus = "skipped"
	ScopeFailed  ScopeStatus = "failed"
)

// ScopeResult reports the outcome of one scope's analysis within a run.
type ScopeResult struct {
	Scope           Scope
	Status          ScopeStatus
	Reason          string // set for skipped/failed scopes
	Findings        int
	ForecastPoints  int
	Recommendations int
}

// RunResult is what a full pipeline run reports back to the caller: per-scope
// status plus aggregate counts, so "nothing changed" is distinguishable from
// "this scope could not be analyzed".
type RunResult struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Scopes      []ScopeResult
	AlertEvents []BudgetAlertEvent
}

func (r RunResult) Counts() (findings, recommendations, alerts int) {
	for _, s := range r.Scopes {
		findings += s.Findings
		recommendations += s.Recommendations
	}
	return findings, recommendations, len(r.AlertEvents)
}

func (r RunResult) Failed() []ScopeResult {
	var out []ScopeResult
	for _, s := range r.Scopes {
		if s.Status == ScopeFailed {
			out = append(out, s)
		}
	}
	return out
}
