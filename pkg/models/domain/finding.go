package domain

import (
	"crypto/sha256"
	"fmt"
	"time"
)

type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

type FindingKind string

const (
	FindingIdle    FindingKind = "idle"
	FindingAnomaly FindingKind = "anomaly"
)

type FindingStatus string

const (
	FindingOpen  FindingStatus = "open"
	FindingStale FindingStatus = "stale"
)

// Evidence is the structured explanation behind a finding.
type Evidence struct {
	Summary            string   `json:"summary"`
	ExpectedAmount     float64  `json:"expected_amount,omitempty"`
	ActualAmount       float64  `json:"actual_amount,omitempty"`
	Deviation          float64  `json:"deviation,omitempty"`
	AvgUtilizationPct  *float64 `json:"avg_utilization_pct,omitempty"`
	WindowDays         int      `json:"window_days,omitempty"`
	Confidence         float64  `json:"confidence,omitempty"`
	PossibleCauses     []string `json:"possible_causes,omitempty"`
	RecommendedActions []string `json:"recommended_actions,omitempty"`
}

// Finding is a detected condition: an idle resource or a cost anomaly.
type Finding struct {
	ID         string
	Kind       FindingKind
	Scope      Scope
	ResourceID string // set for idle findings
	Service    string
	Provider   Provider
	StartDate  time.Time
	EndDate    time.Time
	Severity   Severity
	Evidence   Evidence
	// EstimatedMonthlySavings is populated for idle findings only.
	EstimatedMonthlySavings *float64
	Status                  FindingStatus
	DetectedAt              time.Time
}

// FindingID derives a stable identifier so repeated runs reaffirm an open
// finding for the same subject instead of duplicating it.
func FindingID(kind FindingKind, scope Scope, subject string) string {
	h := sha256.Sum256([]byte(string(kind) + "|" + string(scope) + "|" + subject))
	return fmt.Sprintf("%s-%x", kind, h[:8])
}
