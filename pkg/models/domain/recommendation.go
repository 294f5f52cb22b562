package domain

import (
	"crypto/sha256"
	"fmt"
	"time"
)

type RecommendationCategory string

const (
	CategoryRightsizing      RecommendationCategory = "rightsizing"
	CategoryIdleRemoval      RecommendationCategory = "idle-removal"
	CategoryReservedCapacity RecommendationCategory = "reserved-capacity"
	CategoryOther            RecommendationCategory = "other"
)

type RecommendationStatus string

const (
	RecommendationOpen      RecommendationStatus = "open"
	RecommendationDismissed RecommendationStatus = "dismissed"
	RecommendationApplied   RecommendationStatus = "applied"
	// RecommendationStale marks items whose supporting findings disappeared
	// in the latest run. Kept for audit; never deleted automatically.
	RecommendationStale RecommendationStatus = "stale"
)

// Recommendation is an actionable item derived from one or more findings.
// At most one open recommendation exists per (scope, category).
type Recommendation struct {
	ID                      string
	Category                RecommendationCategory
	Scope                   Scope
	Description             string
	EstimatedMonthlySavings float64
	Confidence              float64 // 0..1
	SourceFindingIDs        []string
	ImplementationSteps     []string
	Status                  RecommendationStatus
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// RecommendationID is a stable hash of scope+category so recomputation on
// unchanged input finds and updates the existing row instead of appending.
func RecommendationID(scope Scope, category RecommendationCategory) string {
	h := sha256.Sum256([]byte(string(scope) + ":" + string(category)))
	return fmt.Sprintf("rec-%x", h[:8])
}
