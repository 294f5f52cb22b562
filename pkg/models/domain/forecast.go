package domain

import "time"

// ForecastPoint is predicted spend for a future date at a given scope.
// Invariant: LowerBound <= PointEstimate <= UpperBound.
type ForecastPoint struct {
	Scope           Scope
	Date            time.Time
	PointEstimate   float64
	LowerBound      float64
	UpperBound      float64
	ModelConfidence float64 // 0..1; 0 marks the degraded flat fallback
	GeneratedAt     time.Time
}

// MonthlyForecast aggregates forecast points by calendar month.
type MonthlyForecast struct {
	Scope      Scope
	Month      string // "2006-01"
	Total      float64
	LowerTotal float64
	UpperTotal float64
}
