// Package forecast projects future daily spend per scope from historical
// series, using trend plus weekly-seasonality decomposition. Forecasts are
// deterministic for identical input and configuration.
package forecast

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/services/policy"
)

// boundZ scales the residual spread into the uncertainty band, roughly a 95%
// interval under normal residuals.
const boundZ = 1.96

type Forecaster struct {
	policy policy.ForecastPolicy
	now    func() time.Time
}

func New(p policy.ForecastPolicy) *Forecaster {
	return &Forecaster{policy: p, now: time.Now}
}

// NewWithClock is used by tests that need reproducible GeneratedAt stamps.
func NewWithClock(p policy.ForecastPolicy, now func() time.Time) *Forecaster {
	return &Forecaster{policy: p, now: now}
}

// Forecast projects horizonDays past the last observed point of the series.
// Below the minimum history it returns a flat projection of the observed
// daily average with ModelConfidence 0 instead of failing, so downstream
// consumers always get a value. An empty series yields no forecast.
func (f *Forecaster) Forecast(scope domain.Scope, series []domain.DailyCost, horizonDays int) []domain.ForecastPoint {
	if len(series) == 0 || horizonDays <= 0 {
		return nil
	}

	filled := fillInteriorGaps(series)
	last := filled[len(filled)-1].Date
	generatedAt := f.now().UTC()

	if len(series) < f.policy.MinHistoryDays {
		return f.flatProjection(scope, series, last, horizonDays, generatedAt)
	}

	n := len(filled)
	intercept, slope := linearFit(filled)

	// Weekly seasonality: mean residual per weekday after removing trend.
	seasonal := [7]float64{}
	counts := [7]int{}
	for i, p := range filled {
		r := p.Amount - (intercept + slope*float64(i))
		wd := int(p.Date.Weekday())
		seasonal[wd] += r
		counts[wd]++
	}
	for wd := range seasonal {
		if counts[wd] > 0 {
			seasonal[wd] /= float64(counts[wd])
		}
	}

	// Residual spread after trend and seasonality drives the bound width.
	var sumSq float64
	var mean float64
	for i, p := range filled {
		e := p.Amount - (intercept + slope*float64(i)) - seasonal[int(p.Date.Weekday())]
		sumSq += e * e
		mean += p.Amount
	}
	sigma := math.Sqrt(sumSq / float64(n))
	mean /= float64(n)

	confidence := modelConfidence(n, f.policy.MinHistoryDays, sigma, mean)

	points := make([]domain.ForecastPoint, 0, horizonDays)
	for h := 1; h <= horizonDays; h++ {
		date := last.AddDate(0, 0, h)
		estimate := intercept + slope*float64(n-1+h) + seasonal[int(date.Weekday())]
		if estimate < 0 {
			estimate = 0
		}
		// Bounds widen monotonically with distance from the last observation.
		width := boundZ * sigma * math.Sqrt(1+float64(h)/float64(n))
		points = append(points, domain.ForecastPoint{
			Scope:           scope,
			Date:            date,
			PointEstimate:   estimate,
			LowerBound:      estimate - width,
			UpperBound:      estimate + width,
			ModelConfidence: confidence,
			GeneratedAt:     generatedAt,
		})
	}
	return points
}

func (f *Forecaster) flatProjection(scope domain.Scope, series []domain.DailyCost, last time.Time, horizonDays int, generatedAt time.Time) []domain.ForecastPoint {
	var total float64
	for _, p := range series {
		total += p.Amount
	}
	avg := total / float64(len(series))

	points := make([]domain.ForecastPoint, 0, horizonDays)
	for h := 1; h <= horizonDays; h++ {
		points = append(points, domain.ForecastPoint{
			Scope:           scope,
			Date:            last.AddDate(0, 0, h),
			PointEstimate:   avg,
			LowerBound:      avg,
			UpperBound:      avg,
			ModelConfidence: 0,
			GeneratedAt:     generatedAt,
		})
	}
	return points
}

// fillInteriorGaps sorts the series, merges duplicate days, and
// zero-interpolates missing days between the first and last observation.
// Leading and trailing gaps are excluded, not zero-filled.
func fillInteriorGaps(series []domain.DailyCost) []domain.DailyCost {
	byDay := make(map[string]float64, len(series))
	for _, p := range series {
		byDay[p.Date.UTC().Format(domain.DateLayout)] += p.Amount
	}
	days := lo.Keys(byDay)
	sort.Strings(days)

	first, _ := time.Parse(domain.DateLayout, days[0])
	lastDay, _ := time.Parse(domain.DateLayout, days[len(days)-1])

	var out []domain.DailyCost
	for d := first; !d.After(lastDay); d = d.AddDate(0, 0, 1) {
		out = append(out, domain.DailyCost{
			Date:   d,
			Amount: byDay[d.Format(domain.DateLayout)],
		})
	}
	return out
}

// linearFit returns least-squares intercept and slope over point index.
func linearFit(series []domain.DailyCost) (intercept, slope float64) {
	n := float64(len(series))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range series {
		x := float64(i)
		sumX += x
		sumY += p.Amount
		sumXY += x * p.Amount
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return sumY / n, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return intercept, slope
}

// modelConfidence grows with history length and shrinks with relative noise.
func modelConfidence(n, minHistory int, sigma, mean float64) float64 {
	history := float64(n) / float64(n+minHistory)
	noise := sigma / (mean + 1)
	c := history / (1 + noise)
	if c < 0.05 {
		c = 0.05
	}
	if c > 0.99 {
		c = 0.99
	}
	return c
}

// MonthlyTotals aggregates forecast points by calendar month, ordered by
// month. Used by reporting consumers that want a period-level view.
func MonthlyTotals(points []domain.ForecastPoint) []domain.MonthlyForecast {
	groups := lo.GroupBy(points, func(p domain.ForecastPoint) string {
		return p.Date.Format("2006-01")
	})
	months := lo.Keys(groups)
	sort.Strings(months)

	out := make([]domain.MonthlyForecast, 0, len(months))
	for _, m := range months {
		agg := domain.MonthlyForecast{Month: m}
		for _, p := range groups[m] {
			agg.Scope = p.Scope
			agg.Total += p.PointEstimate
			agg.LowerTotal += p.LowerBound
			agg.UpperTotal += p.UpperBound
		}
		out = append(out, agg)
	}
	return out
}
