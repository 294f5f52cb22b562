package forecast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/services/policy"
)

var testClock = func() time.Time {
	return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
}

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func constantSeries(start string, days int, amount float64) []domain.DailyCost {
	first := day(start)
	out := make([]domain.DailyCost, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, domain.DailyCost{Date: first.AddDate(0, 0, i), Amount: amount})
	}
	return out
}

func TestForecast_EmptySeries(t *testing.T) {
	f := NewWithClock(policy.Default().Forecast, testClock)
	assert.Nil(t, f.Forecast(domain.ScopeTotal, nil, 30))
}

func TestForecast_FlatFallbackBelowMinHistory(t *testing.T) {
	f := NewWithClock(policy.ForecastPolicy{MinHistoryDays: 14, HorizonDays: 30}, testClock)

	series := constantSeries("2026-08-01", 5, 100)
	points := f.Forecast(domain.ScopeTotal, series, 30)

	require.Len(t, points, 30)
	for _, p := range points {
		assert.Equal(t, 100.0, p.PointEstimate)
		assert.Equal(t, p.PointEstimate, p.LowerBound)
		assert.Equal(t, p.PointEstimate, p.UpperBound)
		assert.Equal(t, 0.0, p.ModelConfidence)
	}
	assert.Equal(t, day("2026-08-06"), points[0].Date)
	assert.Equal(t, day("2026-09-04"), points[29].Date)
}

func TestForecast_ConstantSeries(t *testing.T) {
	f := NewWithClock(policy.Default().Forecast, testClock)

	series := constantSeries("2026-08-01", 21, 50)
	points := f.Forecast(domain.AccountScope(domain.ProviderAWS, "123"), series, 7)

	require.Len(t, points, 7)
	for _, p := range points {
		assert.InDelta(t, 50.0, p.PointEstimate, 1e-9)
		// No residual spread means zero-width bounds.
		assert.InDelta(t, p.PointEstimate, p.LowerBound, 1e-9)
		assert.InDelta(t, p.PointEstimate, p.UpperBound, 1e-9)
		assert.Greater(t, p.ModelConfidence, 0.0)
	}
}

func TestForecast_TrendIsProjected(t *testing.T) {
	f := NewWithClock(policy.Default().Forecast, testClock)

	series := make([]domain.DailyCost, 0, 28)
	first := day("2026-07-01")
	for i := 0; i < 28; i++ {
		series = append(series, domain.DailyCost{Date: first.AddDate(0, 0, i), Amount: 100 + 2*float64(i)})
	}

	points := f.Forecast(domain.ScopeTotal, series, 14)
	require.Len(t, points, 14)
	for i := 1; i < len(points); i++ {
		assert.Greater(t, points[i].PointEstimate, points[i-1].PointEstimate)
	}
	// One step past the last observation continues the trend.
	assert.InDelta(t, 100+2*28.0, points[0].PointEstimate, 1e-6)
}

func TestForecast_BoundsOrderedAndWiden(t *testing.T) {
	f := NewWithClock(policy.Default().Forecast, testClock)

	// Alternating amounts leave residual noise the seasonal terms cannot
	// absorb, so the uncertainty band has real width.
	series := make([]domain.DailyCost, 0, 28)
	first := day("2026-07-01")
	for i := 0; i < 28; i++ {
		amount := 40.0
		if i%2 == 1 {
			amount = 60.0
		}
		series = append(series, domain.DailyCost{Date: first.AddDate(0, 0, i), Amount: amount})
	}

	points := f.Forecast(domain.ScopeTotal, series, 10)
	require.Len(t, points, 10)

	prevWidth := 0.0
	for _, p := range points {
		assert.LessOrEqual(t, p.LowerBound, p.PointEstimate)
		assert.GreaterOrEqual(t, p.UpperBound, p.PointEstimate)
		width := p.UpperBound - p.LowerBound
		assert.Greater(t, width, prevWidth)
		prevWidth = width
	}
}

func TestForecast_Deterministic(t *testing.T) {
	f := NewWithClock(policy.Default().Forecast, testClock)

	series := constantSeries("2026-08-01", 20, 75)
	first := f.Forecast(domain.ScopeTotal, series, 30)
	second := f.Forecast(domain.ScopeTotal, series, 30)

	assert.Equal(t, first, second)
}

func TestForecast_InteriorGapsZeroFilled(t *testing.T) {
	f := NewWithClock(policy.ForecastPolicy{MinHistoryDays: 3, HorizonDays: 30}, testClock)

	// 10 observed days with a hole; the hole counts as a zero-spend day and
	// drags the fitted level below the observed average.
	series := constantSeries("2026-08-01", 10, 100)
	series = append(series[:5], series[6:]...)

	points := f.Forecast(domain.ScopeTotal, series, 1)
	require.Len(t, points, 1)
	assert.Less(t, points[0].PointEstimate, 100.0)
}

func TestMonthlyTotals(t *testing.T) {
	f := NewWithClock(policy.Default().Forecast, testClock)

	series := constantSeries("2026-08-01", 21, 10)
	points := f.Forecast(domain.ScopeTotal, series, 30)

	months := MonthlyTotals(points)
	require.Len(t, months, 2)
	assert.Equal(t, "2026-08", months[0].Month)
	assert.Equal(t, "2026-09", months[1].Month)

	var total float64
	for _, m := range months {
		total += m.Total
	}
	assert.InDelta(t, 300.0, total, 1e-6)
}
