// Package budget evaluates accumulated spend against configured ceilings and
// emits alert events. Each (budget, threshold, period) fires at most once;
// the crossed set is persisted between runs so spend hovering at a threshold
// does not re-alert.
package budget

import (
	"sort"
	"time"

	"github.com/costlens/costlens/pkg/models/domain"
)

// State is the persisted per-(budget, period) alert state. A new period key
// resets it, which closes the prior period.
type State struct {
	BudgetID          string
	PeriodKey         string
	CrossedThresholds []float64
	ProjectedFired    bool
}

func (s State) crossed(threshold float64) bool {
	for _, t := range s.CrossedThresholds {
		if t == threshold {
			return true
		}
	}
	return false
}

type Engine struct {
	now func() time.Time
}

func New() *Engine {
	return &Engine{now: time.Now}
}

func NewWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Evaluate computes period spend for the budget's scope, fires events for
// each threshold newly crossed (ascending, so several crossed in one run emit
// in order), and optionally a single projected-overage event when the
// forecast projects period-end spend above the limit. It returns the events
// plus the updated state for persistence.
func (e *Engine) Evaluate(b domain.Budget, records []domain.CostRecord, forecastPoints []domain.ForecastPoint, prior State) ([]domain.BudgetAlertEvent, State) {
	now := e.now().UTC()
	periodKey := b.Period.Key(now)

	state := prior
	if state.BudgetID != b.ID || state.PeriodKey != periodKey {
		// PeriodClosed: a fresh period instance starts with nothing crossed.
		state = State{BudgetID: b.ID, PeriodKey: periodKey}
	}

	actual := e.periodSpend(b, records, now)

	thresholds := append([]float64(nil), b.AlertThresholds...)
	sort.Float64s(thresholds)

	var events []domain.BudgetAlertEvent
	for _, t := range thresholds {
		if state.crossed(t) {
			continue
		}
		if actual/b.LimitAmount*100 < t {
			continue
		}
		state.CrossedThresholds = append(state.CrossedThresholds, t)
		events = append(events, domain.BudgetAlertEvent{
			BudgetID:             b.ID,
			Kind:                 domain.AlertThresholdCrossed,
			ThresholdCrossed:     t,
			PeriodKey:            periodKey,
			ActualSpendAtTrigger: actual,
			TriggeredAt:          now,
		})
	}

	if !state.ProjectedFired && len(forecastPoints) > 0 {
		projected := actual + remainingForecast(b, forecastPoints, now)
		if projected > b.LimitAmount {
			state.ProjectedFired = true
			events = append(events, domain.BudgetAlertEvent{
				BudgetID:             b.ID,
				Kind:                 domain.AlertProjectedOverage,
				PeriodKey:            periodKey,
				ActualSpendAtTrigger: actual,
				ProjectedPeriodSpend: &projected,
				TriggeredAt:          now,
			})
		}
	}

	return events, state
}

func (e *Engine) periodSpend(b domain.Budget, records []domain.CostRecord, now time.Time) float64 {
	start, end := b.Period.Start(now), b.Period.End(now)
	var total float64
	for _, r := range records {
		if !b.Matches(r) {
			continue
		}
		if r.Date.Before(start) || !r.Date.Before(end) {
			continue
		}
		total += r.Amount
	}
	return total
}

// remainingForecast sums forecasted spend for the rest of the current
// period. The forecast is total-scope; per-budget filters narrow only the
// actuals, so projections for filtered budgets stay conservative.
func remainingForecast(b domain.Budget, points []domain.ForecastPoint, now time.Time) float64 {
	end := b.Period.End(now)
	var total float64
	for _, p := range points {
		if p.Date.Before(end) && p.Date.After(now) {
			total += p.PointEstimate
		}
	}
	return total
}
