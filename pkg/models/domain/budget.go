package domain

import (
	"fmt"
	"time"
)

type BudgetPeriod string

const (
	PeriodMonthly   BudgetPeriod = "monthly"
	PeriodQuarterly BudgetPeriod = "quarterly"
	PeriodYearly    BudgetPeriod = "yearly"
)

// PeriodKey returns the period instance containing t, e.g. "2026-08",
// "2026-Q3", or "2026". Threshold-crossed flags reset when the key changes.
func (p BudgetPeriod) Key(t time.Time) string {
	t = t.UTC()
	switch p {
	case PeriodQuarterly:
		return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case PeriodYearly:
		return fmt.Sprintf("%d", t.Year())
	default:
		return t.Format("2006-01")
	}
}

// Start returns the first day of the period instance containing t.
func (p BudgetPeriod) Start(t time.Time) time.Time {
	t = t.UTC()
	switch p {
	case PeriodQuarterly:
		month := time.Month((int(t.Month())-1)/3*3 + 1)
		return time.Date(t.Year(), month, 1, 0, 0, 0, 0, time.UTC)
	case PeriodYearly:
		return time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

// End returns the first day of the following period instance.
func (p BudgetPeriod) End(t time.Time) time.Time {
	start := p.Start(t)
	switch p {
	case PeriodQuarterly:
		return start.AddDate(0, 3, 0)
	case PeriodYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// Budget is a configured spend ceiling over a scope and period.
type Budget struct {
	ID          string
	Name        string
	Period      BudgetPeriod
	LimitAmount float64
	// AlertThresholds are percentages of LimitAmount, evaluated ascending.
	AlertThresholds []float64
	// Provider and Service narrow the spend the budget tracks; empty means
	// all providers / all services.
	Provider Provider
	Service  string
}

// Matches reports whether a cost record counts toward this budget.
func (b Budget) Matches(r CostRecord) bool {
	if b.Provider != "" && r.Provider != b.Provider {
		return false
	}
	if b.Service != "" && r.Service != b.Service {
		return false
	}
	return true
}

type AlertKind string

const (
	AlertThresholdCrossed AlertKind = "threshold_crossed"
	AlertProjectedOverage AlertKind = "projected_overage"
)

// BudgetAlertEvent records a threshold crossing or projected overage.
// A given (budget, threshold, period) fires at most once per period.
type BudgetAlertEvent struct {
	BudgetID             string
	Kind                 AlertKind
	ThresholdCrossed     float64 // percent; zero for projected overage
	PeriodKey            string
	ActualSpendAtTrigger float64
	ProjectedPeriodSpend *float64
	TriggeredAt          time.Time
}
