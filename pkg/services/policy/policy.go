// Package policy holds the analysis configuration: thresholds, windows, and
// budgets. Invalid values fail the whole run at startup, before any writes.
package policy

import (
	"fmt"

	"github.com/costlens/costlens/pkg/models/domain"
)

// IdlePolicy configures the idle resource detector.
type IdlePolicy struct {
	// UtilizationThresholdPct flags a telemetry day as idle when the signal
	// stays below it.
	UtilizationThresholdPct float64 `mapstructure:"utilization_threshold_pct"`
	// MinWindowDays is the minimum contiguous idle window before a finding
	// is emitted.
	MinWindowDays int `mapstructure:"min_window_days"`
	// BillingGraceDays tolerates collector lag: a resource whose last billed
	// day is older than this relative to the newest record is treated as
	// gone, not idle.
	BillingGraceDays int `mapstructure:"billing_grace_days"`
}

// ForecastPolicy configures the forecasting engine.
type ForecastPolicy struct {
	// MinHistoryDays is the minimum number of observed points required for a
	// modeled forecast; below it the engine degrades to a flat projection
	// with zero confidence.
	MinHistoryDays int `mapstructure:"min_history_days"`
	HorizonDays    int `mapstructure:"horizon_days"`
}

// AnomalyPolicy configures the anomaly detector.
type AnomalyPolicy struct {
	// DeviationFloor suppresses findings whose absolute deviation from the
	// baseline is below this amount, to avoid noise on near-zero scopes.
	DeviationFloor float64 `mapstructure:"deviation_floor"`
	// EvaluationWindowDays is how many trailing observed days are checked
	// against the baseline on each run.
	EvaluationWindowDays int `mapstructure:"evaluation_window_days"`
}

// RecommendPolicy configures the recommendation engine.
type RecommendPolicy struct {
	// MinMonthlySavings is the floor below which no recommendation is
	// surfaced.
	MinMonthlySavings float64 `mapstructure:"min_monthly_savings"`
	// ReservedMinMonthlySpend is the per-service spend above which a
	// reserved-capacity recommendation is considered.
	ReservedMinMonthlySpend float64 `mapstructure:"reserved_min_monthly_spend"`
	// ReservedThreeYearSpend is the savings level above which a 3-year
	// commitment is suggested instead of 1-year.
	ReservedThreeYearSpend float64 `mapstructure:"reserved_three_year_spend"`
}

// Policy is the single configuration object handed to the analysis pipeline.
type Policy struct {
	Idle      IdlePolicy      `mapstructure:"idle"`
	Forecast  ForecastPolicy  `mapstructure:"forecast"`
	Anomaly   AnomalyPolicy   `mapstructure:"anomaly"`
	Recommend RecommendPolicy `mapstructure:"recommend"`
	Budgets   []BudgetConfig  `mapstructure:"budgets"`
}

// BudgetConfig is the file shape of a budget; DomainBudgets converts it.
type BudgetConfig struct {
	ID              string    `mapstructure:"id"`
	Name            string    `mapstructure:"name"`
	Period          string    `mapstructure:"period"`
	LimitAmount     float64   `mapstructure:"limit_amount"`
	AlertThresholds []float64 `mapstructure:"alert_thresholds"`
	Provider        string    `mapstructure:"provider"`
	Service         string    `mapstructure:"service"`
}

// Default returns the documented defaults. The values are configurable
// operator policy, not fixed law.
func Default() Policy {
	return Policy{
		Idle: IdlePolicy{
			UtilizationThresholdPct: 5,
			MinWindowDays:           7,
			BillingGraceDays:        1,
		},
		Forecast: ForecastPolicy{
			MinHistoryDays: 14,
			HorizonDays:    30,
		},
		Anomaly: AnomalyPolicy{
			DeviationFloor:       10,
			EvaluationWindowDays: 7,
		},
		Recommend: RecommendPolicy{
			MinMonthlySavings:       5,
			ReservedMinMonthlySpend: 100,
			ReservedThreeYearSpend:  500,
		},
	}
}

func (p Policy) Validate() error {
	if p.Idle.UtilizationThresholdPct < 0 || p.Idle.UtilizationThresholdPct > 100 {
		return fmt.Errorf("idle utilization threshold must be within [0,100], got %.2f", p.Idle.UtilizationThresholdPct)
	}
	if p.Idle.MinWindowDays <= 0 {
		return fmt.Errorf("idle min window must be positive, got %d", p.Idle.MinWindowDays)
	}
	if p.Idle.BillingGraceDays < 0 {
		return fmt.Errorf("idle billing grace days must be non-negative, got %d", p.Idle.BillingGraceDays)
	}
	if p.Forecast.MinHistoryDays <= 0 {
		return fmt.Errorf("forecast min history must be positive, got %d", p.Forecast.MinHistoryDays)
	}
	if p.Forecast.HorizonDays <= 0 {
		return fmt.Errorf("forecast horizon must be positive, got %d", p.Forecast.HorizonDays)
	}
	if p.Anomaly.DeviationFloor < 0 {
		return fmt.Errorf("anomaly deviation floor must be non-negative, got %.2f", p.Anomaly.DeviationFloor)
	}
	if p.Anomaly.EvaluationWindowDays <= 0 {
		return fmt.Errorf("anomaly evaluation window must be positive, got %d", p.Anomaly.EvaluationWindowDays)
	}
	if p.Recommend.MinMonthlySavings < 0 {
		return fmt.Errorf("recommend min savings must be non-negative, got %.2f", p.Recommend.MinMonthlySavings)
	}
	for _, b := range p.Budgets {
		if err := validateBudget(b); err != nil {
			return fmt.Errorf("budget %q: %w", b.Name, err)
		}
	}
	return nil
}

func validateBudget(b BudgetConfig) error {
	if b.LimitAmount <= 0 {
		return fmt.Errorf("limit amount must be positive, got %.2f", b.LimitAmount)
	}
	switch domain.BudgetPeriod(b.Period) {
	case domain.PeriodMonthly, domain.PeriodQuarterly, domain.PeriodYearly, "":
	default:
		return fmt.Errorf("unknown period %q", b.Period)
	}
	for _, t := range b.AlertThresholds {
		if t <= 0 {
			return fmt.Errorf("threshold must be positive, got %.1f", t)
		}
	}
	if b.Provider != "" {
		if _, ok := domain.ParseProvider(b.Provider); !ok {
			return fmt.Errorf("unknown provider %q", b.Provider)
		}
	}
	return nil
}

// DomainBudgets converts configured budgets to their domain shape, filling
// defaults: monthly period, 50/80/100 thresholds, id derived from name.
func (p Policy) DomainBudgets() []domain.Budget {
	out := make([]domain.Budget, 0, len(p.Budgets))
	for _, b := range p.Budgets {
		period := domain.BudgetPeriod(b.Period)
		if period == "" {
			period = domain.PeriodMonthly
		}
		thresholds := b.AlertThresholds
		if len(thresholds) == 0 {
			thresholds = []float64{50, 80, 100}
		}
		id := b.ID
		if id == "" {
			id = b.Name
		}
		provider, _ := domain.ParseProvider(b.Provider)
		out = append(out, domain.Budget{
			ID:              id,
			Name:            b.Name,
			Period:          period,
			LimitAmount:     b.LimitAmount,
			AlertThresholds: thresholds,
			Provider:        provider,
			Service:         b.Service,
		})
	}
	return out
}
