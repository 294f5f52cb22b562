// Package analysis orchestrates the per-scope pipeline: idle detection and
// forecasting over the record store, anomaly detection against the forecast
// baseline, recommendation composition, and budget alerting. A run is a pure
// function of record state plus policy; all reads happen up front and all
// writes flush at the end of each scope.
package analysis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/services/analysis/anomaly"
	"github.com/costlens/costlens/pkg/services/analysis/budget"
	"github.com/costlens/costlens/pkg/services/analysis/forecast"
	"github.com/costlens/costlens/pkg/services/analysis/idle"
	"github.com/costlens/costlens/pkg/services/analysis/recommend"
	"github.com/costlens/costlens/pkg/services/policy"
)

// maxParallelScopes bounds concurrent scope computations. Scopes share no
// mutable state, so the bound exists only to keep memory flat.
const maxParallelScopes = 4

// Storage is the write side of the storage collaborator. Implementations
// must upsert on the entity keys so repeated runs update in place.
type Storage interface {
	// ReplaceFindings marks the scope's open findings stale, then upserts
	// the given set as open, reaffirming those still detected.
	ReplaceFindings(ctx context.Context, scope domain.Scope, findings []domain.Finding) error
	UpsertForecast(ctx context.Context, scope domain.Scope, points []domain.ForecastPoint) error
	UpsertRecommendations(ctx context.Context, recs []domain.Recommendation) error
	// MarkStaleRecommendations transitions open recommendations in the given
	// scopes that are absent from activeIDs toward staleness. Nothing is
	// deleted; history is preserved for audit.
	MarkStaleRecommendations(ctx context.Context, scopes []domain.Scope, activeIDs []string) error
	AppendAlertEvents(ctx context.Context, events []domain.BudgetAlertEvent) error
	GetBudgetState(ctx context.Context, budgetID string) (budget.State, error)
	SaveBudgetState(ctx context.Context, state budget.State) error
}

type Runner struct {
	policy     policy.Policy
	storage    Storage
	idle       *idle.Detector
	forecaster *forecast.Forecaster
	anomaly    *anomaly.Detector
	recommend  *recommend.Engine
	budget     *budget.Engine
	now        func() time.Time
}

func NewRunner(p policy.Policy, storage Storage) (*Runner, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &Runner{
		policy:     p,
		storage:    storage,
		idle:       idle.New(p.Idle),
		forecaster: forecast.New(p.Forecast),
		anomaly:    anomaly.New(p.Anomaly),
		recommend:  recommend.New(p.Recommend),
		budget:     budget.New(),
		now:        time.Now,
	}, nil
}

// NewRunnerWithClock pins the runner and every engine to a fixed clock so
// tests get reproducible timestamps and period keys.
func NewRunnerWithClock(p policy.Policy, storage Storage, now func() time.Time) (*Runner, error) {
	r, err := NewRunner(p, storage)
	if err != nil {
		return nil, err
	}
	r.now = now
	r.idle = idle.NewWithClock(p.Idle, now)
	r.forecaster = forecast.NewWithClock(p.Forecast, now)
	r.anomaly = anomaly.NewWithClock(p.Anomaly, now)
	r.recommend = recommend.NewWithClock(p.Recommend, now)
	r.budget = budget.NewWithClock(now)
	return r, nil
}

type scopeOutcome struct {
	result    domain.ScopeResult
	activeIDs []string
}

// Run executes the full pipeline over the given records and signals.
// Scopes are independent: a malformed or failing scope is reported and
// skipped while the rest proceed. Running twice on unchanged input produces
// identical persisted state except for timestamps.
func (r *Runner) Run(ctx context.Context, records []domain.CostRecord, signals []domain.UtilizationSignal) (domain.RunResult, error) {
	logger := zerolog.Ctx(ctx)
	result := domain.RunResult{
		RunID:     uuid.NewString(),
		StartedAt: r.now().UTC(),
	}

	valid, skipped := partitionScopes(records)
	result.Scopes = append(result.Scopes, skipped...)

	scopes := lo.Keys(valid)
	sort.Slice(scopes, func(i, j int) bool { return scopes[i] < scopes[j] })

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		sem      = make(chan struct{}, maxParallelScopes)
		outcomes []scopeOutcome
	)
	for _, scope := range scopes {
		if ctx.Err() != nil {
			// Aborting between scopes leaves written scopes valid and the
			// rest stale for the next run.
			mu.Lock()
			result.Scopes = append(result.Scopes, domain.ScopeResult{
				Scope: scope, Status: domain.ScopeSkipped, Reason: "run canceled",
			})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(scope domain.Scope) {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := r.runScope(ctx, scope, valid[scope], signals)
			mu.Lock()
			outcomes = append(outcomes, outcome)
			result.Scopes = append(result.Scopes, outcome.result)
			mu.Unlock()
		}(scope)
	}
	wg.Wait()

	// Global stage: total-scope forecast, reserved-capacity opportunities,
	// and budget evaluation over the full record set.
	validRecords := lo.Flatten(lo.Values(valid))
	totalForecast := r.forecaster.Forecast(domain.ScopeTotal, dailySeries(validRecords), r.policy.Forecast.HorizonDays)

	globalOutcome := r.runGlobal(ctx, validRecords, totalForecast)
	result.Scopes = append(result.Scopes, globalOutcome.result)

	events, err := r.evaluateBudgets(ctx, validRecords, totalForecast)
	if err != nil {
		logger.Error().Err(err).Msg("budget evaluation failed")
	}
	result.AlertEvents = events

	r.markStale(ctx, outcomes, globalOutcome)

	result.FinishedAt = r.now().UTC()
	findings, recs, alerts := result.Counts()
	logger.Info().
		Str("run_id", result.RunID).
		Int("scopes", len(result.Scopes)).
		Int("findings", findings).
		Int("recommendations", recs).
		Int("alerts", alerts).
		Msg("analysis run finished")
	return result, nil
}

// runScope executes the ordered pipeline for one account scope. Later stages
// consume earlier outputs, so the order Idle/Forecast -> Anomaly ->
// Recommendation is fixed within the scope.
func (r *Runner) runScope(ctx context.Context, scope domain.Scope, records []domain.CostRecord, signals []domain.UtilizationSignal) scopeOutcome {
	idleFindings := r.idle.Detect(records, signals)

	series := dailySeries(records)
	future := r.forecaster.Forecast(scope, series, r.policy.Forecast.HorizonDays)

	// The anomaly baseline is a forecast fitted on everything before the
	// evaluation window, so observed days are judged against a model that
	// has not seen them.
	var anomalies []domain.Finding
	evalDays := r.policy.Anomaly.EvaluationWindowDays
	if len(series) > evalDays {
		history := series[:len(series)-evalDays]
		observed := series[len(series)-evalDays:]
		baseline := r.forecaster.Forecast(scope, history, evalDays)
		anomalies = r.anomaly.Detect(scope, "", observed, baseline)
	}

	recs := r.recommend.Generate(idleFindings, anomalies)

	findings := append(idleFindings, anomalies...)
	err := r.persistScope(ctx, scope, findings, future, recs)
	if err != nil {
		return scopeOutcome{result: domain.ScopeResult{
			Scope: scope, Status: domain.ScopeFailed, Reason: err.Error(),
		}}
	}

	return scopeOutcome{
		result: domain.ScopeResult{
			Scope:           scope,
			Status:          domain.ScopeSuccess,
			Findings:        len(findings),
			ForecastPoints:  len(future),
			Recommendations: len(recs),
		},
		activeIDs: recIDs(recs),
	}
}

// runGlobal persists the total-scope forecast and reserved-capacity
// recommendations derived from per-service spend.
func (r *Runner) runGlobal(ctx context.Context, records []domain.CostRecord, totalForecast []domain.ForecastPoint) scopeOutcome {
	reserved := r.recommend.ReservedCapacity(serviceSpend(records))

	err := r.withRetry(ctx, func() error {
		if err := r.storage.UpsertForecast(ctx, domain.ScopeTotal, totalForecast); err != nil {
			return err
		}
		return r.storage.UpsertRecommendations(ctx, reserved)
	})
	if err != nil {
		return scopeOutcome{result: domain.ScopeResult{
			Scope: domain.ScopeTotal, Status: domain.ScopeFailed, Reason: err.Error(),
		}}
	}
	return scopeOutcome{
		result: domain.ScopeResult{
			Scope:           domain.ScopeTotal,
			Status:          domain.ScopeSuccess,
			ForecastPoints:  len(totalForecast),
			Recommendations: len(reserved),
		},
		activeIDs: recIDs(reserved),
	}
}

func (r *Runner) evaluateBudgets(ctx context.Context, records []domain.CostRecord, totalForecast []domain.ForecastPoint) ([]domain.BudgetAlertEvent, error) {
	var all []domain.BudgetAlertEvent
	for _, b := range r.policy.DomainBudgets() {
		prior, err := r.storage.GetBudgetState(ctx, b.ID)
		if err != nil {
			return all, fmt.Errorf("loading state for budget %q: %w", b.ID, err)
		}
		events, state := r.budget.Evaluate(b, records, totalForecast, prior)
		err = r.withRetry(ctx, func() error {
			if err := r.storage.AppendAlertEvents(ctx, events); err != nil {
				return err
			}
			return r.storage.SaveBudgetState(ctx, state)
		})
		if err != nil {
			return all, fmt.Errorf("persisting alerts for budget %q: %w", b.ID, err)
		}
		all = append(all, events...)
	}
	return all, nil
}

func (r *Runner) persistScope(ctx context.Context, scope domain.Scope, findings []domain.Finding, points []domain.ForecastPoint, recs []domain.Recommendation) error {
	return r.withRetry(ctx, func() error {
		if err := r.storage.ReplaceFindings(ctx, scope, findings); err != nil {
			return err
		}
		if err := r.storage.UpsertForecast(ctx, scope, points); err != nil {
			return err
		}
		return r.storage.UpsertRecommendations(ctx, recs)
	})
}

// withRetry retries a failed persistence operation once within the run, per
// the partial-failure contract; a second failure marks the scope failed
// without blocking other scopes.
func (r *Runner) withRetry(ctx context.Context, fn func() error) error {
	if err := fn(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("persistence failed, retrying once")
		return fn()
	}
	return nil
}

// markStale transitions recommendations in successfully analyzed scopes that
// no current finding supports.
func (r *Runner) markStale(ctx context.Context, outcomes []scopeOutcome, global scopeOutcome) {
	var scopes []domain.Scope
	var active []string
	for _, o := range append(outcomes, global) {
		if o.result.Status != domain.ScopeSuccess {
			continue
		}
		scopes = append(scopes, o.result.Scope)
		active = append(active, o.activeIDs...)
	}
	if global.result.Status == domain.ScopeSuccess {
		// Reserved-capacity recommendations are written under service scopes,
		// which never appear as scope results. Sweep every eligible service
		// scope so commitments lose support when the spend moves elsewhere.
		scopes = append(scopes, recommend.ReservedScopes()...)
	}
	if len(scopes) == 0 {
		return
	}
	if err := r.storage.MarkStaleRecommendations(ctx, scopes, active); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("marking stale recommendations failed")
	}
}

// partitionScopes groups records by account scope and validates them.
// A scope containing malformed records is skipped and reported while valid
// scopes proceed.
func partitionScopes(records []domain.CostRecord) (map[domain.Scope][]domain.CostRecord, []domain.ScopeResult) {
	valid := make(map[domain.Scope][]domain.CostRecord)
	invalid := make(map[domain.Scope]string)

	for _, rec := range records {
		scope := domain.AccountScope(rec.Provider, rec.AccountID)
		if err := rec.Validate(); err != nil {
			if _, seen := invalid[scope]; !seen {
				invalid[scope] = err.Error()
			}
			continue
		}
		valid[scope] = append(valid[scope], rec)
	}

	var skipped []domain.ScopeResult
	for scope, reason := range invalid {
		delete(valid, scope)
		skipped = append(skipped, domain.ScopeResult{
			Scope:  scope,
			Status: domain.ScopeSkipped,
			Reason: fmt.Sprintf("malformed input: %s", reason),
		})
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Scope < skipped[j].Scope })
	return valid, skipped
}

// dailySeries aggregates records into a per-day spend series, ascending.
func dailySeries(records []domain.CostRecord) []domain.DailyCost {
	byDay := make(map[string]float64)
	for _, r := range records {
		byDay[r.Date.UTC().Format(domain.DateLayout)] += r.Amount
	}
	days := lo.Keys(byDay)
	sort.Strings(days)

	out := make([]domain.DailyCost, 0, len(days))
	for _, d := range days {
		date, _ := time.Parse(domain.DateLayout, d)
		out = append(out, domain.DailyCost{Date: date, Amount: byDay[d]})
	}
	return out
}

// serviceSpend estimates monthly spend per provider service from the
// trailing record set.
func serviceSpend(records []domain.CostRecord) []recommend.ServiceSpend {
	type key struct {
		provider domain.Provider
		service  string
	}
	totals := make(map[key]float64)
	daySets := make(map[key]map[string]bool)
	for _, r := range records {
		k := key{r.Provider, r.Service}
		totals[k] += r.Amount
		if daySets[k] == nil {
			daySets[k] = make(map[string]bool)
		}
		daySets[k][r.Date.UTC().Format(domain.DateLayout)] = true
	}

	keys := lo.Keys(totals)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].provider != keys[j].provider {
			return keys[i].provider < keys[j].provider
		}
		return keys[i].service < keys[j].service
	})

	out := make([]recommend.ServiceSpend, 0, len(keys))
	for _, k := range keys {
		days := len(daySets[k])
		if days == 0 {
			continue
		}
		out = append(out, recommend.ServiceSpend{
			Provider:     k.provider,
			Service:      k.service,
			MonthlySpend: totals[k] / float64(days) * 30,
		})
	}
	return out
}

func recIDs(recs []domain.Recommendation) []string {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.ID)
	}
	return ids
}
