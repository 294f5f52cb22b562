package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/services/analysis/budget"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &Store{db: db}, nil
}

// AddCostRecords upserts normalized billing records. Re-ingesting a window
// replaces prior values on the record key instead of double-counting.
func (s *Store) AddCostRecords(ctx context.Context, records []domain.CostRecord) error {
	if len(records) == 0 {
		return nil
	}
	query := `
		INSERT INTO cost_records (
			provider, account_id, service, resource_id, date,
			amount, usage_quantity, usage_unit, tags
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, account_id, service, resource_id, date) DO UPDATE SET
			amount = excluded.amount,
			usage_quantity = excluded.usage_quantity,
			usage_unit = excluded.usage_unit,
			tags = excluded.tags`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			tags, err := json.Marshal(r.Tags)
			if err != nil {
				return fmt.Errorf("marshal tags: %w", err)
			}
			_, err = stmt.ExecContext(ctx,
				r.Provider, r.AccountID, r.Service, r.ResourceID,
				r.Date.UTC().Format(domain.DateLayout),
				r.Amount, r.UsageQuantity, r.UsageUnit, tags,
			)
			if err != nil {
				return fmt.Errorf("insert cost record: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) AddSignals(ctx context.Context, signals []domain.UtilizationSignal) error {
	if len(signals) == 0 {
		return nil
	}
	query := `
		INSERT INTO utilization_signals (resource_id, metric, date, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (resource_id, metric, date) DO UPDATE SET value = excluded.value`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, sig := range signals {
			_, err := stmt.ExecContext(ctx,
				sig.ResourceID, sig.Metric,
				sig.Date.UTC().Format(domain.DateLayout), sig.Value,
			)
			if err != nil {
				return fmt.Errorf("insert signal: %w", err)
			}
		}
		return nil
	})
}

// ReplaceFindings marks the scope's open findings stale, then upserts the
// current set as open. A finding detected again keeps its id and original
// detection timestamp.
func (s *Store) ReplaceFindings(ctx context.Context, scope domain.Scope, findings []domain.Finding) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE findings SET status = ? WHERE scope = ? AND status = ?`,
			domain.FindingStale, scope, domain.FindingOpen,
		)
		if err != nil {
			return fmt.Errorf("mark findings stale: %w", err)
		}

		query := `
			INSERT INTO findings (
				id, kind, scope, resource_id, service, provider,
				start_date, end_date, severity, evidence,
				estimated_monthly_savings, status, detected_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				start_date = excluded.start_date,
				end_date = excluded.end_date,
				severity = excluded.severity,
				evidence = excluded.evidence,
				estimated_monthly_savings = excluded.estimated_monthly_savings,
				status = excluded.status`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, f := range findings {
			evidence, err := json.Marshal(f.Evidence)
			if err != nil {
				return fmt.Errorf("marshal evidence: %w", err)
			}
			_, err = stmt.ExecContext(ctx,
				f.ID, f.Kind, f.Scope, f.ResourceID, f.Service, f.Provider,
				f.StartDate.UTC().Format(domain.DateLayout),
				f.EndDate.UTC().Format(domain.DateLayout),
				f.Severity.String(), evidence,
				f.EstimatedMonthlySavings, domain.FindingOpen, f.DetectedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert finding: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) UpsertForecast(ctx context.Context, scope domain.Scope, points []domain.ForecastPoint) error {
	query := `
		INSERT INTO forecast_points (
			scope, date, point_estimate, lower_bound, upper_bound,
			model_confidence, generated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (scope, date) DO UPDATE SET
			point_estimate = excluded.point_estimate,
			lower_bound = excluded.lower_bound,
			upper_bound = excluded.upper_bound,
			model_confidence = excluded.model_confidence,
			generated_at = excluded.generated_at`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			_, err := stmt.ExecContext(ctx,
				scope, p.Date.UTC().Format(domain.DateLayout),
				p.PointEstimate, p.LowerBound, p.UpperBound,
				p.ModelConfidence, p.GeneratedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert forecast point: %w", err)
			}
		}
		return nil
	})
}

// UpsertRecommendations updates existing rows in place, preserving the
// original creation timestamp and any manual dismissed/applied status.
func (s *Store) UpsertRecommendations(ctx context.Context, recs []domain.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	query := `
		INSERT INTO recommendations (
			id, category, scope, description, estimated_monthly_savings,
			confidence, source_finding_ids, implementation_steps,
			status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			description = excluded.description,
			estimated_monthly_savings = excluded.estimated_monthly_savings,
			confidence = excluded.confidence,
			source_finding_ids = excluded.source_finding_ids,
			implementation_steps = excluded.implementation_steps,
			status = CASE
				WHEN recommendations.status IN ('dismissed', 'applied') THEN recommendations.status
				ELSE excluded.status
			END,
			updated_at = excluded.updated_at`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range recs {
			ids, err := json.Marshal(r.SourceFindingIDs)
			if err != nil {
				return fmt.Errorf("marshal finding ids: %w", err)
			}
			steps, err := json.Marshal(r.ImplementationSteps)
			if err != nil {
				return fmt.Errorf("marshal steps: %w", err)
			}
			_, err = stmt.ExecContext(ctx,
				r.ID, r.Category, r.Scope, r.Description,
				r.EstimatedMonthlySavings, r.Confidence, ids, steps,
				domain.RecommendationOpen, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert recommendation: %w", err)
			}
		}
		return nil
	})
}

// MarkStaleRecommendations transitions open recommendations in the analyzed
// scopes that the latest run no longer supports. Rows are kept for audit.
func (s *Store) MarkStaleRecommendations(ctx context.Context, scopes []domain.Scope, activeIDs []string) error {
	if len(scopes) == 0 {
		return nil
	}

	args := []any{domain.RecommendationStale, domain.RecommendationOpen}
	for _, sc := range scopes {
		args = append(args, sc)
	}
	query := fmt.Sprintf(
		`UPDATE recommendations SET status = ? WHERE status = ? AND scope IN (%s)`,
		placeholders(len(scopes)),
	)
	if len(activeIDs) > 0 {
		query += fmt.Sprintf(` AND id NOT IN (%s)`, placeholders(len(activeIDs)))
		for _, id := range activeIDs {
			args = append(args, id)
		}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark recommendations stale: %w", err)
	}
	return nil
}

// AppendAlertEvents inserts alert events, ignoring duplicates on the
// (budget, kind, threshold, period) key so re-evaluation cannot re-fire.
func (s *Store) AppendAlertEvents(ctx context.Context, events []domain.BudgetAlertEvent) error {
	if len(events) == 0 {
		return nil
	}
	query := `
		INSERT INTO budget_alert_events (
			budget_id, kind, threshold_pct, period_key,
			actual_spend, projected_spend, triggered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (budget_id, kind, threshold_pct, period_key) DO NOTHING`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range events {
			_, err := stmt.ExecContext(ctx,
				e.BudgetID, e.Kind, e.ThresholdCrossed, e.PeriodKey,
				e.ActualSpendAtTrigger, e.ProjectedPeriodSpend, e.TriggeredAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert alert event: %w", err)
			}
		}
		return nil
	})
}

// GetBudgetState returns the stored alert state for a budget. A row from a
// closed period is returned as-is; the evaluator resets on period key
// mismatch.
func (s *Store) GetBudgetState(ctx context.Context, budgetID string) (budget.State, error) {
	var (
		state      budget.State
		crossedRaw []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT budget_id, period_key, crossed_thresholds, projected_fired
		 FROM budget_state WHERE budget_id = ?`, budgetID,
	).Scan(&state.BudgetID, &state.PeriodKey, &crossedRaw, &state.ProjectedFired)
	if err == sql.ErrNoRows {
		return budget.State{}, nil
	}
	if err != nil {
		return budget.State{}, fmt.Errorf("get budget state: %w", err)
	}
	if err := json.Unmarshal(crossedRaw, &state.CrossedThresholds); err != nil {
		return budget.State{}, fmt.Errorf("unmarshal crossed thresholds: %w", err)
	}
	return state, nil
}

func (s *Store) SaveBudgetState(ctx context.Context, state budget.State) error {
	crossed, err := json.Marshal(state.CrossedThresholds)
	if err != nil {
		return fmt.Errorf("marshal crossed thresholds: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO budget_state (budget_id, period_key, crossed_thresholds, projected_fired)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (budget_id) DO UPDATE SET
			period_key = excluded.period_key,
			crossed_thresholds = excluded.crossed_thresholds,
			projected_fired = excluded.projected_fired`,
		state.BudgetID, state.PeriodKey, crossed, state.ProjectedFired,
	)
	if err != nil {
		return fmt.Errorf("save budget state: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// parseDay is shared by the readers; storage dates are canonical day strings.
func parseDay(s string) (time.Time, error) {
	return time.Parse(domain.DateLayout, s)
}
