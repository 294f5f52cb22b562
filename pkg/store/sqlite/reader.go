package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/costlens/costlens/pkg/models/domain"
	storemodels "github.com/costlens/costlens/pkg/models/store"
)

// GetCostRecords returns normalized records with dates on or after since,
// ordered for deterministic downstream processing.
func (s *Store) GetCostRecords(ctx context.Context, since time.Time) ([]domain.CostRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, account_id, service, resource_id, date,
		       amount, usage_quantity, usage_unit, tags
		FROM cost_records
		WHERE date >= ?
		ORDER BY provider, account_id, resource_id, service, date`,
		since.UTC().Format(domain.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query cost records: %w", err)
	}
	defer rows.Close()

	var records []domain.CostRecord
	for rows.Next() {
		var (
			r       domain.CostRecord
			day     string
			tagsRaw []byte
		)
		if err := rows.Scan(&r.Provider, &r.AccountID, &r.Service, &r.ResourceID,
			&day, &r.Amount, &r.UsageQuantity, &r.UsageUnit, &tagsRaw); err != nil {
			return nil, fmt.Errorf("scan cost record: %w", err)
		}
		if r.Date, err = parseDay(day); err != nil {
			return nil, fmt.Errorf("parse record date: %w", err)
		}
		if len(tagsRaw) > 0 {
			_ = json.Unmarshal(tagsRaw, &r.Tags)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) GetSignals(ctx context.Context, since time.Time) ([]domain.UtilizationSignal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_id, metric, date, value
		FROM utilization_signals
		WHERE date >= ?
		ORDER BY resource_id, metric, date`,
		since.UTC().Format(domain.DateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.UtilizationSignal
	for rows.Next() {
		var (
			sig domain.UtilizationSignal
			day string
		)
		if err := rows.Scan(&sig.ResourceID, &sig.Metric, &day, &sig.Value); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		if sig.Date, err = parseDay(day); err != nil {
			return nil, fmt.Errorf("parse signal date: %w", err)
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

// ListFindings returns findings filtered by status and kind; empty filter
// values match everything.
func (s *Store) ListFindings(ctx context.Context, status domain.FindingStatus, kind domain.FindingKind) ([]domain.Finding, error) {
	query := `
		SELECT id, kind, scope, resource_id, service, provider,
		       start_date, end_date, severity, evidence,
		       estimated_monthly_savings, status, detected_at
		FROM findings WHERE 1=1`
	var args []any
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY detected_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	var findings []domain.Finding
	for rows.Next() {
		var (
			f           domain.Finding
			start, end  string
			severity    string
			evidenceRaw []byte
		)
		if err := rows.Scan(&f.ID, &f.Kind, &f.Scope, &f.ResourceID, &f.Service,
			&f.Provider, &start, &end, &severity, &evidenceRaw,
			&f.EstimatedMonthlySavings, &f.Status, &f.DetectedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		if f.StartDate, err = parseDay(start); err != nil {
			return nil, fmt.Errorf("parse finding start: %w", err)
		}
		if f.EndDate, err = parseDay(end); err != nil {
			return nil, fmt.Errorf("parse finding end: %w", err)
		}
		f.Severity = parseSeverity(severity)
		if err := json.Unmarshal(evidenceRaw, &f.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

func (s *Store) GetForecast(ctx context.Context, scope domain.Scope) ([]domain.ForecastPoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT scope, date, point_estimate, lower_bound, upper_bound,
		       model_confidence, generated_at
		FROM forecast_points
		WHERE scope = ?
		ORDER BY date`,
		scope,
	)
	if err != nil {
		return nil, fmt.Errorf("query forecast: %w", err)
	}
	defer rows.Close()

	var points []domain.ForecastPoint
	for rows.Next() {
		var (
			p   domain.ForecastPoint
			day string
		)
		if err := rows.Scan(&p.Scope, &day, &p.PointEstimate, &p.LowerBound,
			&p.UpperBound, &p.ModelConfidence, &p.GeneratedAt); err != nil {
			return nil, fmt.Errorf("scan forecast point: %w", err)
		}
		if p.Date, err = parseDay(day); err != nil {
			return nil, fmt.Errorf("parse forecast date: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListRecommendations returns recommendations filtered by status, ranked by
// estimated savings descending.
func (s *Store) ListRecommendations(ctx context.Context, status domain.RecommendationStatus) ([]domain.Recommendation, error) {
	query := `
		SELECT id, category, scope, description, estimated_monthly_savings,
		       confidence, source_finding_ids, implementation_steps,
		       status, created_at, updated_at
		FROM recommendations`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY estimated_monthly_savings DESC, confidence DESC, scope"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []domain.Recommendation
	for rows.Next() {
		var (
			r        domain.Recommendation
			idsRaw   []byte
			stepsRaw []byte
		)
		if err := rows.Scan(&r.ID, &r.Category, &r.Scope, &r.Description,
			&r.EstimatedMonthlySavings, &r.Confidence, &idsRaw, &stepsRaw,
			&r.Status, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan recommendation: %w", err)
		}
		_ = json.Unmarshal(idsRaw, &r.SourceFindingIDs)
		_ = json.Unmarshal(stepsRaw, &r.ImplementationSteps)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// SetRecommendationStatus applies a manual transition (dismissed, applied).
func (s *Store) SetRecommendationStatus(ctx context.Context, id string, status domain.RecommendationStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recommendations SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update recommendation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update recommendation status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("recommendation %q not found", id)
	}
	return nil
}

func (s *Store) ListAlertEvents(ctx context.Context, since time.Time) ([]domain.BudgetAlertEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT budget_id, kind, threshold_pct, period_key,
		       actual_spend, projected_spend, triggered_at
		FROM budget_alert_events
		WHERE triggered_at >= ?
		ORDER BY triggered_at DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query alert events: %w", err)
	}
	defer rows.Close()

	var events []domain.BudgetAlertEvent
	for rows.Next() {
		var e domain.BudgetAlertEvent
		if err := rows.Scan(&e.BudgetID, &e.Kind, &e.ThresholdCrossed, &e.PeriodKey,
			&e.ActualSpendAtTrigger, &e.ProjectedPeriodSpend, &e.TriggeredAt); err != nil {
			return nil, fmt.Errorf("scan alert event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetStats reports what the record store currently holds.
func (s *Store) GetStats(ctx context.Context) (*storemodels.IngestStats, error) {
	var (
		stats       storemodels.IngestStats
		first, last sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(date), MAX(date) FROM cost_records`,
	).Scan(&stats.RecordCount, &first, &last)
	if err != nil {
		return nil, fmt.Errorf("get record stats: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM utilization_signals`,
	).Scan(&stats.SignalCount); err != nil {
		return nil, fmt.Errorf("get signal stats: %w", err)
	}
	if first.Valid {
		if t, err := parseDay(first.String); err == nil {
			stats.FirstRecordDate = &t
		}
	}
	if last.Valid {
		if t, err := parseDay(last.String); err == nil {
			stats.LastRecordDate = &t
		}
	}
	return &stats, nil
}

func parseSeverity(s string) domain.Severity {
	switch s {
	case "high":
		return domain.SeverityHigh
	case "medium":
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
