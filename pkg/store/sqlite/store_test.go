package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/services/analysis/budget"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDB(Settings{Path: filepath.Join(t.TempDir(), "costlens.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func testDay(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func testRecord(resourceID, day string, amount float64) domain.CostRecord {
	return domain.CostRecord{
		Provider:   domain.ProviderAWS,
		AccountID:  "111",
		Service:    "EC2",
		ResourceID: resourceID,
		Date:       testDay(day),
		Amount:     amount,
		Tags:       map[string]string{"env": "prod"},
	}
}

func testFinding(resourceID string, scope domain.Scope, detectedAt time.Time) domain.Finding {
	savings := 42.0
	return domain.Finding{
		ID:         domain.FindingID(domain.FindingIdle, scope, resourceID),
		Kind:       domain.FindingIdle,
		Scope:      scope,
		ResourceID: resourceID,
		Service:    "EC2",
		Provider:   domain.ProviderAWS,
		StartDate:  testDay("2026-08-10"),
		EndDate:    testDay("2026-08-20"),
		Severity:   domain.SeverityMedium,
		Evidence: domain.Evidence{
			Summary:    "resource billed while unused",
			WindowDays: 10,
			Confidence: 0.9,
		},
		EstimatedMonthlySavings: &savings,
		Status:                  domain.FindingOpen,
		DetectedAt:              detectedAt,
	}
}

func testRecommendation(id string, scope domain.Scope, savings float64) domain.Recommendation {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	return domain.Recommendation{
		ID:                      id,
		Category:                domain.CategoryIdleRemoval,
		Scope:                   scope,
		Description:             "remove unused resource",
		EstimatedMonthlySavings: savings,
		Confidence:              0.8,
		SourceFindingIDs:        []string{"idle-abc"},
		ImplementationSteps:     []string{"snapshot", "delete"},
		Status:                  domain.RecommendationOpen,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

func TestAddCostRecords_ReingestDoesNotDoubleCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddCostRecords(ctx, []domain.CostRecord{testRecord("i-abc", "2026-08-20", 10)}))
	// Same record key with a corrected amount.
	require.NoError(t, store.AddCostRecords(ctx, []domain.CostRecord{testRecord("i-abc", "2026-08-20", 12)}))

	records, err := store.GetCostRecords(ctx, testDay("2026-08-01"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 12.0, records[0].Amount)
	assert.Equal(t, map[string]string{"env": "prod"}, records[0].Tags)

	stats, err := store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RecordCount)
	require.NotNil(t, stats.FirstRecordDate)
	assert.Equal(t, testDay("2026-08-20"), *stats.FirstRecordDate)
}

func TestGetCostRecords_SinceFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddCostRecords(ctx, []domain.CostRecord{
		testRecord("i-abc", "2026-08-01", 1),
		testRecord("i-abc", "2026-08-15", 2),
	}))

	records, err := store.GetCostRecords(ctx, testDay("2026-08-10"))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, testDay("2026-08-15"), records[0].Date)
}

func TestAddSignals_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddSignals(ctx, []domain.UtilizationSignal{
		{ResourceID: "i-abc", Metric: domain.MetricCPUPercent, Date: testDay("2026-08-20"), Value: 3.5},
	}))
	// Re-ingest with a corrected value.
	require.NoError(t, store.AddSignals(ctx, []domain.UtilizationSignal{
		{ResourceID: "i-abc", Metric: domain.MetricCPUPercent, Date: testDay("2026-08-20"), Value: 4.0},
	}))

	signals, err := store.GetSignals(ctx, testDay("2026-08-01"))
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, 4.0, signals[0].Value)
}

func TestReplaceFindings_SupersedeAndReaffirm(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scope := domain.AccountScope(domain.ProviderAWS, "111")

	t1 := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	original := testFinding("i-abc", scope, t1)
	require.NoError(t, store.ReplaceFindings(ctx, scope, []domain.Finding{original}))

	// Next run no longer detects it: the finding goes stale, not deleted.
	require.NoError(t, store.ReplaceFindings(ctx, scope, nil))
	stale, err := store.ListFindings(ctx, domain.FindingStale, "")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, original.ID, stale[0].ID)

	// Detected again: reopened under the same id, original detection time kept.
	again := testFinding("i-abc", scope, time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC))
	require.NoError(t, store.ReplaceFindings(ctx, scope, []domain.Finding{again}))

	open, err := store.ListFindings(ctx, domain.FindingOpen, domain.FindingIdle)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, original.ID, open[0].ID)
	assert.WithinDuration(t, t1, open[0].DetectedAt, time.Second)
	require.NotNil(t, open[0].EstimatedMonthlySavings)
	assert.Equal(t, 42.0, *open[0].EstimatedMonthlySavings)
	assert.Equal(t, "resource billed while unused", open[0].Evidence.Summary)
}

func TestReplaceFindings_ScopeIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scopeA := domain.AccountScope(domain.ProviderAWS, "111")
	scopeB := domain.AccountScope(domain.ProviderAWS, "222")

	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.ReplaceFindings(ctx, scopeA, []domain.Finding{testFinding("i-a", scopeA, now)}))
	require.NoError(t, store.ReplaceFindings(ctx, scopeB, []domain.Finding{testFinding("i-b", scopeB, now)}))

	// Clearing scope A must not touch scope B's findings.
	require.NoError(t, store.ReplaceFindings(ctx, scopeA, nil))

	open, err := store.ListFindings(ctx, domain.FindingOpen, "")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, scopeB, open[0].Scope)
}

func TestUpsertForecast_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	generated := time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC)

	points := []domain.ForecastPoint{
		{Scope: domain.ScopeTotal, Date: testDay("2026-08-29"), PointEstimate: 100, LowerBound: 90, UpperBound: 110, ModelConfidence: 0.8, GeneratedAt: generated},
		{Scope: domain.ScopeTotal, Date: testDay("2026-08-30"), PointEstimate: 102, LowerBound: 91, UpperBound: 113, ModelConfidence: 0.8, GeneratedAt: generated},
	}
	require.NoError(t, store.UpsertForecast(ctx, domain.ScopeTotal, points))

	// A later run replaces the same dates in place.
	points[0].PointEstimate = 105
	require.NoError(t, store.UpsertForecast(ctx, domain.ScopeTotal, points))

	got, err := store.GetForecast(ctx, domain.ScopeTotal)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 105.0, got[0].PointEstimate)
	assert.Equal(t, testDay("2026-08-29"), got[0].Date)
	assert.Equal(t, testDay("2026-08-30"), got[1].Date)
}

func TestUpsertRecommendations_PreservesManualStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scope := domain.AccountScope(domain.ProviderAWS, "111")

	rec := testRecommendation("rec-1", scope, 50)
	require.NoError(t, store.UpsertRecommendations(ctx, []domain.Recommendation{rec}))
	require.NoError(t, store.SetRecommendationStatus(ctx, "rec-1", domain.RecommendationDismissed))

	// The next run upserts the same recommendation; the dismissal sticks.
	require.NoError(t, store.UpsertRecommendations(ctx, []domain.Recommendation{rec}))

	dismissed, err := store.ListRecommendations(ctx, domain.RecommendationDismissed)
	require.NoError(t, err)
	require.Len(t, dismissed, 1)
	assert.Equal(t, "rec-1", dismissed[0].ID)
	assert.Equal(t, []string{"idle-abc"}, dismissed[0].SourceFindingIDs)
	assert.Equal(t, []string{"snapshot", "delete"}, dismissed[0].ImplementationSteps)
}

func TestListRecommendations_RankedBySavings(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scope := domain.AccountScope(domain.ProviderAWS, "111")

	require.NoError(t, store.UpsertRecommendations(ctx, []domain.Recommendation{
		testRecommendation("rec-small", scope, 10),
		testRecommendation("rec-big", scope, 500),
	}))

	recs, err := store.ListRecommendations(ctx, "")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "rec-big", recs[0].ID)
	assert.Equal(t, "rec-small", recs[1].ID)
}

func TestSetRecommendationStatus_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.SetRecommendationStatus(context.Background(), "rec-missing", domain.RecommendationApplied)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestMarkStaleRecommendations_KeepsActiveIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scopeA := domain.AccountScope(domain.ProviderAWS, "111")
	scopeB := domain.AccountScope(domain.ProviderAWS, "222")

	require.NoError(t, store.UpsertRecommendations(ctx, []domain.Recommendation{
		testRecommendation("rec-kept", scopeA, 50),
		testRecommendation("rec-gone", scopeA, 20),
		testRecommendation("rec-other-scope", scopeB, 30),
	}))

	// Scope B was not analyzed this run; its recommendations must survive.
	require.NoError(t, store.MarkStaleRecommendations(ctx, []domain.Scope{scopeA}, []string{"rec-kept"}))

	open, err := store.ListRecommendations(ctx, domain.RecommendationOpen)
	require.NoError(t, err)
	ids := make([]string, 0, len(open))
	for _, r := range open {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"rec-kept", "rec-other-scope"}, ids)

	stale, err := store.ListRecommendations(ctx, domain.RecommendationStale)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "rec-gone", stale[0].ID)
}

func TestAppendAlertEvents_DuplicatesIgnored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	event := domain.BudgetAlertEvent{
		BudgetID:             "total",
		Kind:                 domain.AlertThresholdCrossed,
		ThresholdCrossed:     80,
		PeriodKey:            "2026-08",
		ActualSpendAtTrigger: 850,
		TriggeredAt:          time.Date(2026, 8, 15, 6, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.AppendAlertEvents(ctx, []domain.BudgetAlertEvent{event}))
	require.NoError(t, store.AppendAlertEvents(ctx, []domain.BudgetAlertEvent{event}))

	events, err := store.ListAlertEvents(ctx, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 850.0, events[0].ActualSpendAtTrigger)
	assert.Nil(t, events[0].ProjectedPeriodSpend)
}

func TestBudgetState_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// No row yet: a zero state, not an error.
	state, err := store.GetBudgetState(ctx, "total")
	require.NoError(t, err)
	assert.Empty(t, state.BudgetID)

	saved := budget.State{
		BudgetID:          "total",
		PeriodKey:         "2026-08",
		CrossedThresholds: []float64{50, 80},
		ProjectedFired:    true,
	}
	require.NoError(t, store.SaveBudgetState(ctx, saved))

	got, err := store.GetBudgetState(ctx, "total")
	require.NoError(t, err)
	assert.Equal(t, saved, got)

	// Saving again replaces the single row per budget.
	saved.PeriodKey = "2026-09"
	saved.CrossedThresholds = nil
	saved.ProjectedFired = false
	require.NoError(t, store.SaveBudgetState(ctx, saved))

	got, err = store.GetBudgetState(ctx, "total")
	require.NoError(t, err)
	assert.Equal(t, "2026-09", got.PeriodKey)
	assert.Empty(t, got.CrossedThresholds)
	assert.False(t, got.ProjectedFired)
}

func TestCleanup_DropsExpiredRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -400).Format(domain.DateLayout)
	recent := time.Now().UTC().AddDate(0, 0, -5).Format(domain.DateLayout)
	require.NoError(t, store.AddCostRecords(ctx, []domain.CostRecord{
		testRecord("i-old", old, 1),
		testRecord("i-new", recent, 2),
	}))

	require.NoError(t, store.Cleanup(ctx, 365))

	records, err := store.GetCostRecords(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "i-new", records[0].ResourceID)
}
