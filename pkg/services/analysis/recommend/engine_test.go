package recommend

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

func newEngine() *Engine {
	return NewWithClock(policy.Default().Recommend, testClock)
}

func idleFinding(scope domain.Scope, resource, service string, savings, avgUtil float64) domain.Finding {
	f := domain.Finding{
		ID:                      domain.FindingID(domain.FindingIdle, scope, resource),
		Kind:                    domain.FindingIdle,
		Scope:                   scope,
		ResourceID:              resource,
		Service:                 service,
		Provider:                domain.ProviderAWS,
		EstimatedMonthlySavings: &savings,
		Status:                  domain.FindingOpen,
		Evidence:                domain.Evidence{Confidence: 0.9},
	}
	if avgUtil > 0 {
		f.Evidence.AvgUtilizationPct = &avgUtil
	}
	return f
}

func TestGenerate_RightsizingForActiveCompute(t *testing.T) {
	e := newEngine()
	scope := domain.AccountScope(domain.ProviderAWS, "123")

	recs := e.Generate([]domain.Finding{idleFinding(scope, "i-abc", "EC2", 60, 2.5)}, nil)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CategoryRightsizing, recs[0].Category)
	assert.Equal(t, 60.0, recs[0].EstimatedMonthlySavings)
	assert.Equal(t, 0.9, recs[0].Confidence)
	// Resize steps name a concrete target shape from the downsize catalog.
	require.Len(t, recs[0].ImplementationSteps, 3)
	assert.Contains(t, recs[0].ImplementationSteps[1], "t3.large")
	assert.Contains(t, recs[0].ImplementationSteps[1], "t3.medium")
}

func TestGenerate_TierChangeForActiveStorage(t *testing.T) {
	e := newEngine()
	scope := domain.AccountScope(domain.ProviderAWS, "123")

	// Low but nonzero I/O on storage suggests a cheaper tier, not removal.
	recs := e.Generate([]domain.Finding{idleFinding(scope, "vol-1", "EBS", 40, 1.2)}, nil)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CategoryRightsizing, recs[0].Category)
	require.Len(t, recs[0].ImplementationSteps, 3)
	assert.Contains(t, recs[0].ImplementationSteps[1], "gp3")
	assert.Contains(t, recs[0].ImplementationSteps[1], "gp2")
}

func TestGenerate_IdleRemovalForInactiveResources(t *testing.T) {
	e := newEngine()
	scope := domain.AccountScope(domain.ProviderAWS, "123")

	recs := e.Generate([]domain.Finding{idleFinding(scope, "vol-1", "EBS", 30, 0)}, nil)
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CategoryIdleRemoval, recs[0].Category)
}

func TestGenerate_DedupPerScopeAndCategory(t *testing.T) {
	e := newEngine()
	scope := domain.AccountScope(domain.ProviderAWS, "123")

	recs := e.Generate([]domain.Finding{
		idleFinding(scope, "vol-1", "EBS", 30, 0),
		idleFinding(scope, "vol-2", "EBS", 20, 0),
	}, nil)

	require.Len(t, recs, 1)
	assert.Equal(t, 50.0, recs[0].EstimatedMonthlySavings)
	assert.Len(t, recs[0].SourceFindingIDs, 2)
}

func TestGenerate_SavingsFloorFiltersSmallItems(t *testing.T) {
	e := newEngine()
	scope := domain.AccountScope(domain.ProviderAWS, "123")

	recs := e.Generate([]domain.Finding{idleFinding(scope, "vol-1", "EBS", 2, 0)}, nil)
	assert.Empty(t, recs)
}

func TestGenerate_AnomaliesBypassSavingsFloor(t *testing.T) {
	e := newEngine()
	scope := domain.AccountScope(domain.ProviderAWS, "123")

	anomaly := domain.Finding{
		ID:    domain.FindingID(domain.FindingAnomaly, scope, "2026-08-20"),
		Kind:  domain.FindingAnomaly,
		Scope: scope,
	}
	recs := e.Generate(nil, []domain.Finding{anomaly})
	require.Len(t, recs, 1)
	assert.Equal(t, domain.CategoryOther, recs[0].Category)
	assert.Equal(t, 0.0, recs[0].EstimatedMonthlySavings)
	// No finding-level confidence defaults to a middling value.
	assert.Equal(t, 0.5, recs[0].Confidence)
}

func TestGenerate_RankedBySavings(t *testing.T) {
	e := newEngine()
	scopeA := domain.AccountScope(domain.ProviderAWS, "a")
	scopeB := domain.AccountScope(domain.ProviderAWS, "b")

	recs := e.Generate([]domain.Finding{
		idleFinding(scopeA, "vol-1", "EBS", 30, 0),
		idleFinding(scopeB, "vol-2", "EBS", 90, 0),
	}, nil)

	require.Len(t, recs, 2)
	assert.Equal(t, 90.0, recs[0].EstimatedMonthlySavings)
	assert.Equal(t, 30.0, recs[1].EstimatedMonthlySavings)
}

func TestGenerate_StableIDs(t *testing.T) {
	e := newEngine()
	scope := domain.AccountScope(domain.ProviderAWS, "123")
	findings := []domain.Finding{idleFinding(scope, "vol-1", "EBS", 30, 0)}

	first := e.Generate(findings, nil)
	second := e.Generate(findings, nil)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestReservedCapacity_TermSelection(t *testing.T) {
	e := newEngine()

	recs := e.ReservedCapacity([]ServiceSpend{
		// 40% of 500 = 200: above the floor, below the 3-year trigger.
		{Provider: domain.ProviderAWS, Service: "EC2", MonthlySpend: 500},
		// 40% of 2000 = 800: flips to a 3-year term at 60%.
		{Provider: domain.ProviderGCP, Service: "Compute Engine", MonthlySpend: 2000},
		// Below the floor.
		{Provider: domain.ProviderAWS, Service: "RDS", MonthlySpend: 100},
		// Not commitment-eligible.
		{Provider: domain.ProviderAWS, Service: "S3", MonthlySpend: 5000},
	})

	require.Len(t, recs, 2)
	assert.Equal(t, 1200.0, recs[0].EstimatedMonthlySavings)
	assert.Contains(t, recs[0].Description, "3-year")
	assert.Equal(t, 200.0, recs[1].EstimatedMonthlySavings)
	assert.Contains(t, recs[1].Description, "1-year")
}

func TestDownsizeTargets(t *testing.T) {
	assert.Equal(t, "t3.medium", DownsizeTarget(domain.ProviderAWS, "t3.large"))
	assert.Equal(t, "unknown", DownsizeTarget(domain.ProviderAWS, "unknown"))
	assert.Equal(t, "gp3", StorageTierTarget(domain.ProviderAWS, "gp2"))
}
