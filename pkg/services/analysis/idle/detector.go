// Package idle flags underutilized resources from utilization telemetry,
// falling back to cost-only heuristics for resource types without it.
package idle

import (
	"fmt"
	"sort"
	"time"

	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/services/policy"
)

const (
	telemetryConfidence = 0.9
	fallbackConfidence  = 0.6
)

type Detector struct {
	policy policy.IdlePolicy
	now    func() time.Time
}

func New(p policy.IdlePolicy) *Detector {
	return &Detector{policy: p, now: time.Now}
}

func NewWithClock(p policy.IdlePolicy, now func() time.Time) *Detector {
	return &Detector{policy: p, now: now}
}

// resourceHistory is one resource's billed days in ascending date order.
type resourceHistory struct {
	provider  domain.Provider
	accountID string
	service   string
	days      []domain.CostRecord
}

// Detect walks each billed resource's trailing contiguous window and emits
// an idle finding when it meets the minimum window length. Billing gaps
// break the window rather than extending it; a resource that stopped being
// billed is not flagged, since no data is not the same as idle.
func (d *Detector) Detect(records []domain.CostRecord, signals []domain.UtilizationSignal) []domain.Finding {
	resources := groupByResource(records)
	if len(resources) == 0 {
		return nil
	}

	var maxDate time.Time
	for _, r := range records {
		if r.Date.After(maxDate) {
			maxDate = r.Date
		}
	}

	sigIndex := indexSignals(signals)
	activeFeedPresent := hasActiveStateFeed(signals)

	detectedAt := d.now().UTC()
	var findings []domain.Finding

	ids := make([]string, 0, len(resources))
	for id := range resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		hist := resources[id]
		lastBilled := hist.days[len(hist.days)-1].Date
		if maxDate.Sub(lastBilled) > time.Duration(d.policy.BillingGraceDays)*24*time.Hour {
			continue
		}

		var f *domain.Finding
		if _, ok := sigIndex.utilization[id]; ok {
			f = d.telemetryFinding(id, hist, sigIndex, detectedAt)
		} else {
			f = d.fallbackFinding(id, hist, sigIndex, activeFeedPresent, detectedAt)
		}
		if f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

// telemetryFinding requires utilization below the threshold on every day of
// the trailing contiguous window. A billed day without a signal breaks the
// window: unknown utilization is treated as not idle.
func (d *Detector) telemetryFinding(id string, hist resourceHistory, sigs signalIndex, detectedAt time.Time) *domain.Finding {
	window := trailingRun(hist.days, func(rec domain.CostRecord) bool {
		util, ok := sigs.utilizationOn(id, rec.Date)
		return ok && util < d.policy.UtilizationThresholdPct
	})
	if len(window) < d.policy.MinWindowDays {
		return nil
	}

	var utilSum float64
	for _, rec := range window {
		u, _ := sigs.utilizationOn(id, rec.Date)
		utilSum += u
	}
	avgUtil := utilSum / float64(len(window))

	savings := monthlySavings(window)
	f := d.newFinding(id, hist, window, savings, detectedAt)
	f.Severity = scaledSeverity(len(window), d.policy.MinWindowDays, savings)
	f.Evidence = domain.Evidence{
		Summary: fmt.Sprintf("utilization below %.1f%% for %d consecutive billed days",
			d.policy.UtilizationThresholdPct, len(window)),
		AvgUtilizationPct: &avgUtil,
		WindowDays:        len(window),
		Confidence:        telemetryConfidence,
	}
	return f
}

// fallbackFinding covers resources without utilization telemetry: storage and
// network resources accruing cost with zero recorded usage quantity, and
// compute resources absent from the active-state feed. The compute heuristic
// only applies when an active-state feed exists at all, otherwise every
// unobserved resource would look idle.
func (d *Detector) fallbackFinding(id string, hist resourceHistory, sigs signalIndex, activeFeed bool, detectedAt time.Time) *domain.Finding {
	class := serviceClass(hist.service)

	var window []domain.CostRecord
	var reason string
	switch class {
	case classStorage, classNetwork:
		window = trailingRun(hist.days, func(rec domain.CostRecord) bool {
			return rec.UsageQuantity != nil && *rec.UsageQuantity == 0 && rec.Amount > 0
		})
		reason = "cost accrual with zero usage quantity"
	case classCompute:
		if !activeFeed {
			return nil
		}
		window = trailingRun(hist.days, func(rec domain.CostRecord) bool {
			return !sigs.activeOn(id, rec.Date)
		})
		reason = "no active-state signal while billed"
	default:
		return nil
	}
	if len(window) < d.policy.MinWindowDays {
		return nil
	}

	savings := monthlySavings(window)
	f := d.newFinding(id, hist, window, savings, detectedAt)
	f.Severity = domain.SeverityMedium
	f.Evidence = domain.Evidence{
		Summary:    fmt.Sprintf("%s for %d consecutive billed days", reason, len(window)),
		WindowDays: len(window),
		Confidence: fallbackConfidence,
	}
	return f
}

func (d *Detector) newFinding(id string, hist resourceHistory, window []domain.CostRecord, savings float64, detectedAt time.Time) *domain.Finding {
	scope := domain.AccountScope(hist.provider, hist.accountID)
	return &domain.Finding{
		ID:                      domain.FindingID(domain.FindingIdle, scope, id),
		Kind:                    domain.FindingIdle,
		Scope:                   scope,
		ResourceID:              id,
		Service:                 hist.service,
		Provider:                hist.provider,
		StartDate:               window[0].Date,
		EndDate:                 window[len(window)-1].Date,
		EstimatedMonthlySavings: &savings,
		Status:                  domain.FindingOpen,
		DetectedAt:              detectedAt,
	}
}

// trailingRun returns the longest suffix of billed days that is contiguous
// (no missing calendar days) and satisfies qualifies on every day.
func trailingRun(days []domain.CostRecord, qualifies func(domain.CostRecord) bool) []domain.CostRecord {
	start := len(days)
	for i := len(days) - 1; i >= 0; i-- {
		if !qualifies(days[i]) {
			break
		}
		if i < len(days)-1 && days[i+1].Date.Sub(days[i].Date) != 24*time.Hour {
			break
		}
		start = i
	}
	return days[start:]
}

// monthlySavings annualizes the flagged window to a monthly rate.
func monthlySavings(window []domain.CostRecord) float64 {
	var total float64
	for _, rec := range window {
		total += rec.Amount
	}
	return total / float64(len(window)) * 30
}

// scaledSeverity grows with window length and absolute cost.
func scaledSeverity(windowDays, minWindow int, savings float64) domain.Severity {
	if windowDays >= 2*minWindow || savings >= 100 {
		return domain.SeverityHigh
	}
	if savings < 10 {
		return domain.SeverityLow
	}
	return domain.SeverityMedium
}

func groupByResource(records []domain.CostRecord) map[string]resourceHistory {
	out := make(map[string]resourceHistory)
	for _, r := range records {
		if r.ResourceID == "" {
			continue
		}
		hist := out[r.ResourceID]
		hist.provider = r.Provider
		hist.accountID = r.AccountID
		hist.service = r.Service
		hist.days = append(hist.days, r)
		out[r.ResourceID] = hist
	}
	for id, hist := range out {
		sort.Slice(hist.days, func(i, j int) bool { return hist.days[i].Date.Before(hist.days[j].Date) })
		out[id] = hist
	}
	return out
}
