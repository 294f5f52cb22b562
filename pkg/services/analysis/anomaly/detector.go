// Package anomaly flags cost-series points that deviate materially from the
// forecast baseline for the same scope.
package anomaly

import (
	"fmt"
	"sort"
	"time"

	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/services/policy"
)

type Detector struct {
	policy policy.AnomalyPolicy
	now    func() time.Time
}

func New(p policy.AnomalyPolicy) *Detector {
	return &Detector{policy: p, now: time.Now}
}

func NewWithClock(p policy.AnomalyPolicy, now func() time.Time) *Detector {
	return &Detector{policy: p, now: now}
}

// dayAnomaly is one anomalous observation before range merging.
type dayAnomaly struct {
	date      time.Time
	actual    float64
	expected  float64
	deviation float64
	severity  domain.Severity
}

// Detect compares actual daily spend against the baseline forecast points
// for the same scope. A point is anomalous when it falls outside the
// baseline bounds and the absolute deviation exceeds the configured floor.
// Days without a baseline are skipped; the detector never fabricates one.
// Consecutive anomalous days merge into a single finding with a date range.
func (d *Detector) Detect(scope domain.Scope, service string, actual []domain.DailyCost, baseline []domain.ForecastPoint) []domain.Finding {
	byDay := make(map[string]domain.ForecastPoint, len(baseline))
	for _, p := range baseline {
		byDay[p.Date.UTC().Format(domain.DateLayout)] = p
	}

	sorted := append([]domain.DailyCost(nil), actual...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var days []dayAnomaly
	for _, obs := range sorted {
		base, ok := byDay[obs.Date.UTC().Format(domain.DateLayout)]
		if !ok {
			continue
		}
		if obs.Amount >= base.LowerBound && obs.Amount <= base.UpperBound {
			continue
		}
		deviation := obs.Amount - base.PointEstimate
		if abs(deviation) < d.policy.DeviationFloor {
			// Razor-thin bounds on near-zero scopes are noise, not signal.
			continue
		}
		days = append(days, dayAnomaly{
			date:      obs.Date,
			actual:    obs.Amount,
			expected:  base.PointEstimate,
			deviation: deviation,
			severity:  severity(obs.Amount, base),
		})
	}

	return d.merge(scope, service, days)
}

// severity is High when the excursion beyond the nearest bound exceeds twice
// the bound width, Medium otherwise. The degraded flat baseline has zero
// model confidence and zero-width bounds; deviations from it never rate High.
func severity(actual float64, base domain.ForecastPoint) domain.Severity {
	if base.ModelConfidence == 0 {
		return domain.SeverityMedium
	}
	width := base.UpperBound - base.LowerBound
	var beyond float64
	if actual > base.UpperBound {
		beyond = actual - base.UpperBound
	} else {
		beyond = base.LowerBound - actual
	}
	if beyond > 2*width {
		return domain.SeverityHigh
	}
	return domain.SeverityMedium
}

func (d *Detector) merge(scope domain.Scope, service string, days []dayAnomaly) []domain.Finding {
	var findings []domain.Finding
	detectedAt := d.now().UTC()

	for i := 0; i < len(days); {
		j := i
		for j+1 < len(days) && days[j+1].date.Sub(days[j].date) == 24*time.Hour {
			j++
		}
		run := days[i : j+1]

		var actualSum, expectedSum float64
		sev := domain.SeverityMedium
		for _, a := range run {
			actualSum += a.actual
			expectedSum += a.expected
			if a.severity > sev {
				sev = a.severity
			}
		}
		deviation := actualSum - expectedSum
		direction := "increase"
		if deviation < 0 {
			direction = "decrease"
		}

		start, end := run[0].date, run[len(run)-1].date
		findings = append(findings, domain.Finding{
			ID:        domain.FindingID(domain.FindingAnomaly, scope, start.Format(domain.DateLayout)),
			Kind:      domain.FindingAnomaly,
			Scope:     scope,
			Service:   service,
			StartDate: start,
			EndDate:   end,
			Severity:  sev,
			Status:    domain.FindingOpen,
			Evidence: domain.Evidence{
				Summary: fmt.Sprintf("%s severity %s of $%.2f vs expected spend between %s and %s",
					sev, direction, abs(deviation), start.Format(domain.DateLayout), end.Format(domain.DateLayout)),
				ExpectedAmount:     expectedSum,
				ActualAmount:       actualSum,
				Deviation:          deviation,
				WindowDays:         len(run),
				PossibleCauses:     possibleCauses(service, direction),
				RecommendedActions: recommendedActions(service, direction),
			},
			DetectedAt: detectedAt,
		})
		i = j + 1
	}
	return findings
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
