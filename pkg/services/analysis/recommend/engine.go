// Package recommend composes idle and anomaly findings into ranked,
// deduplicated actionable items with estimated savings.
package recommend

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/services/policy"
)

type Engine struct {
	policy policy.RecommendPolicy
	now    func() time.Time
}

func New(p policy.RecommendPolicy) *Engine {
	return &Engine{policy: p, now: time.Now}
}

func NewWithClock(p policy.RecommendPolicy, now func() time.Time) *Engine {
	return &Engine{policy: p, now: now}
}

// Generate produces at most one recommendation per (scope, category) pair.
// Category derivation is deterministic: idle compute with some measured
// activity suggests rightsizing, fully inactive or storage-class resources
// suggest removal, anomalies become investigative items.
func (e *Engine) Generate(idleFindings, anomalyFindings []domain.Finding) []domain.Recommendation {
	type group struct {
		scope    domain.Scope
		category domain.RecommendationCategory
		findings []domain.Finding
	}
	groups := make(map[string]*group)
	add := func(f domain.Finding, cat domain.RecommendationCategory) {
		key := string(f.Scope) + ":" + string(cat)
		g, ok := groups[key]
		if !ok {
			g = &group{scope: f.Scope, category: cat}
			groups[key] = g
		}
		g.findings = append(g.findings, f)
	}

	for _, f := range idleFindings {
		add(f, idleCategory(f))
	}
	for _, f := range anomalyFindings {
		add(f, domain.CategoryOther)
	}

	now := e.now().UTC()
	recs := make([]domain.Recommendation, 0, len(groups))
	for _, g := range groups {
		rec := e.compose(*g, now)
		if rec.Category != domain.CategoryOther && rec.EstimatedMonthlySavings < e.policy.MinMonthlySavings {
			continue
		}
		recs = append(recs, rec)
	}
	Rank(recs)
	return recs
}

func idleCategory(f domain.Finding) domain.RecommendationCategory {
	measured := f.Evidence.AvgUtilizationPct != nil && *f.Evidence.AvgUtilizationPct > 0
	// Some measured activity suggests a smaller shape or a cheaper tier;
	// none at all suggests removal.
	if measured && (serviceIsCompute(f.Service) || serviceIsStorage(f.Service)) {
		return domain.CategoryRightsizing
	}
	return domain.CategoryIdleRemoval
}

func (e *Engine) compose(g struct {
	scope    domain.Scope
	category domain.RecommendationCategory
	findings []domain.Finding
}, now time.Time) domain.Recommendation {
	var savings, confidence float64
	ids := make([]string, 0, len(g.findings))
	var provider domain.Provider
	var service string
	resources := make([]string, 0, len(g.findings))
	for _, f := range g.findings {
		if f.EstimatedMonthlySavings != nil {
			savings += *f.EstimatedMonthlySavings
		}
		if f.Evidence.Confidence > confidence {
			confidence = f.Evidence.Confidence
		}
		ids = append(ids, f.ID)
		provider = f.Provider
		service = f.Service
		if f.ResourceID != "" {
			resources = append(resources, f.ResourceID)
		}
	}
	sort.Strings(ids)
	if confidence == 0 {
		confidence = 0.5
	}

	return domain.Recommendation{
		ID:                      domain.RecommendationID(g.scope, g.category),
		Category:                g.category,
		Scope:                   g.scope,
		Description:             describe(g.category, resources, len(g.findings), savings),
		EstimatedMonthlySavings: roundCents(savings),
		Confidence:              confidence,
		SourceFindingIDs:        ids,
		ImplementationSteps:     implementationSteps(g.category, provider, service),
		Status:                  domain.RecommendationOpen,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

func describe(cat domain.RecommendationCategory, resources []string, findings int, savings float64) string {
	subject := fmt.Sprintf("%d finding(s)", findings)
	if len(resources) > 0 {
		subject = strings.Join(lo.Uniq(resources), ", ")
	}
	switch cat {
	case domain.CategoryRightsizing:
		return fmt.Sprintf("Right-size underutilized resources (%s) to save about $%.0f/mo.", subject, savings)
	case domain.CategoryIdleRemoval:
		return fmt.Sprintf("Remove idle resources (%s) to save about $%.0f/mo.", subject, savings)
	case domain.CategoryReservedCapacity:
		return fmt.Sprintf("Commit to reserved capacity to save about $%.0f/mo.", savings)
	default:
		return fmt.Sprintf("Investigate %s: unexpected spend deviation detected.", subject)
	}
}

// Rank orders recommendations for presentation: savings descending,
// confidence descending, then scope ascending for stable output.
func Rank(recs []domain.Recommendation) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].EstimatedMonthlySavings != recs[j].EstimatedMonthlySavings {
			return recs[i].EstimatedMonthlySavings > recs[j].EstimatedMonthlySavings
		}
		if recs[i].Confidence != recs[j].Confidence {
			return recs[i].Confidence > recs[j].Confidence
		}
		return recs[i].Scope < recs[j].Scope
	})
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
