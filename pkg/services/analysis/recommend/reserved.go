package recommend

import (
	"fmt"
	"sort"

	"github.com/costlens/costlens/pkg/models/domain"
)

// ServiceSpend is aggregated monthly spend for one provider service, the
// input to reserved-capacity analysis.
type ServiceSpend struct {
	Provider     domain.Provider
	Service      string
	MonthlySpend float64
}

// Commitment discount assumptions: roughly 40% for a 1-year term, 60% for
// 3-year. Coarse industry averages, not provider quotes.
const (
	oneYearDiscount   = 0.4
	threeYearDiscount = 0.6
)

var reservedEligible = map[domain.Provider]map[string]bool{
	domain.ProviderAWS:   {"EC2": true, "RDS": true},
	domain.ProviderGCP:   {"Compute Engine": true},
	domain.ProviderAzure: {"Virtual Machines": true},
}

// ReservedScopes lists every service scope reserved-capacity recommendations
// can be written under. Stale sweeps must include them so an open commitment
// suggestion fades once its service spend falls away.
func ReservedScopes() []domain.Scope {
	var scopes []domain.Scope
	for p, services := range reservedEligible {
		for s := range services {
			scopes = append(scopes, domain.ServiceScope(p, s))
		}
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i] < scopes[j] })
	return scopes
}

// ReservedCapacity surfaces commitment opportunities for steadily used
// compute services. Spend below the configured floor is ignored; higher
// spend flips the suggestion from a 1-year to a 3-year term.
func (e *Engine) ReservedCapacity(spend []ServiceSpend) []domain.Recommendation {
	now := e.now().UTC()
	var recs []domain.Recommendation
	for _, s := range spend {
		if !reservedEligible[s.Provider][s.Service] {
			continue
		}
		savings := s.MonthlySpend * oneYearDiscount
		if savings < e.policy.ReservedMinMonthlySpend {
			continue
		}
		term := "1-year"
		if savings > e.policy.ReservedThreeYearSpend {
			term = "3-year"
			savings = s.MonthlySpend * threeYearDiscount
		}

		scope := domain.ServiceScope(s.Provider, s.Service)
		recs = append(recs, domain.Recommendation{
			ID:       domain.RecommendationID(scope, domain.CategoryReservedCapacity),
			Category: domain.CategoryReservedCapacity,
			Scope:    scope,
			Description: fmt.Sprintf("Consistent %s usage on %s: a %s commitment would save about $%.0f/mo.",
				s.Service, s.Provider, term, savings),
			EstimatedMonthlySavings: roundCents(savings),
			Confidence:              0.6,
			ImplementationSteps:     reservedSteps(s.Provider, s.Service, term),
			Status:                  domain.RecommendationOpen,
			CreatedAt:               now,
			UpdatedAt:               now,
		})
	}
	Rank(recs)
	return recs
}

func reservedSteps(p domain.Provider, service, term string) []string {
	switch p {
	case domain.ProviderAWS:
		return []string{
			fmt.Sprintf("Analyze %s usage patterns to determine instance types to reserve", service),
			fmt.Sprintf("Purchase %s Reserved Instances or a Savings Plan through the AWS console", term),
			"Monitor utilization of reserved capacity",
		}
	case domain.ProviderGCP:
		return []string{
			fmt.Sprintf("Analyze %s usage patterns", service),
			fmt.Sprintf("Purchase %s committed use discounts through the GCP console", term),
			"Monitor utilization of committed resources",
		}
	default:
		return []string{
			fmt.Sprintf("Analyze %s usage patterns", service),
			fmt.Sprintf("Purchase %s reserved instances through the Azure portal", term),
			"Monitor utilization of reserved capacity",
		}
	}
}
