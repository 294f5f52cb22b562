package recommend

import (
	"sort"

	"github.com/samber/lo"

	"github.com/costlens/costlens/pkg/models/domain"
)

// SavingsSummary totals estimated monthly savings across a set of
// recommendations.
type SavingsSummary struct {
	Total      float64
	ByProvider []GroupedSavings
	ByCategory []GroupedSavings
}

type GroupedSavings struct {
	Group   string
	Savings float64
	Count   int
}

// Summarize aggregates savings by provider and by category, both sorted by
// savings descending. Recommendations on the total scope count toward the
// overall total but no provider group.
func Summarize(recs []domain.Recommendation) SavingsSummary {
	summary := SavingsSummary{
		Total: lo.SumBy(recs, func(r domain.Recommendation) float64 {
			return r.EstimatedMonthlySavings
		}),
	}

	byProvider := lo.GroupBy(recs, func(r domain.Recommendation) string {
		if p, ok := r.Scope.Provider(); ok {
			return string(p)
		}
		return ""
	})
	delete(byProvider, "")
	summary.ByProvider = groupTotals(byProvider)

	byCategory := lo.GroupBy(recs, func(r domain.Recommendation) string {
		return string(r.Category)
	})
	summary.ByCategory = groupTotals(byCategory)

	return summary
}

func groupTotals(groups map[string][]domain.Recommendation) []GroupedSavings {
	out := make([]GroupedSavings, 0, len(groups))
	for group, recs := range groups {
		out = append(out, GroupedSavings{
			Group: group,
			Savings: lo.SumBy(recs, func(r domain.Recommendation) float64 {
				return r.EstimatedMonthlySavings
			}),
			Count: len(recs),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Savings != out[j].Savings {
			return out[i].Savings > out[j].Savings
		}
		return out[i].Group < out[j].Group
	})
	return out
}
