// Package metrics publishes analysis run outcomes as Prometheus metrics,
// served on the web API's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/costlens/costlens/pkg/models/domain"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "costlens",
		Name:      "analysis_runs_total",
		Help:      "Completed analysis runs by outcome.",
	}, []string{"outcome"})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "costlens",
		Name:      "analysis_run_duration_seconds",
		Help:      "Wall time of a full analysis run.",
		Buckets:   prometheus.DefBuckets,
	})

	scopesByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "costlens",
		Name:      "analysis_scopes",
		Help:      "Scopes in the latest run by status.",
	}, []string{"status"})

	openFindings = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "costlens",
		Name:      "open_findings",
		Help:      "Findings emitted by the latest run.",
	})

	openRecommendations = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "costlens",
		Name:      "open_recommendations",
		Help:      "Recommendations emitted by the latest run.",
	})

	alertsFired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "costlens",
		Name:      "budget_alerts_fired_total",
		Help:      "Budget alert events fired across runs.",
	})
)

// RecordRun updates the metric set from a finished run.
func RecordRun(result domain.RunResult) {
	outcome := "success"
	if len(result.Failed()) > 0 {
		outcome = "partial_failure"
	}
	runsTotal.WithLabelValues(outcome).Inc()
	runDuration.Observe(result.FinishedAt.Sub(result.StartedAt).Seconds())

	counts := map[domain.ScopeStatus]int{}
	for _, s := range result.Scopes {
		counts[s.Status]++
	}
	for _, status := range []domain.ScopeStatus{domain.ScopeSuccess, domain.ScopeSkipped, domain.ScopeFailed} {
		scopesByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}

	findings, recommendations, alerts := result.Counts()
	openFindings.Set(float64(findings))
	openRecommendations.Set(float64(recommendations))
	alertsFired.Add(float64(alerts))
}
