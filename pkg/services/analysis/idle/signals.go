package idle

import (
	"time"

	"github.com/costlens/costlens/pkg/models/domain"
)

// signalIndex holds per-resource telemetry keyed by day. Utilization metrics
// (CPU, request count) and the active-state feed are tracked separately
// since they drive different detection paths.
type signalIndex struct {
	// utilization: resource -> day -> mean utilization percent.
	utilization map[string]map[string]float64
	// active: resource -> day set where the resource was observed running.
	active map[string]map[string]bool
}

func indexSignals(signals []domain.UtilizationSignal) signalIndex {
	idx := signalIndex{
		utilization: make(map[string]map[string]float64),
		active:      make(map[string]map[string]bool),
	}
	counts := make(map[string]map[string]int)

	for _, s := range signals {
		day := s.Date.UTC().Format(domain.DateLayout)
		switch s.Metric {
		case domain.MetricActiveState:
			if s.Value > 0 {
				if idx.active[s.ResourceID] == nil {
					idx.active[s.ResourceID] = make(map[string]bool)
				}
				idx.active[s.ResourceID][day] = true
			}
		case domain.MetricCPUPercent, domain.MetricRequestCount:
			if idx.utilization[s.ResourceID] == nil {
				idx.utilization[s.ResourceID] = make(map[string]float64)
				counts[s.ResourceID] = make(map[string]int)
			}
			idx.utilization[s.ResourceID][day] += s.Value
			counts[s.ResourceID][day]++
		}
	}
	for id, days := range idx.utilization {
		for day := range days {
			days[day] /= float64(counts[id][day])
		}
	}
	return idx
}

func (s signalIndex) utilizationOn(resourceID string, date time.Time) (float64, bool) {
	days, ok := s.utilization[resourceID]
	if !ok {
		return 0, false
	}
	v, ok := days[date.UTC().Format(domain.DateLayout)]
	return v, ok
}

func (s signalIndex) activeOn(resourceID string, date time.Time) bool {
	return s.active[resourceID][date.UTC().Format(domain.DateLayout)]
}

func hasActiveStateFeed(signals []domain.UtilizationSignal) bool {
	for _, s := range signals {
		if s.Metric == domain.MetricActiveState {
			return true
		}
	}
	return false
}
