package domain

import (
	"fmt"
	"strings"
	"time"
)

type Provider string

const (
	ProviderAWS   Provider = "AWS"
	ProviderGCP   Provider = "GCP"
	ProviderAzure Provider = "Azure"
)

// ParseProvider resolves a provider name case-insensitively, so configured
// values like "gcp" match records tagged with the canonical form.
func ParseProvider(s string) (Provider, bool) {
	switch strings.ToLower(s) {
	case "aws":
		return ProviderAWS, true
	case "gcp":
		return ProviderGCP, true
	case "azure":
		return ProviderAzure, true
	}
	return "", false
}

// Scope is an aggregation key for cost: a provider, account, service, or the
// whole estate. Forecasts, budgets, and anomalies are computed per scope.
type Scope string

const ScopeTotal Scope = "total"

func ProviderScope(p Provider) Scope {
	return Scope(fmt.Sprintf("provider/%s", p))
}

func AccountScope(p Provider, accountID string) Scope {
	return Scope(fmt.Sprintf("account/%s/%s", p, accountID))
}

func ServiceScope(p Provider, service string) Scope {
	return Scope(fmt.Sprintf("service/%s/%s", p, service))
}

// Provider extracts the provider from a provider-, account-, or
// service-level scope. The total scope has none.
func (s Scope) Provider() (Provider, bool) {
	parts := strings.SplitN(string(s), "/", 3)
	if len(parts) < 2 {
		return "", false
	}
	switch parts[0] {
	case "provider", "account", "service":
		p := Provider(parts[1])
		if p == ProviderAWS || p == ProviderGCP || p == ProviderAzure {
			return p, true
		}
	}
	return "", false
}

// CostRecord is one billed line item, normalized by a collector: currency
// converted, day granularity, UTC dates.
type CostRecord struct {
	Provider      Provider
	AccountID     string
	Service       string
	ResourceID    string // empty for service-level line items
	Date          time.Time
	Amount        float64
	UsageQuantity *float64
	UsageUnit     string
	Tags          map[string]string
}

// Key identifies the record for upserts; re-ingesting the same key replaces
// the prior value instead of double-counting.
func (r CostRecord) Key() string {
	subject := r.ResourceID
	if subject == "" {
		subject = r.Service
	}
	return fmt.Sprintf("%s|%s|%s|%s", r.Provider, r.AccountID, subject, r.Date.Format(DateLayout))
}

func (r CostRecord) Validate() error {
	if r.Provider != ProviderAWS && r.Provider != ProviderGCP && r.Provider != ProviderAzure {
		return fmt.Errorf("unknown provider %q", r.Provider)
	}
	if r.AccountID == "" {
		return fmt.Errorf("missing account id")
	}
	if r.Service == "" && r.ResourceID == "" {
		return fmt.Errorf("record has neither service nor resource id")
	}
	if r.Date.IsZero() {
		return fmt.Errorf("missing date")
	}
	if r.Amount < 0 {
		return fmt.Errorf("negative amount %.4f", r.Amount)
	}
	return nil
}

// DateLayout is the canonical day format used across scopes and storage.
const DateLayout = "2006-01-02"

// DailyCost is one point of a per-scope daily spend series.
type DailyCost struct {
	Date   time.Time
	Amount float64
}

// SignalMetric names the telemetry attached to a resource for a day.
type SignalMetric string

const (
	MetricCPUPercent   SignalMetric = "cpu_percent"
	MetricRequestCount SignalMetric = "request_count"
	// MetricActiveState carries 1 when the resource was observed running
	// that day, 0 otherwise. Used by the no-telemetry idle fallback.
	MetricActiveState SignalMetric = "active_state"
)

// UtilizationSignal is a per-resource activity metric for a calendar day.
// Absence is valid: resource types without telemetry are evaluated on
// cost-only heuristics.
type UtilizationSignal struct {
	ResourceID string
	Date       time.Time
	Metric     SignalMetric
	Value      float64
}
