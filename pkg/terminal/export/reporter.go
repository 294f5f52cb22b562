// Package export renders analysis results for the terminal.
package export

import (
	"fmt"
	"io"
	"os"
	"text/template"

	"github.com/costlens/costlens/pkg/models/domain"
	"github.com/costlens/costlens/pkg/services/analysis/recommend"
)

// Reporter outputs analysis results to the console in a formatted text form.
type Reporter struct {
	writer io.Writer
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{writer: writer}
}

const runTemplate = `
Analysis run {{.RunID}}
Started:  {{.StartedAt.Format "2006-01-02 15:04:05"}}
Finished: {{.FinishedAt.Format "2006-01-02 15:04:05"}}

{{range .Scopes}}
=== {{.Scope}} [{{.Status}}] ===
{{- if .Reason}}
Reason: {{.Reason}}
{{- else}}
Findings: {{.Findings}}, Forecast points: {{.ForecastPoints}}, Recommendations: {{.Recommendations}}
{{- end}}
{{end}}
{{if .AlertEvents}}
Budget alerts fired:
{{- range .AlertEvents}}
- [{{.Kind}}] budget {{.BudgetID}} period {{.PeriodKey}}{{if .ThresholdCrossed}} at {{printf "%.0f" .ThresholdCrossed}}%{{end}} (spend {{printf "%.2f" .ActualSpendAtTrigger}})
{{- end}}
{{end}}
`

func (r *Reporter) HandleRun(result domain.RunResult) error {
	t, err := template.New("run").Parse(runTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return t.Execute(r.writer, result)
}

const recommendationsTemplate = `
{{- if not . -}}
No recommendations.
{{else -}}
{{range . -}}
[{{.Category}}] {{.Scope}} ({{.Status}})
  {{.Description}}
  Estimated savings: ${{printf "%.2f" .EstimatedMonthlySavings}}/month (confidence {{printf "%.0f" (mulPct .Confidence)}}%)
{{- range .ImplementationSteps}}
  - {{.}}
{{- end}}

{{end}}
{{- end}}`

func (r *Reporter) HandleRecommendations(recs []domain.Recommendation) error {
	t, err := template.New("recommendations").Funcs(template.FuncMap{
		"mulPct": func(v float64) float64 { return v * 100 },
	}).Parse(recommendationsTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return t.Execute(r.writer, recs)
}

const summaryTemplate = `Total estimated savings: ${{printf "%.2f" .Total}}/month
{{if .ByProvider}}
By provider:
{{- range .ByProvider}}
  {{.Group}}: ${{printf "%.2f" .Savings}}/month ({{.Count}} recommendations)
{{- end}}
{{end}}
{{- if .ByCategory}}
By category:
{{- range .ByCategory}}
  {{.Group}}: ${{printf "%.2f" .Savings}}/month ({{.Count}} recommendations)
{{- end}}
{{end}}`

func (r *Reporter) HandleSavingsSummary(summary recommend.SavingsSummary) error {
	t, err := template.New("summary").Parse(summaryTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return t.Execute(r.writer, summary)
}

const alertsTemplate = `
{{- if not . -}}
No budget alerts.
{{else -}}
{{range . -}}
[{{.Kind}}] budget {{.BudgetID}} period {{.PeriodKey}}
  Spend at trigger: ${{printf "%.2f" .ActualSpendAtTrigger}}
{{- if .ThresholdCrossed}}
  Threshold: {{printf "%.0f" .ThresholdCrossed}}%
{{- end}}
{{- if .ProjectedPeriodSpend}}
  Projected period spend: ${{printf "%.2f" (deref .ProjectedPeriodSpend)}}
{{- end}}
  At: {{.TriggeredAt.Format "2006-01-02 15:04:05"}}

{{end}}
{{- end}}`

func (r *Reporter) HandleAlerts(events []domain.BudgetAlertEvent) error {
	t, err := template.New("alerts").Funcs(template.FuncMap{
		"deref": func(v *float64) float64 {
			if v == nil {
				return 0
			}
			return *v
		},
	}).Parse(alertsTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return t.Execute(r.writer, events)
}
