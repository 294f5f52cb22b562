package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/costlens/costlens/pkg/metrics"
	"github.com/costlens/costlens/pkg/models/domain"
)

// DefaultLookbackDays bounds how much history a run loads. Forecast and
// seasonality need weeks, not the full retention window.
const DefaultLookbackDays = 90

// RecordSource is the read side of the storage collaborator.
type RecordSource interface {
	GetCostRecords(ctx context.Context, since time.Time) ([]domain.CostRecord, error)
	GetSignals(ctx context.Context, since time.Time) ([]domain.UtilizationSignal, error)
}

// Service loads stored records and executes the pipeline over them. It is
// what the web API and the scheduler invoke.
type Service struct {
	runner       *Runner
	source       RecordSource
	lookbackDays int
}

func NewService(runner *Runner, source RecordSource) *Service {
	return &Service{
		runner:       runner,
		source:       source,
		lookbackDays: DefaultLookbackDays,
	}
}

func (s *Service) Analyze(ctx context.Context) (domain.RunResult, error) {
	since := time.Now().UTC().AddDate(0, 0, -s.lookbackDays)

	records, err := s.source.GetCostRecords(ctx, since)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("loading cost records: %w", err)
	}
	signals, err := s.source.GetSignals(ctx, since)
	if err != nil {
		return domain.RunResult{}, fmt.Errorf("loading signals: %w", err)
	}

	result, err := s.runner.Run(ctx, records, signals)
	if err != nil {
		return result, err
	}
	metrics.RecordRun(result)
	return result, nil
}
