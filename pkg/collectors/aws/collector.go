// Package aws collects AWS spend via Cost Explorer and resource activity via
// the EC2 API.
package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	cetypes "github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"

	"github.com/costlens/costlens/pkg/collectors"
	"github.com/costlens/costlens/pkg/models/domain"
)

type collector struct {
	ce  *costexplorer.Client
	ec2 *ec2.Client
}

func CollectorFactory(ctx context.Context, profile string) (collectors.Collector, error) {
	cfg, err := LoadConfig(ctx, profile)
	if err != nil {
		return nil, err
	}
	return &collector{
		ce:  costexplorer.NewFromConfig(*cfg),
		ec2: ec2.NewFromConfig(*cfg),
	}, nil
}

func (c *collector) Provider() domain.Provider {
	return domain.ProviderAWS
}

// Collect pulls daily unblended cost grouped by account and service, then
// attaches an active-state signal for every running EC2 instance. Credits
// and refunds are excluded so spend matches what the analyzers expect.
func (c *collector) Collect(ctx context.Context, start, end time.Time) ([]domain.CostRecord, []domain.UtilizationSignal, error) {
	records, err := c.collectCosts(ctx, start, end)
	if err != nil {
		return nil, nil, err
	}
	signals, err := c.collectSignals(ctx)
	if err != nil {
		// Cost data is still usable without signals; idle detection falls
		// back to cost-only heuristics.
		zerolog.Ctx(ctx).Warn().Err(err).Msg("ec2 signal collection failed, continuing with cost data only")
		signals = nil
	}
	return records, signals, nil
}

func (c *collector) collectCosts(ctx context.Context, start, end time.Time) ([]domain.CostRecord, error) {
	input := &costexplorer.GetCostAndUsageInput{
		TimePeriod: &cetypes.DateInterval{
			Start: awssdk.String(start.UTC().Format(domain.DateLayout)),
			End:   awssdk.String(end.UTC().Format(domain.DateLayout)),
		},
		Granularity: cetypes.GranularityDaily,
		Metrics:     []string{"UnblendedCost", "UsageQuantity"},
		Filter: &cetypes.Expression{
			Not: &cetypes.Expression{
				Dimensions: &cetypes.DimensionValues{
					Key:    cetypes.DimensionRecordType,
					Values: []string{"Credit", "Refund"},
				},
			},
		},
		GroupBy: []cetypes.GroupDefinition{
			{
				Type: cetypes.GroupDefinitionTypeDimension,
				Key:  awssdk.String("LINKED_ACCOUNT"),
			},
			{
				Type: cetypes.GroupDefinitionTypeDimension,
				Key:  awssdk.String("SERVICE"),
			},
		},
	}

	var records []domain.CostRecord
	for {
		result, err := c.ce.GetCostAndUsage(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to get cost and usage: %w", err)
		}

		for _, byTime := range result.ResultsByTime {
			day, err := time.Parse(domain.DateLayout, awssdk.ToString(byTime.TimePeriod.Start))
			if err != nil {
				return nil, fmt.Errorf("failed to parse period start: %w", err)
			}
			for _, group := range byTime.Groups {
				rec, ok := c.groupToRecord(group, day)
				if ok {
					records = append(records, rec)
				}
			}
		}

		if result.NextPageToken == nil {
			break
		}
		input.NextPageToken = result.NextPageToken
	}
	return records, nil
}

func (c *collector) groupToRecord(group cetypes.Group, day time.Time) (domain.CostRecord, bool) {
	if len(group.Keys) < 2 {
		return domain.CostRecord{}, false
	}
	cost, ok := group.Metrics["UnblendedCost"]
	if !ok || cost.Amount == nil {
		return domain.CostRecord{}, false
	}
	amount, err := strconv.ParseFloat(awssdk.ToString(cost.Amount), 64)
	if err != nil || amount < 0 {
		return domain.CostRecord{}, false
	}

	rec := domain.CostRecord{
		Provider:  domain.ProviderAWS,
		AccountID: group.Keys[0],
		Service:   group.Keys[1],
		Date:      day,
		Amount:    amount,
	}
	if usage, ok := group.Metrics["UsageQuantity"]; ok && usage.Amount != nil {
		if qty, err := strconv.ParseFloat(awssdk.ToString(usage.Amount), 64); err == nil {
			rec.UsageQuantity = &qty
			rec.UsageUnit = awssdk.ToString(usage.Unit)
		}
	}
	return rec, true
}

// collectSignals marks every currently running instance active for today.
// Accumulated over daily collection runs this yields the per-day activity
// feed the idle detector consumes.
func (c *collector) collectSignals(ctx context.Context) ([]domain.UtilizationSignal, error) {
	today := time.Now().UTC().Truncate(24 * time.Hour)

	var signals []domain.UtilizationSignal
	input := &ec2.DescribeInstancesInput{
		Filters: []ec2types.Filter{
			{
				Name:   awssdk.String("instance-state-name"),
				Values: []string{"running"},
			},
		},
	}
	for {
		resp, err := c.ec2.DescribeInstances(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to describe EC2 instances: %w", err)
		}
		for _, reservation := range resp.Reservations {
			for _, instance := range reservation.Instances {
				signals = append(signals, domain.UtilizationSignal{
					ResourceID: awssdk.ToString(instance.InstanceId),
					Date:       today,
					Metric:     domain.MetricActiveState,
					Value:      1,
				})
			}
		}
		if resp.NextToken == nil {
			break
		}
		input.NextToken = resp.NextToken
	}
	return signals, nil
}
