// Package azure collects Azure spend via the Cost Management query API at
// subscription scope.
package azure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/costmanagement/armcostmanagement"

	"github.com/costlens/costlens/pkg/collectors"
	"github.com/costlens/costlens/pkg/models/domain"
)

type collector struct {
	factory        *armcostmanagement.ClientFactory
	subscriptionID string
	scope          string
}

func CollectorFactory(_ context.Context, profile string) (collectors.Collector, error) {
	cfg, err := LoadConfig(profile)
	if err != nil {
		return nil, err
	}
	factory, err := armcostmanagement.NewClientFactory(cfg.Credentials, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cost management client: %w", err)
	}
	return &collector{
		factory:        factory,
		subscriptionID: cfg.SubscriptionID,
		scope:          fmt.Sprintf("/subscriptions/%s", cfg.SubscriptionID),
	}, nil
}

func (c *collector) Provider() domain.Provider {
	return domain.ProviderAzure
}

// Collect queries daily actual cost grouped by resource and service. Azure
// reports per-resource line items directly, so records carry resource ids
// and the idle detector can use its cost-only heuristics on them.
func (c *collector) Collect(ctx context.Context, start, end time.Time) ([]domain.CostRecord, []domain.UtilizationSignal, error) {
	client := c.factory.NewQueryClient()

	exportType := armcostmanagement.ExportTypeActualCost
	granularity := armcostmanagement.GranularityTypeDaily
	timeframe := armcostmanagement.TimeframeTypeCustom
	dimension := armcostmanagement.QueryColumnTypeDimension
	timeFrom, timeTo := start.UTC(), end.UTC()

	params := armcostmanagement.QueryDefinition{
		Type:      &exportType,
		Timeframe: &timeframe,
		TimePeriod: &armcostmanagement.QueryTimePeriod{
			From: &timeFrom,
			To:   &timeTo,
		},
		Dataset: &armcostmanagement.QueryDataset{
			Granularity: &granularity,
			Aggregation: map[string]*armcostmanagement.QueryAggregation{
				"totalCost": {
					Name:     to.Ptr("Cost"),
					Function: to.Ptr(armcostmanagement.FunctionTypeSum),
				},
			},
			Grouping: []*armcostmanagement.QueryGrouping{
				{Name: to.Ptr("ResourceId"), Type: &dimension},
				{Name: to.Ptr("ServiceName"), Type: &dimension},
			},
		},
	}

	result, err := client.Usage(ctx, c.scope, params, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query costs: %w", err)
	}

	// Row layout with one aggregation and two groupings:
	// [cost, usageDate, resourceId, serviceName, currency]
	var records []domain.CostRecord
	for _, row := range result.Properties.Rows {
		if len(row) < 4 {
			continue
		}
		amount, ok := row[0].(float64)
		if !ok || amount < 0 {
			continue
		}
		day, err := parseUsageDate(row[1])
		if err != nil {
			continue
		}
		records = append(records, domain.CostRecord{
			Provider:   domain.ProviderAzure,
			AccountID:  c.subscriptionID,
			Service:    fmt.Sprintf("%v", row[3]),
			ResourceID: shortResourceID(fmt.Sprintf("%v", row[2])),
			Date:       day,
			Amount:     amount,
		})
	}

	// Azure exposes no utilization feed through this API.
	return records, nil, nil
}

// parseUsageDate handles the numeric yyyymmdd form the query API returns.
func parseUsageDate(v any) (time.Time, error) {
	switch d := v.(type) {
	case float64:
		return time.Parse("20060102", fmt.Sprintf("%08.0f", d))
	case string:
		return time.Parse("20060102", d)
	default:
		return time.Time{}, fmt.Errorf("unexpected usage date %v", v)
	}
}

// shortResourceID trims the ARM path down to the trailing resource name,
// which is what operators recognize.
func shortResourceID(full string) string {
	if full == "" {
		return ""
	}
	parts := strings.Split(full, "/")
	return parts[len(parts)-1]
}
