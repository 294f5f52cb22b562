// Package gcp collects GCP spend from a standard billing export table in
// BigQuery via the REST query endpoint.
package gcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/costlens/costlens/pkg/collectors"
	"github.com/costlens/costlens/pkg/models/domain"
)

const bigQueryScope = "https://www.googleapis.com/auth/bigquery.readonly"

type collector struct {
	cfg        *Config
	httpClient *http.Client
}

func CollectorFactory(ctx context.Context, profile string) (collectors.Collector, error) {
	cfg, err := LoadConfig(profile)
	if err != nil {
		return nil, err
	}
	key, err := os.ReadFile(cfg.ServiceAccountPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read service account key: %w", err)
	}
	jwtCfg, err := google.JWTConfigFromJSON(key, bigQueryScope)
	if err != nil {
		return nil, fmt.Errorf("invalid service account key: %w", err)
	}
	return &collector{
		cfg:        cfg,
		httpClient: jwtCfg.Client(ctx),
	}, nil
}

func (c *collector) Provider() domain.Provider {
	return domain.ProviderGCP
}

type queryRequest struct {
	Query        string `json:"query"`
	UseLegacySQL bool   `json:"useLegacySQL"`
	TimeoutMs    int    `json:"timeoutMs,omitempty"`
}

type queryResponse struct {
	JobComplete bool `json:"jobComplete"`
	Rows        []struct {
		F []struct {
			V any `json:"v"`
		} `json:"f"`
	} `json:"rows"`
}

// Collect sums exported cost (net of credits) per project, service, and day.
func (c *collector) Collect(ctx context.Context, start, end time.Time) ([]domain.CostRecord, []domain.UtilizationSignal, error) {
	query := fmt.Sprintf(`
		SELECT
			project.id AS project_id,
			service.description AS service,
			DATE(usage_start_time) AS usage_date,
			SUM(cost) + SUM(IFNULL((SELECT SUM(c.amount) FROM UNNEST(credits) c), 0)) AS amount,
			SUM(usage.amount) AS usage_amount
		FROM %s
		WHERE DATE(usage_start_time) >= '%s' AND DATE(usage_start_time) < '%s'
		GROUP BY project_id, service, usage_date
		ORDER BY project_id, service, usage_date`,
		"`"+c.cfg.BillingTable+"`",
		start.UTC().Format(domain.DateLayout),
		end.UTC().Format(domain.DateLayout),
	)

	resp, err := c.runQuery(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	var records []domain.CostRecord
	for _, row := range resp.Rows {
		if len(row.F) < 4 {
			continue
		}
		day, err := time.Parse(domain.DateLayout, str(row.F[2].V))
		if err != nil {
			continue
		}
		amount, err := strconv.ParseFloat(str(row.F[3].V), 64)
		if err != nil || amount < 0 {
			continue
		}
		rec := domain.CostRecord{
			Provider:  domain.ProviderGCP,
			AccountID: str(row.F[0].V),
			Service:   str(row.F[1].V),
			Date:      day,
			Amount:    amount,
		}
		if len(row.F) > 4 {
			if qty, err := strconv.ParseFloat(str(row.F[4].V), 64); err == nil {
				rec.UsageQuantity = &qty
			}
		}
		records = append(records, rec)
	}

	// Utilization comes from the monitoring API, not billing export; the
	// idle detector handles its absence.
	return records, nil, nil
}

func (c *collector) runQuery(ctx context.Context, query string) (*queryResponse, error) {
	body, err := json.Marshal(queryRequest{
		Query:        query,
		UseLegacySQL: false,
		TimeoutMs:    60000,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}

	url := fmt.Sprintf("https://bigquery.googleapis.com/bigquery/v2/projects/%s/queries", c.cfg.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run billing export query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("billing export query failed: %d %s", resp.StatusCode, string(msg))
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode query response: %w", err)
	}
	if !out.JobComplete {
		return nil, fmt.Errorf("billing export query timed out")
	}
	return &out, nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
