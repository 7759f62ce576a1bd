// Package metrics provides services for querying and aggregating metrics data.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// AnalysisMetrics represents aggregated LLM usage for one analysis run.
type AnalysisMetrics struct {
	AnalysisID       string  `json:"analysis_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService provides methods to query metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetAnalysisMetrics retrieves aggregated token and cost metrics for a single
// analysis, summed across the vision call, all swarm workers, and synthesis.
func (q *QueryService) GetAnalysisMetrics(ctx context.Context, analysisID string) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{
		AnalysisID: analysisID,
	}

	promptQuery := fmt.Sprintf(`sum(llm_tokens_total{analysis_id=%q, type="prompt"})`, analysisID)
	v, err := q.scalar(ctx, promptQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	m.PromptTokens = int64(v)

	completionQuery := fmt.Sprintf(`sum(llm_tokens_total{analysis_id=%q, type="completion"})`, analysisID)
	v, err = q.scalar(ctx, completionQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	m.CompletionTokens = int64(v)
	m.TotalTokens = m.PromptTokens + m.CompletionTokens

	costQuery := fmt.Sprintf(`sum(llm_costs_total{analysis_id=%q})`, analysisID)
	cost, err := q.scalar(ctx, costQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	m.TotalCost = cost

	return m, nil
}

// GetAnalysisMetricsByStage breaks usage down by pipeline stage so the
// dashboard can show where tokens went.
func (q *QueryService) GetAnalysisMetricsByStage(ctx context.Context, analysisID string) (map[string]*AnalysisMetrics, error) {
	result := make(map[string]*AnalysisMetrics)

	for _, tokenType := range []string{"prompt", "completion"} {
		query := fmt.Sprintf(`sum by (stage) (llm_tokens_total{analysis_id=%q, type=%q})`, analysisID, tokenType)
		res, _, err := q.queryAPI.Query(ctx, query, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query %s tokens by stage: %w", tokenType, err)
		}

		vector, ok := res.(model.Vector)
		if !ok {
			continue
		}
		for _, sample := range vector {
			stage := string(sample.Metric["stage"])
			entry, exists := result[stage]
			if !exists {
				entry = &AnalysisMetrics{AnalysisID: analysisID}
				result[stage] = entry
			}
			if tokenType == "prompt" {
				entry.PromptTokens = int64(sample.Value)
			} else {
				entry.CompletionTokens = int64(sample.Value)
			}
			entry.TotalTokens = entry.PromptTokens + entry.CompletionTokens
		}
	}

	costQuery := fmt.Sprintf(`sum by (stage) (llm_costs_total{analysis_id=%q})`, analysisID)
	res, _, err := q.queryAPI.Query(ctx, costQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query costs by stage: %w", err)
	}
	if vector, ok := res.(model.Vector); ok {
		for _, sample := range vector {
			stage := string(sample.Metric["stage"])
			if entry, exists := result[stage]; exists {
				entry.TotalCost = float64(sample.Value)
			}
		}
	}

	return result, nil
}

func (q *QueryService) scalar(ctx context.Context, query string) (float64, error) {
	res, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}
	if vector, ok := res.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}
