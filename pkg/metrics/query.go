package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// StageUsage is the aggregated usage for one stage across all sessions.
type StageUsage struct {
	Stage      string `json:"stage"`
	ModelCalls int64  `json:"model_calls"`
	Tokens     int64  `json:"tokens"`
}

// QueryService aggregates collector data back out of a Prometheus server,
// for the operator CLI's usage report.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{Address: prometheusURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// StageUsageReport returns per-stage model call and token totals.
func (q *QueryService) StageUsageReport(ctx context.Context) ([]StageUsage, error) {
	calls, err := q.sumByStage(ctx, "checkin_model_calls_total")
	if err != nil {
		return nil, err
	}
	tokens, err := q.sumByStage(ctx, "checkin_model_tokens_total")
	if err != nil {
		return nil, err
	}

	stages := make(map[string]*StageUsage)
	for stage, n := range calls {
		stages[stage] = &StageUsage{Stage: stage, ModelCalls: n}
	}
	for stage, n := range tokens {
		if usage, ok := stages[stage]; ok {
			usage.Tokens = n
		} else {
			stages[stage] = &StageUsage{Stage: stage, Tokens: n}
		}
	}

	out := make([]StageUsage, 0, len(stages))
	for _, usage := range stages {
		out = append(out, *usage)
	}
	return out, nil
}

func (q *QueryService) sumByStage(ctx context.Context, metric string) (map[string]int64, error) {
	query := fmt.Sprintf(`sum by (stage) (%s)`, metric)
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", metric, err)
	}
	sums := make(map[string]int64)
	if vector, ok := result.(model.Vector); ok {
		for _, sample := range vector {
			stage := string(sample.Metric["stage"])
			sums[stage] = int64(sample.Value)
		}
	}
	return sums, nil
}
