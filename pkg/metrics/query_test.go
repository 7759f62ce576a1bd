package metrics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type vectorSample struct {
	stage string
	value float64
}

// mockPrometheus answers /api/v1/query with canned vectors selected by
// substring match on the PromQL expression.
func mockPrometheus(t *testing.T, answers map[string][]vectorSample) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/v1/query") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		require.NoError(t, r.ParseForm())
		query := r.FormValue("query")

		var samples []vectorSample
		for needle, s := range answers {
			if strings.Contains(query, needle) {
				samples = s
				break
			}
		}

		results := make([]string, 0, len(samples))
		ts := time.Now().Unix()
		for _, s := range samples {
			metric := "{}"
			if s.stage != "" {
				metric = fmt.Sprintf(`{"stage":%q}`, s.stage)
			}
			results = append(results, fmt.Sprintf(`{"metric":%s,"value":[%d,"%v"]}`, metric, ts, s.value))
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[%s]}}`,
			strings.Join(results, ","))
	}))
}

func TestGetAnalysisMetrics(t *testing.T) {
	srv := mockPrometheus(t, map[string][]vectorSample{
		`type="prompt"`:     {{value: 1200}},
		`type="completion"`: {{value: 800}},
		"llm_costs_total":   {{value: 0.075}},
	})
	defer srv.Close()

	svc, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	m, err := svc.GetAnalysisMetrics(context.Background(), "analysis-1")
	require.NoError(t, err)
	assert.Equal(t, "analysis-1", m.AnalysisID)
	assert.Equal(t, int64(1200), m.PromptTokens)
	assert.Equal(t, int64(800), m.CompletionTokens)
	assert.Equal(t, int64(2000), m.TotalTokens)
	assert.Equal(t, 0.075, m.TotalCost)
}

func TestGetAnalysisMetricsEmptyVector(t *testing.T) {
	srv := mockPrometheus(t, nil)
	defer srv.Close()

	svc, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	m, err := svc.GetAnalysisMetrics(context.Background(), "unseen")
	require.NoError(t, err)
	assert.Zero(t, m.TotalTokens)
	assert.Zero(t, m.TotalCost)
}

func TestGetAnalysisMetricsByStage(t *testing.T) {
	srv := mockPrometheus(t, map[string][]vectorSample{
		`type="prompt"`:     {{stage: "vision", value: 900}, {stage: "synthesis", value: 2100}},
		`type="completion"`: {{stage: "vision", value: 300}, {stage: "synthesis", value: 700}},
		"llm_costs_total":   {{stage: "vision", value: 0.02}, {stage: "synthesis", value: 0.05}},
	})
	defer srv.Close()

	svc, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	byStage, err := svc.GetAnalysisMetricsByStage(context.Background(), "analysis-1")
	require.NoError(t, err)
	require.Contains(t, byStage, "vision")
	require.Contains(t, byStage, "synthesis")

	assert.Equal(t, int64(1200), byStage["vision"].TotalTokens)
	assert.Equal(t, 0.02, byStage["vision"].TotalCost)
	assert.Equal(t, int64(2800), byStage["synthesis"].TotalTokens)
	assert.Equal(t, 0.05, byStage["synthesis"].TotalCost)
}

func TestQueryErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc, err := NewQueryService(srv.URL)
	require.NoError(t, err)

	_, err = svc.GetAnalysisMetrics(context.Background(), "analysis-1")
	require.Error(t, err)
}
