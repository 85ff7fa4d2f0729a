package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		pipelineStageLatencyMs,
		pipelineRuns,
		aiPromptTokens,
	)
}

var (
	pipelineStageLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_latency_ms",
			Help:    "Latency distribution per generation stage in milliseconds.",
			Buckets: []float64{25, 50, 100, 200, 400, 800, 1600, 3000, 5000, 10000, 30000},
		},
		[]string{"stage", "success"},
	)

	pipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Pipeline runs by outcome (full/degraded/failed).",
		},
		[]string{"outcome"},
	)

	aiPromptTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_prompt_tokens_total",
			Help: "Best-effort sum of prompt tokens sent per model.",
		},
		[]string{"model"},
	)
)

// ObserveStage records one generation stage (text/summarize/image/transcribe).
func ObserveStage(stage string, latencyMs int64, success bool) {
	pipelineStageLatencyMs.WithLabelValues(norm(stage), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}

func PipelineOutcome(outcome string) {
	pipelineRuns.WithLabelValues(norm(outcome)).Inc()
}

func AddPromptTokens(model string, n int) {
	if n > 0 {
		aiPromptTokens.WithLabelValues(norm(model)).Add(float64(n))
	}
}
