// Package metrics holds the Prometheus instruments shared by the worker
// runtime, the LLM pipeline and the Matrix client, plus the queue depth
// collector scraped from the jobs table.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/medops-br/triagebot/pkg/llm"
	"github.com/medops-br/triagebot/pkg/models"
)

// Outcome label values shared across counters.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeDead    = "dead"
	OutcomeError   = "error"
)

// Metrics bundles every instrument on one registry.
type Metrics struct {
	Registry *prometheus.Registry

	JobsProcessed  *prometheus.CounterVec
	JobsInflight   prometheus.Gauge
	JobDuration    *prometheus.HistogramVec
	LlmRequests    *prometheus.CounterVec
	LlmDuration    *prometheus.HistogramVec
	MatrixRequests *prometheus.CounterVec
}

// New creates the registry with every triagebot instrument plus the
// standard Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry: registry,
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagebot_jobs_processed_total",
			Help: "Jobs handled by the worker runtime, by type and outcome.",
		}, []string{"job_type", "outcome"}),
		JobsInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "triagebot_jobs_inflight",
			Help: "Jobs currently executing in this process.",
		}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triagebot_job_duration_seconds",
			Help:    "Handler wall time per job type.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"job_type"}),
		LlmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagebot_llm_requests_total",
			Help: "LLM completion calls, by pipeline stage and outcome.",
		}, []string{"stage", "outcome"}),
		LlmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triagebot_llm_duration_seconds",
			Help:    "LLM completion latency per pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"stage"}),
		MatrixRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triagebot_matrix_requests_total",
			Help: "Matrix client-server API calls, by operation and outcome.",
		}, []string{"operation", "outcome"}),
	}
	registry.MustRegister(
		m.JobsProcessed, m.JobsInflight, m.JobDuration,
		m.LlmRequests, m.LlmDuration, m.MatrixRequests,
	)
	return m
}

// ObserveMatrix is the hook installed on the Matrix client.
func (m *Metrics) ObserveMatrix(operation, outcome string) {
	m.MatrixRequests.WithLabelValues(operation, outcome).Inc()
}

// WrapLLM instruments a completion client with per-stage counters and
// latency histograms.
func (m *Metrics) WrapLLM(client llm.Client) llm.Client {
	return &instrumentedLLM{inner: client, metrics: m}
}

type instrumentedLLM struct {
	inner   llm.Client
	metrics *Metrics
}

func (c *instrumentedLLM) Complete(ctx context.Context, in llm.CompletionInput) (llm.CompletionResult, error) {
	start := time.Now()
	result, err := c.inner.Complete(ctx, in)
	stage := string(in.Stage)
	c.metrics.LlmDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	c.metrics.LlmRequests.WithLabelValues(stage, outcome).Inc()
	return result, err
}

// QueueCounter is the slice of the job queue the depth collector reads.
type QueueCounter interface {
	CountByStatus(ctx context.Context) (map[models.JobStatus]int64, error)
}

// queueDepthCollector exports triagebot_queue_depth{status} computed on
// scrape from the jobs table.
type queueDepthCollector struct {
	queue QueueCounter
	desc  *prometheus.Desc
}

// RegisterQueueDepth attaches the queue depth gauge to the registry.
func (m *Metrics) RegisterQueueDepth(queue QueueCounter) {
	m.Registry.MustRegister(&queueDepthCollector{
		queue: queue,
		desc: prometheus.NewDesc(
			"triagebot_queue_depth",
			"Jobs per status, read from the database on scrape.",
			[]string{"status"}, nil,
		),
	})
}

func (c *queueDepthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *queueDepthCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	counts, err := c.queue.CountByStatus(ctx)
	if err != nil {
		return
	}
	for status, count := range counts {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(count), string(status))
	}
}
