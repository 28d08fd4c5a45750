//go:build !noprom

package metrics

import (
	"fmt"
	"net/http"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

type promRecorder struct {
	dbTotal         *prom.CounterVec
	dbSeconds       *prom.HistogramVec
	toolTotal       *prom.CounterVec
	toolSeconds     *prom.HistogramVec
	stmtCache       *prom.CounterVec
	poolInUse       prom.Gauge
	poolIdle        prom.Gauge
	providerTotal   *prom.CounterVec
	providerSeconds *prom.HistogramVec
	stageSeconds    *prom.HistogramVec
	cotTasks        *prom.CounterVec
	contextChars    prom.Histogram
	truncations     prom.Counter
}

func (p *promRecorder) IncDBOpTotal(op string, success bool) {
	p.dbTotal.WithLabelValues(op, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveDBOpSeconds(op string, success bool, seconds float64) {
	p.dbSeconds.WithLabelValues(op, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) IncToolTotal(tool string, success bool) {
	p.toolTotal.WithLabelValues(tool, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveToolSeconds(tool string, success bool, seconds float64) {
	p.toolSeconds.WithLabelValues(tool, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) IncStmtCacheHit(kind string) {
	p.stmtCache.WithLabelValues(kind, "hit").Inc()
}

func (p *promRecorder) IncStmtCacheMiss(kind string) {
	p.stmtCache.WithLabelValues(kind, "miss").Inc()
}

func (p *promRecorder) ObservePoolStats(inUse, idle int) {
	p.poolInUse.Set(float64(inUse))
	p.poolIdle.Set(float64(idle))
}

func (p *promRecorder) IncProviderTotal(kind, provider string, success bool) {
	p.providerTotal.WithLabelValues(kind, provider, fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveProviderSeconds(kind, provider string, success bool, seconds float64) {
	p.providerSeconds.WithLabelValues(kind, provider, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) ObserveStageSeconds(stage string, success bool, seconds float64) {
	p.stageSeconds.WithLabelValues(stage, fmt.Sprintf("%t", success)).Observe(seconds)
}

func (p *promRecorder) IncCoTTask(success bool) {
	p.cotTasks.WithLabelValues(fmt.Sprintf("%t", success)).Inc()
}

func (p *promRecorder) ObserveContextChars(chars int, truncated bool) {
	p.contextChars.Observe(float64(chars))
	if truncated {
		p.truncations.Inc()
	}
}

func newPromRecorder() *promRecorder {
	return &promRecorder{
		dbTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "db_ops_total",
			Help: "Total number of DB operations",
		}, []string{"op", "success"}),
		dbSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "db_op_seconds",
			Help:    "DB operation duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"op", "success"}),
		toolTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "tool_calls_total",
			Help: "Total number of tool handler calls",
		}, []string{"tool", "success"}),
		toolSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "tool_call_seconds",
			Help:    "Tool handler duration in seconds",
			Buckets: prom.DefBuckets,
		}, []string{"tool", "success"}),
		stmtCache: prom.NewCounterVec(prom.CounterOpts{
			Name: "stmt_cache_total",
			Help: "Prepared statement cache lookups",
		}, []string{"kind", "result"}),
		poolInUse: prom.NewGauge(prom.GaugeOpts{
			Name: "db_pool_in_use",
			Help: "Open connections currently in use",
		}),
		poolIdle: prom.NewGauge(prom.GaugeOpts{
			Name: "db_pool_idle",
			Help: "Idle connections in the pool",
		}),
		providerTotal: prom.NewCounterVec(prom.CounterOpts{
			Name: "provider_calls_total",
			Help: "Total number of embeddings/LLM provider calls",
		}, []string{"kind", "provider", "success"}),
		providerSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "provider_call_seconds",
			Help:    "Provider call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind", "provider", "success"}),
		stageSeconds: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "ask_stage_seconds",
			Help:    "Query pipeline stage duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"stage", "success"}),
		cotTasks: prom.NewCounterVec(prom.CounterOpts{
			Name: "cot_tasks_total",
			Help: "Chain-of-thought sub-question tasks by outcome",
		}, []string{"success"}),
		contextChars: prom.NewHistogram(prom.HistogramOpts{
			Name:    "context_chars",
			Help:    "Assembled prompt length in characters",
			Buckets: prom.ExponentialBuckets(1000, 2, 10),
		}),
		truncations: prom.NewCounter(prom.CounterOpts{
			Name: "context_truncations_total",
			Help: "Assembled prompts cut at the context budget",
		}),
	}
}

func (p *promRecorder) collectors() []prom.Collector {
	return []prom.Collector{
		p.dbTotal, p.dbSeconds, p.toolTotal, p.toolSeconds, p.stmtCache,
		p.poolInUse, p.poolIdle, p.providerTotal, p.providerSeconds,
		p.stageSeconds, p.cotTasks, p.contextChars, p.truncations,
	}
}

var promOnce sync.Once

func enablePrometheus(addr string) error {
	promOnce.Do(func() {
		registry := prom.NewRegistry()
		p := newPromRecorder()
		registry.MustRegister(p.collectors()...)
		SetRecorder(p)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		go func() { _ = http.ListenAndServe(addr, mux) }()
	})
	return nil
}
