// Package metrics 暴露对话编排相关的 Prometheus 指标。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auto_advisor"

var (
	// TurnsTotal 按能力与检索策略统计的轮次数。
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Processed dialogue turns by capability and search strategy.",
	}, []string{"capability", "strategy"})

	// DegradedTurns 使用过任一兜底路径的轮次数。
	DegradedTurns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "degraded_turns_total",
		Help:      "Turns that completed through at least one fallback path.",
	})

	// OracleFallbacks 各组件回退到确定性逻辑的次数。
	OracleFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oracle_fallbacks_total",
		Help:      "Oracle failures recovered by a deterministic fallback, by component and reason.",
	}, []string{"component", "reason"})

	// RelaxationSteps 每次检索实际执行的放宽步数。
	RelaxationSteps = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "relaxation_steps",
		Help:      "Relaxation steps applied per search.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	})

	// MemoryWriteFailures 重试后仍失败的长期记忆写入次数。
	MemoryWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "memory_write_failures_total",
		Help:      "Memory records that could not be persisted after retry.",
	})

	// TurnLatency 单轮处理耗时（毫秒）。
	TurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_latency_ms",
		Help:      "End-to-end turn latency in milliseconds.",
		Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 20000},
	})
)

// ObserveTurn 记录一轮结束时的指标。
func ObserveTurn(capability, strategy string, degraded bool, d time.Duration) {
	if strategy == "" {
		strategy = "none"
	}
	TurnsTotal.WithLabelValues(capability, strategy).Inc()
	if degraded {
		DegradedTurns.Inc()
	}
	TurnLatency.Observe(float64(d.Milliseconds()))
}

// Handler 返回 /metrics 的 HTTP 处理器。
func Handler() http.Handler {
	return promhttp.Handler()
}
