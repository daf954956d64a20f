// Package metrics 暴露爬虫运行时的Prometheus指标
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	recordsFlushedTotal  *prometheus.CounterVec
	liveWorkers          *prometheus.GaugeVec
	workerRespawnsTotal  prometheus.Counter
	channelOutcomesTotal *prometheus.CounterVec
	retriesTotal         prometheus.Counter

	once sync.Once
)

// Init 注册所有指标,可重复调用
func Init() {
	once.Do(func() {
		recordsFlushedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytcrawl_records_flushed_total",
				Help: "Records moved from agent buffers into the run accumulator, labeled by mode.",
			},
			[]string{"mode"},
		)

		liveWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ytcrawl_live_workers",
				Help: "Workers currently registered in the roster, labeled by mode.",
			},
			[]string{"mode"},
		)

		workerRespawnsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ytcrawl_worker_respawns_total",
				Help: "Dead workers replaced by a fresh agent on the same task.",
			},
		)

		channelOutcomesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytcrawl_channel_outcomes_total",
				Help: "Terminal outcomes of channel tasks, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		retriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ytcrawl_retries_total",
				Help: "Failed attempts that were retried.",
			},
		)
	})
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFlush 记录汇总到累加器的记录数
func ObserveFlush(mode string, n int) {
	if n <= 0 {
		return
	}
	Init()
	recordsFlushedTotal.WithLabelValues(mode).Add(float64(n))
}

// SetLiveWorkers 设置当前worker数
func SetLiveWorkers(mode string, n int) {
	Init()
	liveWorkers.WithLabelValues(mode).Set(float64(n))
}

// ObserveRespawns 记录重启的worker数
func ObserveRespawns(n int) {
	if n <= 0 {
		return
	}
	Init()
	workerRespawnsTotal.Add(float64(n))
}

// ObserveChannelOutcome 记录频道任务的终态
func ObserveChannelOutcome(outcome string) {
	Init()
	channelOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRetry 记录一次重试
func ObserveRetry() {
	Init()
	retriesTotal.Inc()
}
