package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// TileFetchTotal 瓦片获取次数，按结果区分 (cache/fetched/error)
	TileFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "observatory",
		Subsystem: "tiles",
		Name:      "fetch_total",
		Help:      "Tile lookups served by the tile fetcher, labeled by result.",
	}, []string{"result"})

	// TileFetchDuration 单个瓦片下载耗时
	TileFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "observatory",
		Subsystem: "tiles",
		Name:      "fetch_duration_seconds",
		Help:      "Time to download a single tile from the remote tile host.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
	})

	// RenderDuration 视口渲染耗时
	RenderDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "observatory",
		Subsystem: "viewer",
		Name:      "render_duration_seconds",
		Help:      "Time to composite one viewport frame.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// AnalysisTotal 区域分析请求数，按结果区分 (success/error/rejected)
	AnalysisTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "observatory",
		Subsystem: "analysis",
		Name:      "requests_total",
		Help:      "Region analysis requests, labeled by outcome.",
	}, []string{"result"})

	// AnalysisDuration 区域分析耗时
	AnalysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "observatory",
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Time spent waiting for the remote vision model.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 60},
	})

	// ActiveSessions 当前websocket会话数
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "observatory",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Number of connected viewer sessions.",
	})
)

// Register 注册所有指标到默认registry，可重复调用
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			TileFetchTotal,
			TileFetchDuration,
			RenderDuration,
			AnalysisTotal,
			AnalysisDuration,
			ActiveSessions,
		)
	})
}
