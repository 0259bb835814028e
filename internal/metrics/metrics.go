package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DocumentsGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_documents_generated_total",
		Help: "Total number of generated renderer documents by mode",
	}, []string{"mode"})
	DocumentGenerateDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ingress_document_generate_duration_ms",
		Help:    "Document generation duration in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 50},
	})
	MarkersOmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingress_markers_omitted_total",
		Help: "Total number of portal markers omitted for invalid coordinates",
	})
	BridgeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_bridge_events_total",
		Help: "Bridge events by name and whether they changed state",
	}, []string{"event", "applied"})
	BridgePhaseTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_bridge_phase_total",
		Help: "Bridge state transitions by resulting phase",
	}, []string{"phase"})
	BridgeFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_bridge_failures_total",
		Help: "Classified renderer failures by kind",
	}, []string{"kind"})
	StaleEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingress_bridge_stale_events_total",
		Help: "Events discarded because their generation was superseded",
	})
	UnrecognizedMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingress_bridge_unrecognized_messages_total",
		Help: "Renderer messages that did not decode to a known envelope",
	})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingress_sessions_active",
		Help: "Number of live bridge sessions",
	})
	DocStoreHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_docstore_hits_total",
		Help: "Document store hits by backend",
	}, []string{"store"})
	DocStoreMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_docstore_misses_total",
		Help: "Document store misses by backend",
	}, []string{"store"})
	AMapRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_amap_requests_total",
		Help: "Total amap requests by endpoint",
	}, []string{"endpoint"})
	AMapFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_amap_fail_total",
		Help: "Total amap failures by endpoint",
	}, []string{"endpoint"})
	ProviderHealthy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingress_provider_key_healthy",
		Help: "1 when the last provider credential probe succeeded",
	})
	ProviderChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ingress_provider_checks_total",
		Help: "Provider credential probes by result",
	}, []string{"result"})
	AMapDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ingress_amap_duration_ms",
		Help:    "AMap call duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"endpoint"})
)

func init() {
	prometheus.MustRegister(DocumentsGeneratedTotal)
	prometheus.MustRegister(DocumentGenerateDurationMs)
	prometheus.MustRegister(MarkersOmittedTotal)
	prometheus.MustRegister(BridgeEventsTotal)
	prometheus.MustRegister(BridgePhaseTotal)
	prometheus.MustRegister(BridgeFailuresTotal)
	prometheus.MustRegister(StaleEventsTotal)
	prometheus.MustRegister(UnrecognizedMessagesTotal)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(DocStoreHitsTotal)
	prometheus.MustRegister(DocStoreMissesTotal)
	prometheus.MustRegister(AMapRequestsTotal)
	prometheus.MustRegister(AMapFailTotal)
	prometheus.MustRegister(AMapDurationMs)
	prometheus.MustRegister(ProviderHealthy)
	prometheus.MustRegister(ProviderChecksTotal)
}

// 文档注释：返回 Prometheus 指标监听器
// 背景：统一暴露注册指标到 /metrics 路径；在主入口挂载。
func Handler() http.Handler { return promhttp.Handler() }
