package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dappbridge/walletd/internal/common/config"
)

type Metrics struct {
	registry     *prometheus.Registry
	namespace    string
	httpReqCnt   *prometheus.CounterVec
	httpDur      *prometheus.HistogramVec
	httpInfl     *prometheus.GaugeVec
	sessions     *prometheus.GaugeVec
	proposalCnt  *prometheus.CounterVec
	actionsInfl  prometheus.Gauge
	resolveCnt   *prometheus.CounterVec
	resolveDur   *prometheus.HistogramVec
	transportErr *prometheus.CounterVec
}

func New(cfg config.MetricsConfig) *Metrics {
	ns := cfg.Namespace
	r := prometheus.NewRegistry()
	// Register standard process and Go collectors
	r.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	r.MustRegister(collectors.NewGoCollector())

	// Basic HTTP metrics for the admin surface
	httpReqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total"}, []string{"method", "route", "status"})
	httpDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "http_request_duration_seconds", Buckets: cfg.Buckets}, []string{"method", "route", "status"})
	httpInfl := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "http_requests_inflight"}, []string{"route"})
	r.MustRegister(httpReqCnt, httpDur, httpInfl)

	sessions := prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: ns, Name: "sessions"}, []string{"status"})
	proposalCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "session_proposals_total"}, []string{"outcome"})
	r.MustRegister(sessions, proposalCnt)

	actionsInfl := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "pending_actions"})
	resolveCnt := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "action_resolutions_total"}, []string{"kind", "decision"})
	resolveDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: ns, Name: "action_resolution_duration_seconds", Buckets: cfg.Buckets}, []string{"kind"})
	transportErr := prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: ns, Name: "transport_send_failures_total"}, []string{"frame"})
	r.MustRegister(actionsInfl, resolveCnt, resolveDur, transportErr)

	return &Metrics{
		registry:     r,
		namespace:    ns,
		httpReqCnt:   httpReqCnt,
		httpDur:      httpDur,
		httpInfl:     httpInfl,
		sessions:     sessions,
		proposalCnt:  proposalCnt,
		actionsInfl:  actionsInfl,
		resolveCnt:   resolveCnt,
		resolveDur:   resolveDur,
		transportErr: transportErr,
	}
}

// SetSessions records the current number of sessions in a lifecycle state.
func (m *Metrics) SetSessions(status string, n int) {
	m.sessions.WithLabelValues(status).Set(float64(n))
}

// ProposalOutcome counts a proposal reaching a terminal outcome
// (approved, rejected, timeout, unsupported).
func (m *Metrics) ProposalOutcome(outcome string) {
	m.proposalCnt.WithLabelValues(outcome).Inc()
}

// SetPendingActions records the current queue depth.
func (m *Metrics) SetPendingActions(n int) {
	m.actionsInfl.Set(float64(n))
}

// ActionResolved counts one resolution and its time in queue.
func (m *Metrics) ActionResolved(kind, decision string, arrivedAt time.Time) {
	m.resolveCnt.WithLabelValues(kind, decision).Inc()
	m.resolveDur.WithLabelValues(kind).Observe(time.Since(arrivedAt).Seconds())
}

// TransportSendFailed counts a failed outbound frame by frame type.
func (m *Metrics) TransportSendFailed(frame string) {
	m.transportErr.WithLabelValues(frame).Inc()
}

func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		m.httpInfl.WithLabelValues(route).Inc()
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		m.httpReqCnt.WithLabelValues(c.Request.Method, route, status).Inc()
		m.httpDur.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		m.httpInfl.WithLabelValues(route).Dec()
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
