// Package metrics exposes the chat engine's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Award failure kinds.
const (
	FailurePersist = "persist"
	FailureTier    = "tier"
	FailureNotify  = "notify"
)

// Metrics groups all collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	wsConnections    prometheus.Gauge
	roomsActive      prometheus.Gauge
	roomJoins        prometheus.Counter
	sessionEvictions prometheus.Counter
	chatMessages     prometheus.Counter
	giftsSent        prometheus.Counter
	pointsAwarded    prometheus.Counter
	awardFailures    *prometheus.CounterVec
	framesDropped    prometheus.Counter
	levelUps         prometheus.Counter
}

// New registers collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "astrotv_ws_connections",
			Help: "Number of open websocket connections",
		}),
		roomsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "astrotv_rooms_active",
			Help: "Number of rooms with at least one member",
		}),
		roomJoins: f.NewCounter(prometheus.CounterOpts{
			Name: "astrotv_room_joins_total",
			Help: "Total number of successful room joins",
		}),
		sessionEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "astrotv_session_evictions_total",
			Help: "Total number of connections replaced by a newer session of the same user",
		}),
		chatMessages: f.NewCounter(prometheus.CounterOpts{
			Name: "astrotv_chat_messages_total",
			Help: "Total number of persisted chat messages",
		}),
		giftsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "astrotv_gifts_sent_total",
			Help: "Total number of gifts sent",
		}),
		pointsAwarded: f.NewCounter(prometheus.CounterOpts{
			Name: "astrotv_points_awarded_total",
			Help: "Total loyalty points awarded",
		}),
		awardFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "astrotv_award_failures_total",
			Help: "Point award failures by stage",
		}, []string{"kind"}),
		framesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "astrotv_frames_dropped_total",
			Help: "Outbound frames dropped for closed or slow connections",
		}),
		levelUps: f.NewCounter(prometheus.CounterOpts{
			Name: "astrotv_level_ups_total",
			Help: "Total number of loyalty tier promotions",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.wsConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.wsConnections.Dec()
	}
}

func (m *Metrics) RoomOpened() {
	if m != nil {
		m.roomsActive.Inc()
	}
}

func (m *Metrics) RoomClosed() {
	if m != nil {
		m.roomsActive.Dec()
	}
}

func (m *Metrics) RoomJoined() {
	if m != nil {
		m.roomJoins.Inc()
	}
}

func (m *Metrics) SessionEvicted() {
	if m != nil {
		m.sessionEvictions.Inc()
	}
}

func (m *Metrics) ChatMessage() {
	if m != nil {
		m.chatMessages.Inc()
	}
}

func (m *Metrics) GiftSent() {
	if m != nil {
		m.giftsSent.Inc()
	}
}

func (m *Metrics) PointsAwarded(n int64) {
	if m != nil && n > 0 {
		m.pointsAwarded.Add(float64(n))
	}
}

func (m *Metrics) AwardFailed(kind string) {
	if m != nil {
		m.awardFailures.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) FrameDropped() {
	if m != nil {
		m.framesDropped.Inc()
	}
}

func (m *Metrics) LevelUp() {
	if m != nil {
		m.levelUps.Inc()
	}
}
