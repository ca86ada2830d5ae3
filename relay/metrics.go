package relay

import "github.com/prometheus/client_golang/prometheus"

const namespace = "intake_relay"

// Reasons a frame is not delivered, used as the frames_dropped_total label.
const (
	DropNoRoom       = "no_room"
	DropNoSessionID  = "no_session_id"
	DropQueueFull    = "queue_full"
	DropUnknownEvent = "unknown_event"
	DropBadFrame     = "bad_frame"
)

// Metrics holds the relay's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	connections prometheus.Gauge
	rooms       prometheus.Gauge
	joins       prometheus.Counter
	forwarded   *prometheus.CounterVec
	dropped     *prometheus.CounterVec
}

// NewMetrics creates the relay collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of open WebSocket connections",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Number of rooms with at least one member",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Number of session:join requests handled",
		}),
		forwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_forwarded_total",
			Help:      "Number of frames delivered to room members",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Number of frames not delivered",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.connections, m.rooms, m.joins, m.forwarded, m.dropped)
	return m
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.connections.Dec()
	}
}

// Dropped counts a frame that was not delivered for reason.
func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) joined(rooms int) {
	if m != nil {
		m.joins.Inc()
		m.rooms.Set(float64(rooms))
	}
}

func (m *Metrics) setRooms(rooms int) {
	if m != nil {
		m.rooms.Set(float64(rooms))
	}
}

func (m *Metrics) forwardedFrame(event string) {
	if m != nil {
		m.forwarded.WithLabelValues(event).Inc()
	}
}
