package proximity

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	domain "github.com/oshokin/nearby-handshake/internal/domain/proximity"
)

const metricsNamespace = "nearby"

// Drop reasons used as the "reason" label of nearby_dropped_total.
const (
	dropMalformedPayload = "malformed_payload"
	dropTokenDecode      = "token_decode"
	dropUnknownPeer      = "unknown_peer_sample"
	dropInvalidDistance  = "invalid_distance"
	dropStaleToken       = "token_not_connected"
	dropStaleName        = "name_not_connected"
)

// Metrics holds the coordinator's Prometheus collectors.
type Metrics struct {
	events       *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	actionsFired prometheus.Counter
	sendFailures prometheus.Counter
	connected    prometheus.Gauge
	nearest      prometheus.Gauge
	stage        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Events processed by the coordinator, by kind.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_total",
			Help:      "Payloads and samples dropped by the coordinator, by reason.",
		}, []string{"reason"}),
		actionsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "actions_fired_total",
			Help:      "One-shot actions fired.",
		}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "send_failures_total",
			Help:      "Payloads the transport refused to send.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_peers",
			Help:      "Currently connected peers.",
		}),
		nearest: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "nearest_distance",
			Help:      "Nearest fresh distance, NaN when undefined.",
		}),
		stage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "debounce_stage",
			Help:      "Debounce stage: 0 out of range, 1 pending, 2 stable.",
		}),
	}

	m.nearest.Set(math.NaN())

	if reg == nil {
		return m, nil
	}

	err := multierr.Combine(
		reg.Register(m.events),
		reg.Register(m.dropped),
		reg.Register(m.actionsFired),
		reg.Register(m.sendFailures),
		reg.Register(m.connected),
		reg.Register(m.nearest),
		reg.Register(m.stage),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) observeEvent(ev Event) {
	m.events.WithLabelValues(ev.kind()).Inc()
}

func (m *Metrics) observeDrop(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeSnapshot(s *domain.Snapshot) {
	m.connected.Set(float64(s.ConnectedPeers))
	m.stage.Set(float64(s.Stage))

	if s.Nearest == nil {
		m.nearest.Set(math.NaN())
	} else {
		m.nearest.Set(*s.Nearest)
	}
}
