package oplog

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/maxpoletaev/ringkv/membership"
)

const namespace = "ringkv"

// Metrics counts events with prometheus counters.
type Metrics struct {
	operations *prometheus.CounterVec
	added      prometheus.Counter
	removed    prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of key/value operations.",
			},
			[]string{"kind", "role", "status"},
		),
		added: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "members_added_total",
				Help:      "Total number of members added to the membership table.",
			},
		),
		removed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "members_removed_total",
				Help:      "Total number of members removed from the membership table.",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.operations, m.added, m.removed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) NodeAdded(_, _ membership.PeerID) {
	m.added.Inc()
}

func (m *Metrics) NodeRemoved(_, _ membership.PeerID) {
	m.removed.Inc()
}

func (m *Metrics) Operation(_ membership.PeerID, op Op) {
	m.operations.WithLabelValues(op.Kind.String(), role(op), status(op)).Inc()
}
