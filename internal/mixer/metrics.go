package mixer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains Prometheus metrics for mixer operations. A nil *Metrics records nothing.
type Metrics struct {
	channels          prometheus.Gauge
	connectedChannels prometheus.Gauge
	masterVolume      prometheus.Gauge
	operations        *prometheus.CounterVec
	notifications     prometheus.Counter
	connectFailures   prometheus.Counter

	collectors []prometheus.Collector
}

// NewMetrics creates and registers new mixer metrics
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.channels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mixer_channels",
		Help: "Number of registered channels",
	})
	m.connectedChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mixer_connected_channels",
		Help: "Number of channels with a live routing chain",
	})
	m.masterVolume = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mixer_master_volume",
		Help: "Stored master volume",
	})
	m.operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mixer_operations_total",
			Help: "Total number of successful mutating operations",
		},
		[]string{"op"},
	)
	m.notifications = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mixer_notifications_total",
		Help: "Total number of snapshots published",
	})
	m.connectFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mixer_connect_failures_total",
		Help: "Total number of failed ConnectMediaElement calls",
	})

	m.collectors = []prometheus.Collector{
		m.channels,
		m.connectedChannels,
		m.masterVolume,
		m.operations,
		m.notifications,
		m.connectFailures,
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

func (m *Metrics) recordMutation(op string, s State, connected int, published bool) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op).Inc()
	m.channels.Set(float64(len(s.Channels)))
	m.connectedChannels.Set(float64(connected))
	m.masterVolume.Set(s.MasterVolume)
	if published {
		m.notifications.Inc()
	}
}

func (m *Metrics) recordConnectFailure() {
	if m == nil {
		return
	}
	m.connectFailures.Inc()
}
