package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fwdctl"

// Failure reasons used as the "reason" label.
const (
	ReasonSpawn = "spawn"
	ReasonExit  = "exit"
)

// Metrics groups the supervisor's Prometheus instruments. A nil *Metrics is
// valid and records nothing, which keeps callers free of nil checks.
type Metrics struct {
	starts        prometheus.Counter
	restarts      prometheus.Counter
	failures      *prometheus.CounterVec
	liveProcesses prometheus.Gauge
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		starts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_starts_total",
			Help:      "kubectl port-forward processes successfully launched.",
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_restarts_total",
			Help:      "Automatic restarts after a lost connection to the pod.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forward_failures_total",
			Help:      "Forwards marked failed, by reason.",
		}, []string{"reason"}),
		liveProcesses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_processes",
			Help:      "Process handles currently held for shutdown.",
		}),
	}

	for _, c := range []prometheus.Collector{m.starts, m.restarts, m.failures, m.liveProcesses} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ForwardStarted() {
	if m == nil {
		return
	}
	m.starts.Inc()
}

func (m *Metrics) ForwardRestarted() {
	if m == nil {
		return
	}
	m.restarts.Inc()
}

func (m *Metrics) ForwardFailed(reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetLiveProcesses(n int) {
	if m == nil {
		return
	}
	m.liveProcesses.Set(float64(n))
}
