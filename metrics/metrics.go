package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "governance"

// Metrics holds the governance collectors. A nil *Metrics records nothing.
type Metrics struct {
	Registrations    *prometheus.CounterVec
	RegistrationFail *prometheus.CounterVec
	Signals          *prometheus.CounterVec
	SignalRejects    *prometheus.CounterVec
	VetoTriggers     *prometheus.CounterVec
	VetoResolutions  *prometheus.CounterVec
	Evaluations      prometheus.Counter
	WeightRecalcs    prometheus.Counter
	SweepRuns        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "registrations_total",
			Help: "Economic nodes registered, by node type.",
		}, []string{"node_type"}),
		RegistrationFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "registration_failures_total",
			Help: "Rejected registrations, by error kind.",
		}, []string{"kind"}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signals_total",
			Help: "Veto signals accepted, by signal type.",
		}, []string{"signal_type"}),
		SignalRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "signal_rejections_total",
			Help: "Veto signals rejected, by error kind.",
		}, []string{"kind"}),
		VetoTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "veto_triggers_total",
			Help: "Vetoes that entered their review period, by tier.",
		}, []string{"tier"}),
		VetoResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "veto_resolutions_total",
			Help: "Resolved vetoes, by resolution path.",
		}, []string{"path"}),
		Evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "threshold_evaluations_total",
			Help: "Veto threshold evaluations.",
		}),
		WeightRecalcs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "weight_recalculations_total",
			Help: "Batch weight recalculation passes.",
		}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sweep_runs_total",
			Help: "Periodic sweep passes, by outcome.",
		}, []string{"outcome"}),
	}
	for _, c := range []prometheus.Collector{
		m.Registrations, m.RegistrationFail, m.Signals, m.SignalRejects,
		m.VetoTriggers, m.VetoResolutions, m.Evaluations, m.WeightRecalcs, m.SweepRuns,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Registered(nodeType string) {
	if m != nil {
		m.Registrations.WithLabelValues(nodeType).Inc()
	}
}

func (m *Metrics) RegistrationFailed(kind string) {
	if m != nil {
		m.RegistrationFail.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) SignalAccepted(signalType string) {
	if m != nil {
		m.Signals.WithLabelValues(signalType).Inc()
	}
}

func (m *Metrics) SignalRejected(kind string) {
	if m != nil {
		m.SignalRejects.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) VetoTriggered(tier string) {
	if m != nil {
		m.VetoTriggers.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) VetoResolved(path string) {
	if m != nil {
		m.VetoResolutions.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) Evaluated() {
	if m != nil {
		m.Evaluations.Inc()
	}
}

func (m *Metrics) WeightsRecalculated() {
	if m != nil {
		m.WeightRecalcs.Inc()
	}
}

func (m *Metrics) Swept(outcome string) {
	if m != nil {
		m.SweepRuns.WithLabelValues(outcome).Inc()
	}
}
