package triage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/pulse/internal/signal"
)

// ServiceHooks are optional callbacks fired by the Service. Nil fields are skipped.
type ServiceHooks struct {
	OnSubmit     func(result string)
	OnClassified func(decision DecisionType, tier UrgencyTier, risk RiskLevel)
	OnGrouped    func(judgment, exceptions, informational int)
	OnTransition func(from, to signal.Status)
	OnSuggest    func(duration float64, err error)
	OnNotify     func(err error)
}

func (h ServiceHooks) submit(result string) {
	if h.OnSubmit != nil {
		h.OnSubmit(result)
	}
}

func (h ServiceHooks) classified(cs *ClassifiedSignal) {
	if h.OnClassified != nil {
		h.OnClassified(cs.DecisionType, cs.UrgencyTier, cs.RiskLevel)
	}
}

func (h ServiceHooks) grouped(l *DecisionLayers) {
	if h.OnGrouped != nil {
		h.OnGrouped(len(l.Judgment), len(l.Exceptions), len(l.Informational))
	}
}

func (h ServiceHooks) transition(from, to signal.Status) {
	if h.OnTransition != nil {
		h.OnTransition(from, to)
	}
}

func (h ServiceHooks) suggest(duration float64, err error) {
	if h.OnSuggest != nil {
		h.OnSuggest(duration, err)
	}
}

func (h ServiceHooks) notify(err error) {
	if h.OnNotify != nil {
		h.OnNotify(err)
	}
}

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	SubmitsTotal      *prometheus.CounterVec
	ClassifiedTotal   *prometheus.CounterVec
	LayerSize         *prometheus.GaugeVec
	TransitionsTotal  *prometheus.CounterVec
	SuggestCallsTotal *prometheus.CounterVec
	SuggestDuration   prometheus.Histogram
	NotifyTotal       *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_signal_submits_total",
			Help: "Total signal submissions by result.",
		}, []string{"result"}),
		ClassifiedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_signals_classified_total",
			Help: "Newly submitted signals by decision type, urgency tier and risk level.",
		}, []string{"decision_type", "urgency_tier", "risk_level"}),
		LayerSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pulse_decision_layer_size",
			Help: "Number of signals in each decision layer at the last grouping.",
		}, []string{"layer"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_signal_transitions_total",
			Help: "Signal status transitions.",
		}, []string{"from", "to"}),
		SuggestCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_suggest_calls_total",
			Help: "Suggester calls by status.",
		}, []string{"status"}),
		SuggestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_suggest_duration_seconds",
			Help:    "Duration of suggester calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 0.25s .. ~32s
		}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_notifications_total",
			Help: "Notification dispatches by status.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		m.SubmitsTotal,
		m.ClassifiedTotal,
		m.LayerSize,
		m.TransitionsTotal,
		m.SuggestCallsTotal,
		m.SuggestDuration,
		m.NotifyTotal,
	)

	return m
}

// Hooks returns ServiceHooks that update the corresponding metrics.
func (m *Metrics) Hooks() ServiceHooks {
	return ServiceHooks{
		OnSubmit: func(result string) {
			m.SubmitsTotal.WithLabelValues(result).Inc()
		},
		OnClassified: func(decision DecisionType, tier UrgencyTier, risk RiskLevel) {
			m.ClassifiedTotal.WithLabelValues(string(decision), string(tier), string(risk)).Inc()
		},
		OnGrouped: func(judgment, exceptions, informational int) {
			m.LayerSize.WithLabelValues(string(LayerJudgment)).Set(float64(judgment))
			m.LayerSize.WithLabelValues(string(LayerExceptions)).Set(float64(exceptions))
			m.LayerSize.WithLabelValues(string(LayerInformational)).Set(float64(informational))
		},
		OnTransition: func(from, to signal.Status) {
			m.TransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
		},
		OnSuggest: func(duration float64, err error) {
			m.SuggestCallsTotal.WithLabelValues(status(err)).Inc()
			m.SuggestDuration.Observe(duration)
		},
		OnNotify: func(err error) {
			m.NotifyTotal.WithLabelValues(status(err)).Inc()
		},
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
