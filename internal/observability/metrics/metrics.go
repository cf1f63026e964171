package metrics

import "github.com/prometheus/client_golang/prometheus"

// AgentMetrics exposes counters/histograms for the conversational agent.
// All observe methods are nil-safe so callers can run without metrics.
type AgentMetrics struct {
	inboundTotal      *prometheus.CounterVec
	outboundTotal     *prometheus.CounterVec
	reservationsTotal *prometheus.CounterVec
	schedulerTotal    *prometheus.CounterVec
	llmLatency        *prometheus.HistogramVec
}

func NewAgentMetrics(reg prometheus.Registerer) *AgentMetrics {
	m := &AgentMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "messaging",
			Name:      "inbound_total",
			Help:      "Total inbound webhook messages",
		}, []string{"channel", "status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound sends",
		}, []string{"status", "suppressed"}),
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "reservation",
			Name:      "transitions_total",
			Help:      "Total reservation status transitions",
		}, []string{"status"}),
		schedulerTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "scheduler",
			Name:      "actions_total",
			Help:      "Total actions taken by background loops",
		}, []string{"loop", "action"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agenda",
			Subsystem: "classifier",
			Name:      "llm_latency_seconds",
			Help:      "Latency of LLM completions by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.reservationsTotal, m.schedulerTotal, m.llmLatency)
	return m
}

func (m *AgentMetrics) ObserveInbound(channel, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, status).Inc()
}

func (m *AgentMetrics) ObserveOutbound(status string, suppressed bool) {
	if m == nil {
		return
	}
	label := "false"
	if suppressed {
		label = "true"
	}
	m.outboundTotal.WithLabelValues(status, label).Inc()
}

func (m *AgentMetrics) ObserveReservation(status string) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(status).Inc()
}

func (m *AgentMetrics) ObserveSchedulerAction(loop, action string) {
	if m == nil {
		return
	}
	m.schedulerTotal.WithLabelValues(loop, action).Inc()
}

func (m *AgentMetrics) ObserveLLMLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(operation).Observe(seconds)
}
