package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IntakeMetrics exposes counters/histograms for lead intake flows.
type IntakeMetrics struct {
	submissionsTotal *prometheus.CounterVec
	complianceTotal  *prometheus.CounterVec
	eligibilityTotal *prometheus.CounterVec
	dispatchTotal    *prometheus.CounterVec
	outboundLatency  *prometheus.HistogramVec
}

func NewIntakeMetrics(reg prometheus.Registerer) *IntakeMetrics {
	m := &IntakeMetrics{
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadcapture",
			Subsystem: "intake",
			Name:      "submissions_total",
			Help:      "Lead submissions by terminal state",
		}, []string{"state"}),
		complianceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadcapture",
			Subsystem: "compliance",
			Name:      "decisions_total",
			Help:      "Compliance decisions by status",
		}, []string{"status"}),
		eligibilityTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadcapture",
			Subsystem: "eligibility",
			Name:      "classifications_total",
			Help:      "Eligibility questionnaire outcomes",
		}, []string{"result"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadcapture",
			Subsystem: "dispatch",
			Name:      "webhook_total",
			Help:      "CRM webhook deliveries by outcome and attempt count",
		}, []string{"success", "attempts"}),
		outboundLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadcapture",
			Subsystem: "outbound",
			Name:      "call_duration_seconds",
			Help:      "Latency of outbound calls to third-party endpoints",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.submissionsTotal, m.complianceTotal, m.eligibilityTotal, m.dispatchTotal, m.outboundLatency)
	return m
}

func (m *IntakeMetrics) ObserveSubmission(state string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(state).Inc()
}

func (m *IntakeMetrics) ObserveCompliance(status string) {
	if m == nil {
		return
	}
	m.complianceTotal.WithLabelValues(status).Inc()
}

func (m *IntakeMetrics) ObserveEligibility(result string) {
	if m == nil {
		return
	}
	m.eligibilityTotal.WithLabelValues(result).Inc()
}

func (m *IntakeMetrics) ObserveDispatch(success bool, attempts int) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(strconv.FormatBool(success), strconv.Itoa(attempts)).Inc()
}

// ObserveOutbound records one outbound call. status is "ok", "error" or the
// HTTP status code class reported by the caller.
func (m *IntakeMetrics) ObserveOutbound(target, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.outboundLatency.WithLabelValues(target, status).Observe(took.Seconds())
}
