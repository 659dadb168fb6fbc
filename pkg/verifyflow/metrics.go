package verifyflow

import "github.com/prometheus/client_golang/prometheus"

// Collector records verification outcomes. A nil *Collector is a valid
// no-op so wiring metrics stays optional.
type Collector struct {
	verifications *prometheus.CounterVec
	resends       *prometheus.CounterVec
}

// NewCollector creates a collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_verification_total",
			Help: "Verification attempts by protocol and terminal state",
		}, []string{"protocol", "state"}),
		resends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_resend_total",
			Help: "Verification resend requests by outcome",
		}, []string{"outcome"}),
	}

	reg.MustRegister(c.verifications, c.resends)

	return c
}

// RecordVerification counts one terminal state for a protocol.
func (c *Collector) RecordVerification(protocol string, state State) {
	if c == nil {
		return
	}
	c.verifications.WithLabelValues(protocol, string(state)).Inc()
}

// RecordResend counts one resend attempt.
func (c *Collector) RecordResend(outcome string) {
	if c == nil {
		return
	}
	c.resends.WithLabelValues(outcome).Inc()
}
