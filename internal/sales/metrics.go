package sales

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for sale processing.
type Metrics struct {
	created  *prometheus.CounterVec
	rejected *prometheus.CounterVec
	revenue  prometheus.Counter
}

// NewMetrics registers the sale collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pos_sales_created_total",
		Help: "Sales committed, by payment status and mode.",
	}, []string{"status", "payment_mode"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_pos_sales_rejected_total",
		Help: "Sale requests that failed, by reason.",
	}, []string{"reason"})
	revenue := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "odyssey_pos_sales_revenue_total",
		Help: "Sum of committed sale totals.",
	})
	if registerer != nil {
		registerer.MustRegister(created, rejected, revenue)
	}
	return &Metrics{created: created, rejected: rejected, revenue: revenue}
}

func (m *Metrics) observeCreated(s Sale) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(string(s.Status), string(s.PaymentMode)).Inc()
	total, _ := s.Total.Float64()
	m.revenue.Add(total)
}

func (m *Metrics) observeRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}
