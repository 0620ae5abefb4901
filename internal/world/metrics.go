package world

import "github.com/prometheus/client_golang/prometheus"

// Исходы запроса генерации
const (
	OutcomeStarted      = "started"
	OutcomeDeduplicated = "deduplicated"
	OutcomeSucceeded    = "succeeded"
	OutcomeFailed       = "failed"
)

// ManagerMetrics Prometheus-метрики генерации зон.
// Один экземпляр разделяется всеми менеджерами процесса.
type ManagerMetrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

// NewManagerMetrics создаёт и регистрирует метрики в reg
func NewManagerMetrics(reg prometheus.Registerer) *ManagerMetrics {
	m := &ManagerMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "descent",
				Subsystem: "world",
				Name:      "generation_requests_total",
				Help:      "Запросы генерации зон по исходу.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "descent",
			Subsystem: "world",
			Name:      "generation_duration_seconds",
			Help:      "Длительность запроса генерации зоны.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "descent",
			Subsystem: "world",
			Name:      "generation_in_flight",
			Help:      "Запросы генерации, ожидающие ответа.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.inFlight)
	}
	return m
}

func (m *ManagerMetrics) count(outcome string) {
	if m != nil {
		m.requests.WithLabelValues(outcome).Inc()
	}
}

func (m *ManagerMetrics) observe(seconds float64) {
	if m != nil {
		m.duration.Observe(seconds)
	}
}

func (m *ManagerMetrics) addInFlight(d float64) {
	if m != nil {
		m.inFlight.Add(d)
	}
}
