package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"genjobs/internal/domain"
)

// Metrics holds the orchestration collectors. A nil *Metrics records nothing.
type Metrics struct {
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	generations     *prometheus.CounterVec
	denied          *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "genjobs_attempts_total",
			Help: "Provider attempts by terminal job status.",
		}, []string{"provider", "kind", "status"}),
		attemptDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "genjobs_attempt_duration_seconds",
			Help:    "Wall time from submission to terminal status per attempt.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"provider", "kind"}),
		generations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "genjobs_generate_total",
			Help: "Generate calls by outcome.",
		}, []string{"kind", "outcome"}),
		denied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "genjobs_admission_denied_total",
			Help: "Requests rejected by the admission gate.",
		}, []string{"class"}),
	}
}

func (m *Metrics) observeAttempt(job *domain.Job) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(job.ProviderID, string(job.Kind), string(job.Status)).Inc()
	if !job.FinishedAt.IsZero() {
		m.attemptDuration.WithLabelValues(job.ProviderID, string(job.Kind)).Observe(job.FinishedAt.Sub(job.SubmittedAt).Seconds())
	}
}

func (m *Metrics) observeGenerate(kind domain.MediaKind, outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) observeDenied(class string) {
	if m == nil {
		return
	}
	m.denied.WithLabelValues(class).Inc()
}
