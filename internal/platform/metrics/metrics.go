package metrics

import (
	"net/http"
	"strconv"

	"commitreveal/contexts/governance/commit-reveal-voting/domain/entities"
	"commitreveal/contexts/governance/commit-reveal-voting/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Voting records engine outcomes on a private registry.
type Voting struct {
	registry *prometheus.Registry

	sessionsStarted prometheus.Counter
	commitsAccepted prometheus.Counter
	revealsAccepted *prometheus.CounterVec
	rejections      *prometheus.CounterVec
}

func NewVoting(namespace string) *Voting {
	if namespace == "" {
		namespace = "commit_reveal"
	}
	m := &Voting{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_started_total",
				Help:      "Number of voting sessions opened.",
			},
		),
		commitsAccepted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commits_accepted_total",
				Help:      "Number of commitments accepted during the commit phase.",
			},
		),
		revealsAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reveals_accepted_total",
				Help:      "Number of reveals counted towards a tally, by choice.",
			},
			[]string{"choice"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_rejected_total",
				Help:      "Number of rejected engine operations, by operation and reason.",
			},
			[]string{"operation", "reason"},
		),
	}
	m.registry.MustRegister(
		m.sessionsStarted,
		m.commitsAccepted,
		m.revealsAccepted,
		m.rejections,
	)
	return m
}

func (m *Voting) SessionStarted() {
	m.sessionsStarted.Inc()
}

func (m *Voting) CommitAccepted() {
	m.commitsAccepted.Inc()
}

func (m *Voting) RevealAccepted(choice entities.Choice) {
	m.revealsAccepted.WithLabelValues(strconv.Itoa(int(choice))).Inc()
}

func (m *Voting) OperationRejected(operation string, reason string) {
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// Registry exposes the underlying registry for additional collectors.
func (m *Voting) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Voting) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

var _ ports.VotingMetrics = (*Voting)(nil)
