package crew

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records orchestrator, demultiplexer and registry activity as
// prometheus metrics. It is a TurnCallbacks and can be chained with others.
type Metrics struct {
	BaseTurnCallbacks

	turnsTotal   *prometheus.CounterVec
	nodeVisits   *prometheus.CounterVec
	nodeDuration *prometheus.HistogramVec
	interrupts   prometheus.Counter
	dedupSkipped *prometheus.CounterVec
	compactions  *prometheus.CounterVec
}

// NewMetrics registers the crew metrics with reg. A nil reg uses the default
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crew",
			Name:      "turns_total",
			Help:      "Turns finished, by outcome",
		}, []string{"status"}),
		nodeVisits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crew",
			Name:      "node_visits_total",
			Help:      "Workflow node visits",
		}, []string{"node"}),
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crew",
			Name:      "node_duration_seconds",
			Help:      "Time spent in each workflow node",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"node"}),
		interrupts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "crew",
			Name:      "interrupts_total",
			Help:      "Turns suspended for human input",
		}),
		dedupSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crew",
			Name:      "dedup_skipped_total",
			Help:      "Streamed messages not displayed, by reason",
		}, []string{"reason"}),
		compactions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crew",
			Name:      "compactions_total",
			Help:      "Checkpoint store compactions, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) AfterTurn(ctx context.Context, event *TurnEvent) {
	status := event.Status
	if status == "" {
		status = TurnFailed
	}
	m.turnsTotal.WithLabelValues(string(status)).Inc()
	if status == TurnSuspended {
		m.interrupts.Inc()
	}
}

func (m *Metrics) AfterNode(ctx context.Context, event *NodeEvent) {
	m.nodeVisits.WithLabelValues(event.Node).Inc()
	m.nodeDuration.WithLabelValues(event.Node).Observe(event.Duration.Seconds())
}

// DedupSkipped counts a message hidden by the demultiplexer.
func (m *Metrics) DedupSkipped(reason string) {
	if m == nil {
		return
	}
	m.dedupSkipped.WithLabelValues(reason).Inc()
}

// Compaction counts a compaction attempt.
func (m *Metrics) Compaction(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.compactions.WithLabelValues(result).Inc()
}
