package observability

import (
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/supplier-sim/core"
)

// EnvCollector exposes step engine metrics. It implements
// core.MetricsRecorder and may be shared by many environments.
type EnvCollector struct {
	gatherer prometheus.Gatherer

	EpisodesStarted     prometheus.Counter
	EpisodesCompleted   prometheus.Counter
	DegenerateSummaries prometheus.Counter
	Steps               prometheus.Counter
	StepErrors          *prometheus.CounterVec
	Rewards             prometheus.Histogram
	Costs               prometheus.Histogram
	Gaps                prometheus.Histogram
	SolveDuration       prometheus.Histogram
	LastUnitPrice       prometheus.Gauge
}

var _ core.MetricsRecorder = (*EnvCollector)(nil)

// NewEnvCollector registers environment metrics against the provided registerer.
func NewEnvCollector(reg prometheus.Registerer) (*EnvCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	started, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "env_episodes_started_total",
		Help: "Episodes started by Reset.",
	}), "env_episodes_started_total")
	if err != nil {
		return nil, err
	}
	completed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "env_episodes_completed_total",
		Help: "Episodes that reached the terminal day.",
	}), "env_episodes_completed_total")
	if err != nil {
		return nil, err
	}
	degenerate, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "env_degenerate_summaries_total",
		Help: "Terminal summaries with at least one undefined statistic.",
	}), "env_degenerate_summaries_total")
	if err != nil {
		return nil, err
	}
	steps, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "env_steps_total",
		Help: "Running steps resolved.",
	}), "env_steps_total")
	if err != nil {
		return nil, err
	}
	stepErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "env_step_errors_total",
		Help: "Failed steps, labeled by reason.",
	}, []string{"reason"}), "env_step_errors_total")
	if err != nil {
		return nil, err
	}
	rewards, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "env_step_reward",
		Help:    "Shaped reward per running step.",
		Buckets: prometheus.LinearBuckets(0, 0.2, 11),
	}), "env_step_reward")
	if err != nil {
		return nil, err
	}
	costs, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "env_step_cost",
		Help:    "Procurement cost per running step.",
		Buckets: prometheus.ExponentialBuckets(10, 4, 8),
	}), "env_step_cost")
	if err != nil {
		return nil, err
	}
	gaps, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "env_step_abs_gap",
		Help:    "Absolute shortage gap per running step.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}), "env_step_abs_gap")
	if err != nil {
		return nil, err
	}
	solve, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "env_allocation_solve_duration_seconds",
		Help:    "Duration of allocation resolver calls.",
		Buckets: []float64{0.00001, 0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}), "env_allocation_solve_duration_seconds")
	if err != nil {
		return nil, err
	}
	unitPrice, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "env_last_avg_unit_price",
		Help: "Average unit price of the most recent completed episode with purchases.",
	}), "env_last_avg_unit_price")
	if err != nil {
		return nil, err
	}

	return &EnvCollector{
		gatherer:            gatherer,
		EpisodesStarted:     started,
		EpisodesCompleted:   completed,
		DegenerateSummaries: degenerate,
		Steps:               steps,
		StepErrors:          stepErrors,
		Rewards:             rewards,
		Costs:               costs,
		Gaps:                gaps,
		SolveDuration:       solve,
		LastUnitPrice:       unitPrice,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EnvCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a /metrics handler over the collector's gatherer.
func (c *EnvCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// ObserveReset counts a started episode.
func (c *EnvCollector) ObserveReset() {
	if c == nil {
		return
	}
	c.EpisodesStarted.Inc()
}

// ObserveStep records one running step.
func (c *EnvCollector) ObserveStep(s core.StepSample) {
	if c == nil {
		return
	}
	c.Steps.Inc()
	c.Rewards.Observe(s.Reward)
	c.Costs.Observe(s.Cost)
	c.Gaps.Observe(math.Abs(s.Gap))
	c.SolveDuration.Observe(s.Solve.Seconds())
}

// ObserveStepError counts a failed step.
func (c *EnvCollector) ObserveStepError(reason string) {
	if c == nil {
		return
	}
	c.StepErrors.WithLabelValues(reason).Inc()
}

// ObserveTerminal records a completed episode.
func (c *EnvCollector) ObserveTerminal(s core.Summary) {
	if c == nil {
		return
	}
	c.EpisodesCompleted.Inc()
	if s.Degenerate() {
		c.DegenerateSummaries.Inc()
	}
	if s.AvgUnitPrice.Valid {
		c.LastUnitPrice.Set(s.AvgUnitPrice.Value)
	}
}
