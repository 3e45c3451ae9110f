package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/supplier-sim/internal/logging"
	"github.com/signalsfoundry/supplier-sim/kb"
	"github.com/signalsfoundry/supplier-sim/model"
	"github.com/signalsfoundry/supplier-sim/timectrl"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const tracerName = "github.com/signalsfoundry/supplier-sim/core"

// DefaultEpoch anchors the day clock when panel rows carry no dates.
var DefaultEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Phase is the episode state of an Env.
type Phase int

const (
	// Running accepts allocation steps.
	Running Phase = iota
	// Terminal is entered on the first step that starts on the last day.
	Terminal
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Terminal:
		return "terminal"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// TerminalRewardPolicy selects the reward returned by terminal steps.
type TerminalRewardPolicy int

const (
	// HoldLastReward repeats the reward of the last running step (0 when the
	// episode terminates without one).
	HoldLastReward TerminalRewardPolicy = iota
	// ZeroTerminalReward always returns 0 on terminal steps.
	ZeroTerminalReward
)

// EnvConfig describes the data and shape of an environment. Every field except
// Day is required.
type EnvConfig struct {
	Panel           *kb.Panel
	Demand          *kb.DemandSchedule
	SupplierNum     int
	InitialShortage float64
	RewardScaling   float64
	StateSpace      int // feature rows of the observation
	ActionSpace     int // number of discrete action codes
	Day             int // starting day before the first Reset
}

// Validate checks scalar fields and every panel row's shape.
func (c EnvConfig) Validate() error {
	if c.Panel == nil || c.Panel.Len() == 0 {
		return fmt.Errorf("panel is empty: %w", ErrInvalidConfig)
	}
	if c.Demand == nil {
		return fmt.Errorf("demand schedule is nil: %w", ErrInvalidConfig)
	}
	if c.SupplierNum <= 0 {
		return fmt.Errorf("supplier_num %d: %w", c.SupplierNum, ErrInvalidConfig)
	}
	if c.StateSpace <= 0 {
		return fmt.Errorf("state_space %d: %w", c.StateSpace, ErrInvalidConfig)
	}
	if c.ActionSpace <= 0 {
		return fmt.Errorf("action_space %d: %w", c.ActionSpace, ErrInvalidConfig)
	}
	if math.IsNaN(c.InitialShortage) || math.IsInf(c.InitialShortage, 0) || c.InitialShortage < 0 {
		return fmt.Errorf("initial_shortage %v: %w", c.InitialShortage, ErrInvalidConfig)
	}
	if math.IsNaN(c.RewardScaling) || math.IsInf(c.RewardScaling, 0) || c.RewardScaling <= 0 {
		return fmt.Errorf("reward_scaling %v: %w", c.RewardScaling, ErrInvalidConfig)
	}
	if c.Day < 0 || c.Day >= c.Panel.Len() {
		return fmt.Errorf("day %d outside panel of %d days: %w", c.Day, c.Panel.Len(), ErrInvalidConfig)
	}
	return c.Panel.Each(func(r model.PanelRow) error {
		if r.SupplierCount() != c.SupplierNum || len(r.Quantity) != c.SupplierNum {
			return fmt.Errorf("day %d has %d prices and %d quantities for %d suppliers: %w",
				r.Day, len(r.Price), len(r.Quantity), c.SupplierNum, ErrInvalidConfig)
		}
		if r.Features == nil {
			return fmt.Errorf("day %d has no features: %w", r.Day, ErrInvalidConfig)
		}
		if rows, cols := r.Features.Dims(); rows != c.SupplierNum || cols != c.StateSpace {
			return fmt.Errorf("day %d features are %dx%d, want %dx%d: %w",
				r.Day, rows, cols, c.SupplierNum, c.StateSpace, ErrInvalidConfig)
		}
		return nil
	})
}

// StepSample is the telemetry of one running step.
type StepSample struct {
	Day    int
	Reward float64
	Gap    float64
	Cost   float64
	Solve  time.Duration
}

// MetricsRecorder receives episode telemetry. Implementations must be safe
// for concurrent use when shared between environments.
type MetricsRecorder interface {
	ObserveReset()
	ObserveStep(StepSample)
	ObserveStepError(reason string)
	ObserveTerminal(Summary)
}

// StepInfo is the auxiliary output of a step.
type StepInfo struct {
	Day          int
	DataTerminal bool    // terminal flag of the row now observed
	ScaledReward float64 // Reward × RewardScaling
	Allocation   []float64
	Gap          float64
	Cost         float64
	Summary      *Summary // set on terminal steps only
}

// StepResult is the output of Step.
type StepResult struct {
	Observation *mat.Dense
	Reward      float64
	Done        bool
	Info        StepInfo
}

// EnvOption customises Env construction.
type EnvOption func(*Env)

// WithResolver replaces the default MeritOrderResolver.
func WithResolver(r Resolver) EnvOption {
	return func(e *Env) {
		if r != nil {
			e.resolver = r
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) EnvOption {
	return func(e *Env) {
		if l != nil {
			e.baseLog = l
		}
	}
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) EnvOption {
	return func(e *Env) {
		e.metrics = m
	}
}

// WithClock sets the clock used to date rows that carry no date. The clock's
// current time at construction is taken as day 0. Reset and Step move the
// clock, so it must not be shared with another Env.
func WithClock(c timectrl.SimClock) EnvOption {
	return func(e *Env) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithClockFactory builds the Env's clock at construction. Use it instead of
// WithClock when one option list builds several environments, as NewVecEnv
// does.
func WithClockFactory(f func() timectrl.SimClock) EnvOption {
	return func(e *Env) {
		if f != nil {
			e.clock = f()
		}
	}
}

// WithRewardShape overrides the reward scale constants.
func WithRewardShape(s RewardShape) EnvOption {
	return func(e *Env) {
		e.shape = s
	}
}

// WithLambda overrides DefaultLambdaWeight.
func WithLambda(lambda float64) EnvOption {
	return func(e *Env) {
		e.lambda = lambda
	}
}

// WithTerminalRewardPolicy selects the terminal step reward.
func WithTerminalRewardPolicy(p TerminalRewardPolicy) EnvOption {
	return func(e *Env) {
		e.terminalPolicy = p
	}
}

// Env is a single supplier-selection episode. It is not safe for concurrent
// use; run one Env per goroutine and share only the panel and demand schedule.
type Env struct {
	cfg            EnvConfig
	resolver       Resolver
	baseLog        logging.Logger
	log            logging.Logger
	metrics        MetricsRecorder
	clock          timectrl.SimClock
	clockStart     time.Time
	shape          RewardShape
	lambda         float64
	terminalPolicy TerminalRewardPolicy
	decoder        MaskDecoder
	decoderErr     error

	episodeID string
	phase     Phase
	day       int
	row       model.PanelRow
	demand    float64
	obs       *mat.Dense
	reward    float64
	history   *History
}

// NewEnv validates cfg and positions the environment at cfg.Day.
func NewEnv(cfg EnvConfig, opts ...EnvOption) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Env{
		cfg:      cfg,
		resolver: MeritOrderResolver{},
		baseLog:  logging.Noop(),
		shape:    DefaultRewardShape(),
		lambda:   DefaultLambdaWeight,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if math.IsNaN(e.lambda) || e.lambda < 0 || e.lambda > 1 {
		return nil, fmt.Errorf("lambda weight %v: %w", e.lambda, ErrInvalidConfig)
	}
	if e.clock == nil {
		e.clock = timectrl.NewTimeController(DefaultEpoch, timectrl.DefaultDayTick, timectrl.Accelerated)
	}
	e.clockStart = e.clock.Now()
	e.decoder, e.decoderErr = NewMaskDecoder(cfg.SupplierNum, cfg.ActionSpace)

	if err := e.begin(context.Background(), cfg.Day); err != nil {
		return nil, err
	}
	return e, nil
}

// Reset starts a new episode at day 0 and returns the first observation. The
// episode ID is taken from ctx when present, otherwise generated.
func (e *Env) Reset(ctx context.Context) (*mat.Dense, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Env.Reset")
	defer span.End()

	if err := e.begin(ctx, 0); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("env.episode_id", e.episodeID))
	if e.metrics != nil {
		e.metrics.ObserveReset()
	}
	e.log.Info(ctx, "episode reset",
		logging.Int("days", e.cfg.Panel.Len()),
		logging.Int("suppliers", e.cfg.SupplierNum),
	)
	return mat.DenseCopyOf(e.obs), nil
}

// begin replaces all per-episode state. Nothing is touched when a lookup fails.
func (e *Env) begin(ctx context.Context, day int) error {
	row, err := e.cfg.Panel.Row(day)
	if err != nil {
		return err
	}
	demand, err := e.cfg.Demand.Demand(day)
	if err != nil {
		return err
	}

	e.clock.SetTime(e.clockStart)
	for i := 0; i < day; i++ {
		e.clock.Advance()
	}
	start := row.Date
	if start.IsZero() {
		start = e.clock.Now()
	}

	ctx, e.episodeID = logging.EnsureEpisodeID(ctx)
	e.log = logging.WithEpisodeLogger(ctx, e.baseLog)
	e.phase = Running
	e.day = day
	e.row = row
	e.demand = demand
	e.obs = observation(row)
	e.reward = 0
	e.history = newHistory(start, e.cfg.InitialShortage)
	return nil
}

// Step resolves one day with the supplier subset action.
func (e *Env) Step(ctx context.Context, action []int) (StepResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "Env.Step",
		trace.WithAttributes(
			attribute.String("env.episode_id", e.episodeID),
			attribute.Int("env.day", e.day),
			attribute.Int("env.action_size", len(action)),
		),
	)
	defer span.End()

	res, err := e.step(ctx, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if e.metrics != nil {
			e.metrics.ObserveStepError(ErrorReason(err))
		}
		e.log.Warn(ctx, "step failed", logging.Int("day", e.day), logging.Err(err))
		return StepResult{}, err
	}
	span.SetAttributes(
		attribute.Float64("env.reward", res.Reward),
		attribute.Bool("env.done", res.Done),
	)
	return res, nil
}

// StepCode decodes a discrete action code with the mask decoder and steps.
func (e *Env) StepCode(ctx context.Context, code int) (StepResult, error) {
	if e.decoderErr != nil {
		return StepResult{}, e.decoderErr
	}
	subset, err := e.decoder.Decode(code)
	if err != nil {
		return StepResult{}, err
	}
	return e.Step(ctx, subset)
}

func (e *Env) step(ctx context.Context, action []int) (StepResult, error) {
	if e.day >= e.cfg.Panel.Len()-1 {
		return e.terminal(ctx), nil
	}
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	if err := ValidateAction(action, e.cfg.SupplierNum); err != nil {
		return StepResult{}, err
	}

	prices := make([]float64, len(action))
	caps := make([]float64, len(action))
	for i, idx := range action {
		prices[i] = e.row.Price[idx]
		caps[i] = e.row.Quantity[idx]
	}

	began := time.Now()
	q, err := e.resolver.Resolve(ctx, prices, caps, e.demand, e.lambda)
	solve := time.Since(began)
	if err != nil {
		return StepResult{}, fmt.Errorf("resolve day %d: %w", e.day, err)
	}
	if err := checkAllocation(q, len(action)); err != nil {
		return StepResult{}, fmt.Errorf("resolve day %d: %w", e.day, err)
	}

	total := floats.Sum(q)
	gap := e.demand - total
	cost := floats.Dot(q, prices)
	reward := e.shape.Reward(GapMetric(e.demand, total), cost)

	next := e.day + 1
	nextRow, err := e.cfg.Panel.Row(next)
	if err != nil {
		return StepResult{}, err
	}
	nextDemand, err := e.cfg.Demand.Demand(next)
	if err != nil {
		return StepResult{}, err
	}

	date := e.clock.Advance()
	if !nextRow.Date.IsZero() {
		date = nextRow.Date
	}
	e.history.append(stepRecord{
		date:     date,
		purchase: total,
		demand:   e.demand,
		cost:     cost,
		shortage: gap,
		reward:   reward,
	})
	e.day = next
	e.row = nextRow
	e.demand = nextDemand
	e.obs = observation(nextRow)
	e.reward = reward
	if err := e.history.Check(); err != nil {
		return StepResult{}, err
	}

	if e.metrics != nil {
		e.metrics.ObserveStep(StepSample{Day: next - 1, Reward: reward, Gap: gap, Cost: cost, Solve: solve})
	}
	e.log.Debug(ctx, "step resolved",
		logging.Int("day", next-1),
		logging.Float("purchase", total),
		logging.Float("gap", gap),
		logging.Float("cost", cost),
		logging.Float("reward", reward),
	)

	return StepResult{
		Observation: mat.DenseCopyOf(e.obs),
		Reward:      reward,
		Info: StepInfo{
			Day:          e.day,
			DataTerminal: nextRow.Terminal,
			ScaledReward: reward * e.cfg.RewardScaling,
			Allocation:   q,
			Gap:          gap,
			Cost:         cost,
		},
	}, nil
}

func (e *Env) terminal(ctx context.Context) StepResult {
	sum := Summarize(e.history)
	if e.phase == Running {
		e.phase = Terminal
		e.log.Info(ctx, "episode terminal",
			logging.Int("steps", sum.Steps),
			logging.Float("log_mean_cost", sum.LogMeanCost.Value),
			logging.Float("log_mean_shortage", sum.LogMeanShortage.Value),
			logging.Float("avg_unit_price", sum.AvgUnitPrice.Value),
		)
		for _, w := range sum.Warnings {
			e.log.Warn(ctx, "degenerate terminal summary", logging.Err(w))
		}
		if e.metrics != nil {
			e.metrics.ObserveTerminal(sum)
		}
	}

	reward := e.reward
	if e.terminalPolicy == ZeroTerminalReward {
		reward = 0
	}
	return StepResult{
		Observation: mat.DenseCopyOf(e.obs),
		Reward:      reward,
		Done:        true,
		Info: StepInfo{
			Day:          e.day,
			DataTerminal: true,
			ScaledReward: reward * e.cfg.RewardScaling,
			Summary:      &sum,
		},
	}
}

// Render returns a copy of the current observation.
func (e *Env) Render() *mat.Dense {
	return mat.DenseCopyOf(e.obs)
}

// Day returns the current day cursor.
func (e *Env) Day() int { return e.day }

// Phase returns the episode state.
func (e *Env) Phase() Phase { return e.phase }

// EpisodeID identifies the current episode in logs and stored trajectories.
func (e *Env) EpisodeID() string { return e.episodeID }

// CurrentDemand returns the demand of the current day.
func (e *Env) CurrentDemand() float64 { return e.demand }

// CurrentRow returns the panel row of the current day. Callers MUST treat it
// as read-only.
func (e *Env) CurrentRow() model.PanelRow { return e.row }

// Config returns the environment configuration.
func (e *Env) Config() EnvConfig { return e.cfg }

// History exposes the episode history. It is read-only to callers.
func (e *Env) History() *History { return e.history }

// ErrorReason maps a step error to a short label for metrics.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrIndexLookup):
		return "index_lookup"
	case errors.Is(err, ErrAllocationInfeasible):
		return "infeasible"
	case errors.Is(err, ErrHistoryMisaligned):
		return "misaligned"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "resolver"
	}
}

func checkAllocation(q []float64, want int) error {
	if len(q) != want {
		return fmt.Errorf("resolver returned %d quantities for %d suppliers: %w", len(q), want, ErrAllocationInfeasible)
	}
	for i, v := range q {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("resolver quantity %v at position %d: %w", v, i, ErrAllocationInfeasible)
		}
	}
	return nil
}

// observation transposes supplier_num × feature_dim features into the
// feature_dim × supplier_num observation.
func observation(row model.PanelRow) *mat.Dense {
	return mat.DenseCopyOf(row.Features.T())
}
