// Package config loads the YAML configuration shared by the simulator and the
// environment server.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/signalsfoundry/supplier-sim/core"
	"github.com/signalsfoundry/supplier-sim/internal/observability"
	"gopkg.in/yaml.v3"
)

// Config is the root of the configuration file.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Reward      RewardConfig      `yaml:"reward"`
	Data        DataConfig        `yaml:"data"`
	Output      OutputConfig      `yaml:"output"`
	Server      ServerConfig      `yaml:"server"`
	Tracing     TracingConfig     `yaml:"tracing"`
}

// EnvironmentConfig shapes each episode. Zero supplier_num, state_space and
// action_space are inferred from the scenario data.
type EnvironmentConfig struct {
	SupplierNum     int     `yaml:"supplier_num"`
	StateSpace      int     `yaml:"state_space"`
	ActionSpace     int     `yaml:"action_space"`
	InitialShortage float64 `yaml:"initial_shortage"`
	RewardScaling   float64 `yaml:"reward_scaling"`
	StartDay        int     `yaml:"start_day"`
	Lambda          float64 `yaml:"lambda"`
	TerminalReward  string  `yaml:"terminal_reward"` // hold | zero
}

// RewardConfig holds the saturation scales of the shaped reward.
type RewardConfig struct {
	GapScale  float64 `yaml:"gap_scale"`
	CostScale float64 `yaml:"cost_scale"`
}

// DataConfig points at the scenario document and an optional demand override.
type DataConfig struct {
	Scenario string `yaml:"scenario"`
	Demand   string `yaml:"demand"`
}

// OutputConfig controls simulator rollouts and exports.
type OutputConfig struct {
	Dir        string `yaml:"dir"`
	CSV        bool   `yaml:"csv"`
	SQLite     string `yaml:"sqlite"` // database path; empty disables the store
	Episodes   int    `yaml:"episodes"`
	Policy     string `yaml:"policy"`      // random | cheapest | softmax
	SubsetSize int    `yaml:"subset_size"` // suppliers picked by cheapest and softmax
	Seed       int64  `yaml:"seed"`
}

// ServerConfig controls the environment gRPC server.
type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	MaxSessions int    `yaml:"max_sessions"`
}

// TracingConfig is the YAML form of observability.TracingConfig.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns a configuration with every optional field filled.
func Default() Config {
	return Config{
		Environment: EnvironmentConfig{
			RewardScaling:  1,
			Lambda:         core.DefaultLambdaWeight,
			TerminalReward: "hold",
		},
		Reward: RewardConfig{
			GapScale:  core.DefaultGapScale,
			CostScale: core.DefaultCostScale,
		},
		Output: OutputConfig{
			Dir:        "results",
			CSV:        true,
			Episodes:   1,
			Policy:     "random",
			SubsetSize: 2,
			Seed:       1,
		},
		Server: ServerConfig{
			GRPCAddr:    ":50061",
			MetricsAddr: ":9091",
			MaxSessions: 64,
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			ServiceName: "supplier-env",
			SampleRatio: 1,
		},
	}
}

// Load reads a YAML file over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the logical consistency of the configuration. Shape fields
// are checked against the data later by core.NewEnv.
func (c *Config) Validate() error {
	e := c.Environment
	if e.SupplierNum < 0 || e.StateSpace < 0 || e.ActionSpace < 0 {
		return fmt.Errorf("supplier_num, state_space and action_space must not be negative")
	}
	if e.InitialShortage < 0 || math.IsNaN(e.InitialShortage) {
		return fmt.Errorf("initial_shortage must be non-negative, got %v", e.InitialShortage)
	}
	if !(e.RewardScaling > 0) {
		return fmt.Errorf("reward_scaling must be positive, got %v", e.RewardScaling)
	}
	if e.StartDay < 0 {
		return fmt.Errorf("start_day must not be negative, got %d", e.StartDay)
	}
	if e.Lambda < 0 || e.Lambda > 1 || math.IsNaN(e.Lambda) {
		return fmt.Errorf("lambda must be within [0,1], got %v", e.Lambda)
	}
	if _, err := c.TerminalPolicy(); err != nil {
		return err
	}
	if !(c.Reward.GapScale > 0) || !(c.Reward.CostScale > 0) {
		return fmt.Errorf("reward scales must be positive, got gap=%v cost=%v", c.Reward.GapScale, c.Reward.CostScale)
	}
	if c.Output.Episodes <= 0 {
		return fmt.Errorf("output.episodes must be positive, got %d", c.Output.Episodes)
	}
	if c.Output.SubsetSize <= 0 {
		return fmt.Errorf("output.subset_size must be positive, got %d", c.Output.SubsetSize)
	}
	switch c.Output.Policy {
	case "random", "cheapest", "softmax":
	default:
		return fmt.Errorf("unknown output.policy %q (want random, cheapest or softmax)", c.Output.Policy)
	}
	if c.Server.MaxSessions <= 0 {
		return fmt.Errorf("server.max_sessions must be positive, got %d", c.Server.MaxSessions)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0,1], got %v", c.Tracing.SampleRatio)
	}
	return nil
}

// TerminalPolicy maps environment.terminal_reward onto the core policy.
func (c *Config) TerminalPolicy() (core.TerminalRewardPolicy, error) {
	switch strings.ToLower(c.Environment.TerminalReward) {
	case "", "hold":
		return core.HoldLastReward, nil
	case "zero":
		return core.ZeroTerminalReward, nil
	default:
		return 0, fmt.Errorf("unknown environment.terminal_reward %q (want hold or zero)", c.Environment.TerminalReward)
	}
}

// LoadScenario reads data.scenario and applies the data.demand override.
func (c *Config) LoadScenario() (*core.Scenario, error) {
	if c.Data.Scenario == "" {
		return nil, fmt.Errorf("data.scenario is required")
	}
	sc, err := core.LoadScenarioFile(c.Data.Scenario)
	if err != nil {
		return nil, err
	}
	if c.Data.Demand != "" {
		f, err := os.Open(c.Data.Demand)
		if err != nil {
			return nil, fmt.Errorf("open demand: %w", err)
		}
		defer f.Close()
		if sc.Demand, err = core.LoadDemand(f); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// EnvConfig builds the core configuration over sc. Explicit shape fields
// override the values inferred from the data.
func (c *Config) EnvConfig(sc *core.Scenario) core.EnvConfig {
	cfg := sc.Config()
	e := c.Environment
	if e.SupplierNum > 0 {
		cfg.SupplierNum = e.SupplierNum
	}
	if e.StateSpace > 0 {
		cfg.StateSpace = e.StateSpace
	}
	if e.ActionSpace > 0 {
		cfg.ActionSpace = e.ActionSpace
	}
	cfg.InitialShortage = e.InitialShortage
	cfg.RewardScaling = e.RewardScaling
	cfg.Day = e.StartDay
	return cfg
}

// EnvOptions returns the core options implied by the configuration.
func (c *Config) EnvOptions() []core.EnvOption {
	policy, _ := c.TerminalPolicy()
	return []core.EnvOption{
		core.WithLambda(c.Environment.Lambda),
		core.WithRewardShape(core.RewardShape{GapScale: c.Reward.GapScale, CostScale: c.Reward.CostScale}),
		core.WithTerminalRewardPolicy(policy),
	}
}

// Environment variables that override the tracing section field by field.
const (
	envTracingEnabled = "SIM_TRACING_ENABLED"
	envTracingExport  = "SIM_TRACING_EXPORTER"
	envTracingService = "SIM_TRACING_SERVICE_NAME"
	envTracingRatio   = "SIM_TRACING_SAMPLE_RATIO"
	envOTLPEndpoint   = "SIM_OTLP_ENDPOINT"
)

// TracingSettings resolves the tracing section against the SIM_TRACING_*
// and SIM_OTLP_ENDPOINT variables and tags spans with the shape of envCfg.
// A sample ratio outside [0,1] in the environment is ignored.
func (c *Config) TracingSettings(envCfg core.EnvConfig) observability.TracingConfig {
	t := c.Tracing
	if v, ok := os.LookupEnv(envTracingEnabled); ok {
		t.Enabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if v := os.Getenv(envTracingExport); v != "" {
		t.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv(envTracingService); v != "" {
		t.ServiceName = v
	}
	if v := os.Getenv(envOTLPEndpoint); v != "" {
		t.Endpoint = v
	}
	if v := os.Getenv(envTracingRatio); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil && r >= 0 && r <= 1 {
			t.SampleRatio = r
		}
	}

	days := 0
	if envCfg.Panel != nil {
		days = envCfg.Panel.Len()
	}
	return observability.TracingConfig{
		Enabled:     t.Enabled,
		ServiceName: t.ServiceName,
		Exporter:    t.Exporter,
		Endpoint:    t.Endpoint,
		SampleRatio: t.SampleRatio,
		Env: observability.EnvResource{
			Scenario:    c.Data.Scenario,
			Days:        days,
			SupplierNum: envCfg.SupplierNum,
			StateSpace:  envCfg.StateSpace,
			ActionSpace: envCfg.ActionSpace,
		},
	}
}
