//go:build perf || perf_large

package perf

import (
	"context"
	"testing"

	"github.com/signalsfoundry/supplier-sim/core"
	"github.com/signalsfoundry/supplier-sim/internal/envserver"
	"github.com/signalsfoundry/supplier-sim/kb"
	"github.com/signalsfoundry/supplier-sim/model"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/types/known/structpb"
)

type perfConfig struct {
	Suppliers  int
	FeatureDim int
	Days       int
	Envs       int
}

// benchmarkEpisodes plays whole episodes with the cheapest pair of suppliers.
func benchmarkEpisodes(b *testing.B, cfg perfConfig) {
	ctx := context.Background()
	envCfg := newEnvConfig(b, cfg)
	env, err := core.NewEnv(envCfg)
	if err != nil {
		b.Fatalf("NewEnv: %v", err)
	}
	action := []int{0, 1}
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := env.Reset(ctx); err != nil {
			b.Fatalf("Reset: %v", err)
		}
		for {
			res, err := env.Step(ctx, action)
			if err != nil {
				b.Fatalf("Step day %d: %v", env.Day(), err)
			}
			if res.Done {
				break
			}
		}
	}
}

func benchmarkVecEnv(b *testing.B, cfg perfConfig) {
	ctx := context.Background()
	vec, err := core.NewVecEnv(newEnvConfig(b, cfg), cfg.Envs)
	if err != nil {
		b.Fatalf("NewVecEnv: %v", err)
	}
	actions := make([][]int, cfg.Envs)
	for i := range actions {
		actions[i] = []int{i % cfg.Suppliers, (i + 1) % cfg.Suppliers}
	}
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := vec.Step(ctx, actions); err != nil {
			b.Fatalf("VecEnv.Step: %v", err)
		}
	}
}

func benchmarkSessionSteps(b *testing.B, cfg perfConfig) {
	ctx := context.Background()
	envCfg := newEnvConfig(b, cfg)
	srv := envserver.NewServer(func() (*core.Env, error) { return core.NewEnv(envCfg) })

	created, err := srv.CreateSession(ctx, &structpb.Struct{})
	if err != nil {
		b.Fatalf("CreateSession: %v", err)
	}
	id := created.GetFields()["session_id"].GetStringValue()
	step, err := structpb.NewStruct(map[string]interface{}{
		"session_id": id,
		"action":     []interface{}{0, 1},
	})
	if err != nil {
		b.Fatalf("NewStruct: %v", err)
	}
	reset, _ := structpb.NewStruct(map[string]interface{}{"session_id": id})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		out, err := srv.Step(ctx, step)
		if err != nil {
			b.Fatalf("Step: %v", err)
		}
		if out.GetFields()["done"].GetBoolValue() {
			b.StopTimer()
			if _, err := srv.Reset(ctx, reset); err != nil {
				b.Fatalf("Reset: %v", err)
			}
			b.StartTimer()
		}
	}
}

// newEnvConfig builds a synthetic panel with gently drifting prices.
func newEnvConfig(b *testing.B, cfg perfConfig) core.EnvConfig {
	b.Helper()
	rows := make([]model.PanelRow, cfg.Days)
	demand := make([]float64, cfg.Days)
	for d := range rows {
		feats := mat.NewDense(cfg.Suppliers, cfg.FeatureDim, nil)
		price := make([]float64, cfg.Suppliers)
		qty := make([]float64, cfg.Suppliers)
		for s := 0; s < cfg.Suppliers; s++ {
			price[s] = 10 + float64(s) + float64(d%7)/10
			qty[s] = 500
			for f := 0; f < cfg.FeatureDim; f++ {
				feats.Set(s, f, price[s]*float64(f+1))
			}
		}
		rows[d] = model.PanelRow{Day: d, Features: feats, Price: price, Quantity: qty}
		demand[d] = 600 + float64(d%30)
	}
	rows[cfg.Days-1].Terminal = true
	panel, err := kb.NewPanel(rows)
	if err != nil {
		b.Fatalf("NewPanel: %v", err)
	}
	actions := 1 << cfg.Suppliers
	return core.EnvConfig{
		Panel:         panel,
		Demand:        kb.NewDemandSchedule(demand),
		SupplierNum:   cfg.Suppliers,
		RewardScaling: 1,
		StateSpace:    cfg.FeatureDim,
		ActionSpace:   actions,
	}
}
