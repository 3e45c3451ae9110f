package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/signalsfoundry/supplier-sim/internal/logging"
	"github.com/signalsfoundry/supplier-sim/timectrl"
	"gonum.org/v1/gonum/mat"
)

// VecEnv runs N independent environments over one shared panel and demand
// schedule. Each environment owns its own day cursor and history.
type VecEnv struct {
	envs []*Env
}

// NewVecEnv builds n environments from cfg. Options are applied to each one,
// so a clock must come from WithClockFactory; a single clock passed with
// WithClock would be shared and is rejected.
func NewVecEnv(cfg EnvConfig, n int, opts ...EnvOption) (*VecEnv, error) {
	if n <= 0 {
		return nil, fmt.Errorf("vec env size %d: %w", n, ErrInvalidConfig)
	}
	v := &VecEnv{envs: make([]*Env, n)}
	clocks := make(map[timectrl.SimClock]int, n)
	for i := range v.envs {
		e, err := NewEnv(cfg, opts...)
		if err != nil {
			return nil, fmt.Errorf("env %d: %w", i, err)
		}
		if reflect.TypeOf(e.clock).Comparable() {
			if j, ok := clocks[e.clock]; ok {
				return nil, fmt.Errorf("envs %d and %d share one clock: %w", j, i, ErrInvalidConfig)
			}
			clocks[e.clock] = i
		}
		v.envs[i] = e
	}
	return v, nil
}

// Len returns the number of environments.
func (v *VecEnv) Len() int { return len(v.envs) }

// Env returns the i-th environment.
func (v *VecEnv) Env(i int) *Env { return v.envs[i] }

// Reset resets every environment and returns their first observations. Each
// environment gets a fresh episode ID; an ID carried by ctx is not reused.
func (v *VecEnv) Reset(ctx context.Context) ([]*mat.Dense, error) {
	obs := make([]*mat.Dense, len(v.envs))
	for i, e := range v.envs {
		o, err := e.Reset(freshEpisode(ctx))
		if err != nil {
			return nil, fmt.Errorf("env %d: %w", i, err)
		}
		obs[i] = o
	}
	return obs, nil
}

// VecStepResult is one environment's step output. When the step finished the
// episode, the environment has been reset: Observation is the new episode's
// first observation and TerminalObservation holds the last one.
type VecStepResult struct {
	StepResult
	TerminalObservation *mat.Dense
}

// Step advances every environment concurrently with its own action. All
// environments are stepped even if some fail; the errors are joined.
func (v *VecEnv) Step(ctx context.Context, actions [][]int) ([]VecStepResult, error) {
	if len(actions) != len(v.envs) {
		return nil, fmt.Errorf("%d actions for %d envs: %w", len(actions), len(v.envs), ErrAllocationInfeasible)
	}

	out := make([]VecStepResult, len(v.envs))
	errs := make([]error, len(v.envs))
	var wg sync.WaitGroup
	for i, e := range v.envs {
		wg.Add(1)
		go func(i int, e *Env) {
			defer wg.Done()
			res, err := e.Step(ctx, actions[i])
			if err != nil {
				errs[i] = fmt.Errorf("env %d: %w", i, err)
				return
			}
			out[i] = VecStepResult{StepResult: res}
			if !res.Done {
				return
			}
			obs, err := e.Reset(freshEpisode(ctx))
			if err != nil {
				errs[i] = fmt.Errorf("env %d reset: %w", i, err)
				return
			}
			out[i].TerminalObservation = res.Observation
			out[i].Observation = obs
		}(i, e)
	}
	wg.Wait()
	return out, errors.Join(errs...)
}

func freshEpisode(ctx context.Context) context.Context {
	return logging.ContextWithEpisodeID(ctx, logging.NewEpisodeID())
}
