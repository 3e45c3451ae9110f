package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/supplier-sim/core"
	"github.com/signalsfoundry/supplier-sim/internal/config"
	"github.com/signalsfoundry/supplier-sim/internal/logging"
	"github.com/signalsfoundry/supplier-sim/internal/observability"
	"github.com/signalsfoundry/supplier-sim/internal/policy"
	"github.com/signalsfoundry/supplier-sim/internal/trajectory"
	"github.com/signalsfoundry/supplier-sim/timectrl"
	"github.com/spf13/cobra"
)

// pacing controls how fast episodes are driven.
type pacing struct {
	realtime bool
	pace     time.Duration // wall-clock delay per day in real-time mode
}

func newRunCmd() *cobra.Command {
	var (
		episodes   int
		policyName string
		seed       int64
		outDir     string
		p          pacing
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run episodes with a baseline policy and export their histories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("episodes") {
				cfg.Output.Episodes = episodes
			}
			if cmd.Flags().Changed("policy") {
				cfg.Output.Policy = policyName
			}
			if cmd.Flags().Changed("seed") {
				cfg.Output.Seed = seed
			}
			if cmd.Flags().Changed("out") {
				cfg.Output.Dir = outDir
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			_, err = runEpisodes(ctx, cfg, logging.NewFromEnv(), cmd.OutOrStdout(), p)
			return err
		},
	}
	cmd.Flags().IntVarP(&episodes, "episodes", "n", 1, "Episodes to run (overrides output.episodes)")
	cmd.Flags().StringVarP(&policyName, "policy", "p", "random", "Policy: random, cheapest or softmax (overrides output.policy)")
	cmd.Flags().Int64Var(&seed, "seed", 1, "Base seed; episode i uses seed+i (overrides output.seed)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "results", "Directory for CSV exports (overrides output.dir)")
	cmd.Flags().BoolVar(&p.realtime, "realtime", false, "Pace days in wall-clock time instead of running accelerated")
	cmd.Flags().DurationVar(&p.pace, "pace", time.Second, "Wall-clock delay per day with --realtime")
	return cmd
}

// runEpisodes plays cfg.Output.Episodes episodes and returns their summaries.
func runEpisodes(ctx context.Context, cfg *config.Config, log logging.Logger, out io.Writer, p pacing) ([]core.Summary, error) {
	sc, err := cfg.LoadScenario()
	if err != nil {
		return nil, err
	}
	envCfg := cfg.EnvConfig(sc)

	shutdown, err := observability.InitTracing(ctx, cfg.TracingSettings(envCfg), log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	metrics, err := observability.NewEnvCollector(prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("init env metrics: %w", err)
	}
	opts := append(cfg.EnvOptions(), core.WithLogger(log), core.WithMetrics(metrics))
	env, err := core.NewEnv(envCfg, opts...)
	if err != nil {
		return nil, err
	}

	var store *trajectory.Store
	if cfg.Output.SQLite != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Output.SQLite), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
		if store, err = trajectory.NewStore(cfg.Output.SQLite); err != nil {
			return nil, err
		}
		defer store.Close()
	}

	summaries := make([]core.Summary, 0, cfg.Output.Episodes)
	for i := 0; i < cfg.Output.Episodes; i++ {
		seed := cfg.Output.Seed + int64(i)
		pol, err := policy.New(cfg.Output.Policy, envCfg.SupplierNum, envCfg.ActionSpace, cfg.Output.SubsetSize, seed)
		if err != nil {
			return summaries, err
		}
		started := time.Now().UTC()
		if _, err := env.Reset(ctx); err != nil {
			return summaries, err
		}

		last, err := playEpisode(ctx, env, pol, p)
		if err != nil {
			return summaries, fmt.Errorf("episode %d: %w", i, err)
		}
		if last.Info.Summary == nil {
			return summaries, fmt.Errorf("episode %d ended without a summary", i)
		}
		sum := *last.Info.Summary
		summaries = append(summaries, sum)

		if cfg.Output.CSV {
			if err := exportCSV(cfg.Output.Dir, env); err != nil {
				return summaries, err
			}
		}
		if store != nil {
			if err := store.SaveEpisode(ctx, trajectory.Episode{
				ID:        env.EpisodeID(),
				Policy:    pol.Name(),
				Seed:      seed,
				StartedAt: started,
				History:   env.History(),
				Summary:   sum,
			}); err != nil {
				return summaries, err
			}
		}
		fmt.Fprintf(out, "episode %s policy=%s steps=%d log_mean_cost=%s log_mean_shortage=%s avg_unit_price=%s\n",
			env.EpisodeID(), pol.Name(), sum.Steps,
			formatStat(sum.LogMeanCost), formatStat(sum.LogMeanShortage), formatStat(sum.AvgUnitPrice))
	}
	return summaries, nil
}

// playEpisode drives env to its terminal step with a TimeController, one
// policy decision per tick.
func playEpisode(ctx context.Context, env *core.Env, pol policy.Policy, p pacing) (core.StepResult, error) {
	mode := timectrl.Accelerated
	if p.realtime {
		mode = timectrl.RealTime
	}
	driver := timectrl.NewTimeController(time.Now().UTC(), timectrl.DefaultDayTick, mode)
	driver.Pace = p.pace
	if p.realtime && driver.Pace <= 0 {
		driver.Pace = time.Second
	}

	var (
		last    core.StepResult
		stepErr error
	)
	driver.AddListener(func(time.Time) bool {
		if stepErr = ctx.Err(); stepErr != nil {
			return false
		}
		action, err := pol.Act(env.CurrentRow())
		if err != nil {
			stepErr = err
			return false
		}
		last, stepErr = env.Step(ctx, action)
		return stepErr == nil && !last.Done
	})
	<-driver.Start(0)
	return last, stepErr
}

func exportCSV(dir string, env *core.Env) error {
	if _, err := trajectory.ExportTables(dir, env.EpisodeID(), env.History()); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, env.EpisodeID()+"_history.csv"))
	if err != nil {
		return fmt.Errorf("create history csv: %w", err)
	}
	if err := trajectory.WriteCSV(f, env.History()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
