package trajectory

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/supplier-sim/core"
)

const scenarioDoc = `{
  "days": [
    {"day": 0, "date": "2024-01-01", "features": [[1], [2]], "price": [10, 20], "quantity": [5, 5]},
    {"day": 1, "date": "2024-01-02", "features": [[3], [4]], "price": [10, 20], "quantity": [5, 5]},
    {"day": 2, "date": "2024-01-03", "features": [[5], [6]], "price": [10, 20], "quantity": [5, 5], "terminal": true}
  ],
  "demand": [6, 8, 0]
}`

// finishedEpisode runs a three-day episode with a shortage baseline of 4 to
// its terminal step.
func finishedEpisode(t *testing.T, opts ...core.EnvOption) (*core.Env, core.Summary) {
	t.Helper()
	sc, err := core.LoadScenario(strings.NewReader(scenarioDoc))
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	cfg := sc.Config()
	cfg.InitialShortage = 4
	env, err := core.NewEnv(cfg, opts...)
	if err != nil {
		t.Fatalf("NewEnv: %v", err)
	}
	ctx := context.Background()
	if _, err := env.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	for {
		out, err := env.Step(ctx, []int{0, 1})
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		if out.Done {
			return env, *out.Info.Summary
		}
	}
}

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "trajectories.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndReadEpisode(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	env, sum := finishedEpisode(t)

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := s.SaveEpisode(ctx, Episode{
		ID:        env.EpisodeID(),
		Policy:    "cheapest",
		Seed:      7,
		StartedAt: started,
		History:   env.History(),
		Summary:   sum,
	}); err != nil {
		t.Fatalf("SaveEpisode: %v", err)
	}

	ep, err := s.Episode(ctx, env.EpisodeID())
	if err != nil {
		t.Fatalf("Episode: %v", err)
	}
	if ep.Policy != "cheapest" || ep.Seed != 7 || ep.Steps != 2 || !ep.StartedAt.Equal(started) {
		t.Fatalf("unexpected episode row: %+v", ep)
	}
	if ep.TotalCost != sum.TotalCost || ep.AvgUnitPrice != sum.AvgUnitPrice {
		t.Fatalf("summary mismatch: got %+v want %+v", ep, sum)
	}
	if ep.InitialShortage != 4 {
		t.Fatalf("initial shortage = %v, want 4", ep.InitialShortage)
	}

	steps, err := s.Steps(ctx, env.EpisodeID())
	if err != nil {
		t.Fatalf("Steps: %v", err)
	}
	if len(steps) != env.History().Len() {
		t.Fatalf("stored %d steps, want %d", len(steps), env.History().Len())
	}
	if steps[0].Shortage != 0 {
		t.Fatalf("seed shortage = %v, want 0 regardless of baseline", steps[0].Shortage)
	}
	if steps[1].Demand != 6 || steps[2].Demand != 8 {
		t.Fatalf("stored demand = %v,%v, want 6,8", steps[1].Demand, steps[2].Demand)
	}
	if !steps[2].Date.Equal(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("step date = %v", steps[2].Date)
	}
}

func TestUndefinedStatsRoundTripAsNull(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	env, sum := finishedEpisode(t, core.WithResolver(core.ResolverFunc(
		func(_ context.Context, prices, _ []float64, demand, _ float64) ([]float64, error) {
			return []float64{demand / 2, demand / 2}, nil
		})))
	// Demand is met exactly on both days, so mean shortage is zero.
	if sum.LogMeanShortage.Valid {
		t.Fatalf("expected an undefined shortage statistic, got %+v", sum.LogMeanShortage)
	}
	if err := s.SaveEpisode(ctx, Episode{ID: "ep-null", Policy: "random", History: env.History(), Summary: sum}); err != nil {
		t.Fatalf("SaveEpisode: %v", err)
	}
	ep, err := s.Episode(ctx, "ep-null")
	if err != nil {
		t.Fatalf("Episode: %v", err)
	}
	if ep.LogMeanShortage.Valid || !ep.LogMeanCost.Valid {
		t.Fatalf("validity not preserved: %+v", ep)
	}
}

func TestListEpisodesAndMissing(t *testing.T) {
	ctx := context.Background()
	s := tempStore(t)
	env, sum := finishedEpisode(t)
	for _, id := range []string{"a", "b"} {
		if err := s.SaveEpisode(ctx, Episode{ID: id, Policy: "random", History: env.History(), Summary: sum}); err != nil {
			t.Fatalf("SaveEpisode(%s): %v", id, err)
		}
	}
	eps, err := s.ListEpisodes(ctx)
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(eps) != 2 {
		t.Fatalf("ListEpisodes = %d rows, want 2", len(eps))
	}
	if _, err := s.Steps(ctx, "nope"); !errors.Is(err, ErrEpisodeNotFound) {
		t.Fatalf("Steps(nope) error = %v, want ErrEpisodeNotFound", err)
	}
	if err := s.SaveEpisode(ctx, Episode{ID: "a", Policy: "random", History: env.History(), Summary: sum}); err == nil {
		t.Fatalf("expected duplicate episode id to fail")
	}
}

func TestWriteCSV(t *testing.T) {
	env, _ := finishedEpisode(t)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, env.History()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != env.History().Len()+1 {
		t.Fatalf("csv rows = %d, want header + %d", len(records), env.History().Len())
	}
	if strings.Join(records[0], ",") != "date,purchase,demand,shortage,cost,reward" {
		t.Fatalf("header = %v", records[0])
	}
	if records[1][0] != "2024-01-01" || records[2][2] != "6" {
		t.Fatalf("unexpected rows: %v", records[1:3])
	}
	if d, err := ParseDate(records[3][0]); err != nil || d.Day() != 3 {
		t.Fatalf("ParseDate(%q) = %v, %v", records[3][0], d, err)
	}
}

func TestExportTables(t *testing.T) {
	env, _ := finishedEpisode(t)
	dir := filepath.Join(t.TempDir(), "results")
	paths, err := ExportTables(dir, "ep1", env.History())
	if err != nil {
		t.Fatalf("ExportTables: %v", err)
	}
	if len(paths) != 5 {
		t.Fatalf("wrote %d files, want 5", len(paths))
	}
	data, err := os.ReadFile(filepath.Join(dir, "ep1_shortage.csv"))
	if err != nil {
		t.Fatalf("read shortage table: %v", err)
	}
	if !strings.HasPrefix(string(data), "date,shortage\n2024-01-01,0\n") {
		t.Fatalf("shortage table = %q", data)
	}
}
