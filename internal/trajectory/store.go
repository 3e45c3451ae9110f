// Package trajectory persists finished episodes to SQLite and exports
// history tables as CSV.
package trajectory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/signalsfoundry/supplier-sim/core"
	"github.com/signalsfoundry/supplier-sim/model"
	_ "modernc.org/sqlite"
)

// ErrEpisodeNotFound indicates a lookup for an episode that was never saved.
var ErrEpisodeNotFound = errors.New("episode not found")

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	episode_id        TEXT PRIMARY KEY,
	policy            TEXT NOT NULL,
	seed              INTEGER NOT NULL,
	steps             INTEGER NOT NULL,
	total_cost        REAL NOT NULL,
	total_purchase    REAL NOT NULL,
	initial_shortage  REAL NOT NULL,
	log_mean_cost     REAL,
	log_mean_shortage REAL,
	avg_unit_price    REAL,
	started_at        TEXT NOT NULL,
	saved_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS steps (
	episode_id TEXT NOT NULL,
	idx        INTEGER NOT NULL,
	date       TEXT NOT NULL,
	purchase   REAL NOT NULL,
	demand     REAL NOT NULL,
	cost       REAL NOT NULL,
	shortage   REAL NOT NULL,
	reward     REAL NOT NULL,
	PRIMARY KEY (episode_id, idx),
	FOREIGN KEY (episode_id) REFERENCES episodes(episode_id)
);
`

// Store keeps finished episodes in SQLite.
type Store struct {
	db *sql.DB
}

// Episode is a finished episode ready to be saved.
type Episode struct {
	ID        string
	Policy    string
	Seed      int64
	StartedAt time.Time
	History   *core.History
	Summary   core.Summary
}

// EpisodeRow is the stored summary of an episode. Undefined statistics are
// stored as NULL and read back with Valid=false.
type EpisodeRow struct {
	ID              string
	Policy          string
	Seed            int64
	Steps           int
	TotalCost       float64
	TotalPurchase   float64
	InitialShortage float64
	LogMeanCost     model.Stat
	LogMeanShortage model.Stat
	AvgUnitPrice    model.Stat
	StartedAt       time.Time
	SavedAt         time.Time
}

// StepRow is one stored history entry; index 0 is the episode seed.
type StepRow struct {
	Index    int
	Date     time.Time
	Purchase float64
	Demand   float64
	Cost     float64
	Shortage float64
	Reward   float64
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveEpisode writes the episode summary and every history entry in one
// transaction.
func (s *Store) SaveEpisode(ctx context.Context, ep Episode) error {
	if ep.ID == "" {
		return fmt.Errorf("save episode: empty id")
	}
	if ep.History == nil {
		return fmt.Errorf("save episode %s: nil history", ep.ID)
	}
	if err := ep.History.Check(); err != nil {
		return fmt.Errorf("save episode %s: %w", ep.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO episodes (episode_id, policy, seed, steps, total_cost, total_purchase, initial_shortage,
		                       log_mean_cost, log_mean_shortage, avg_unit_price, started_at, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.Policy, ep.Seed, ep.Summary.Steps, ep.Summary.TotalCost, ep.Summary.TotalPurchase, ep.History.Baseline(),
		nullStat(ep.Summary.LogMeanCost), nullStat(ep.Summary.LogMeanShortage), nullStat(ep.Summary.AvgUnitPrice),
		ep.StartedAt.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO steps (episode_id, idx, date, purchase, demand, cost, shortage, reward)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare steps: %w", err)
	}
	defer stmt.Close()

	h := ep.History
	dates := h.Dates()
	purchase := h.PurchaseTable().Values()
	demand := h.DemandTable().Values()
	cost := h.CostTable().Values()
	shortage := h.ShortageTable().Values()
	reward := h.ReturnTable().Values()
	for i := range dates {
		if _, err := stmt.ExecContext(ctx, ep.ID, i, dates[i].UTC().Format(time.RFC3339Nano),
			purchase[i], demand[i], cost[i], shortage[i], reward[i]); err != nil {
			return fmt.Errorf("insert step %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Episode retrieves one stored episode summary.
func (s *Store) Episode(ctx context.Context, id string) (EpisodeRow, error) {
	row := s.db.QueryRowContext(ctx, episodeSelect+` WHERE episode_id = ?`, id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return EpisodeRow{}, fmt.Errorf("episode %s: %w", id, ErrEpisodeNotFound)
	}
	if err != nil {
		return EpisodeRow{}, fmt.Errorf("get episode %s: %w", id, err)
	}
	return ep, nil
}

// ListEpisodes returns every stored episode, oldest first.
func (s *Store) ListEpisodes(ctx context.Context) ([]EpisodeRow, error) {
	rows, err := s.db.QueryContext(ctx, episodeSelect+` ORDER BY saved_at, episode_id`)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []EpisodeRow
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// Steps returns the stored history of an episode in step order.
func (s *Store) Steps(ctx context.Context, episodeID string) ([]StepRow, error) {
	if _, err := s.Episode(ctx, episodeID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, date, purchase, demand, cost, shortage, reward
		 FROM steps WHERE episode_id = ? ORDER BY idx`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var out []StepRow
	for rows.Next() {
		var r StepRow
		var date string
		if err := rows.Scan(&r.Index, &date, &r.Purchase, &r.Demand, &r.Cost, &r.Shortage, &r.Reward); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		r.Date, _ = time.Parse(time.RFC3339Nano, date)
		out = append(out, r)
	}
	return out, rows.Err()
}

const episodeSelect = `SELECT episode_id, policy, seed, steps, total_cost, total_purchase, initial_shortage,
	log_mean_cost, log_mean_shortage, avg_unit_price, started_at, saved_at FROM episodes`

type scanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row scanner) (EpisodeRow, error) {
	var ep EpisodeRow
	var cost, shortage, price sql.NullFloat64
	var started, saved string
	if err := row.Scan(&ep.ID, &ep.Policy, &ep.Seed, &ep.Steps, &ep.TotalCost, &ep.TotalPurchase, &ep.InitialShortage,
		&cost, &shortage, &price, &started, &saved); err != nil {
		return EpisodeRow{}, err
	}
	ep.LogMeanCost = statFromNull(cost)
	ep.LogMeanShortage = statFromNull(shortage)
	ep.AvgUnitPrice = statFromNull(price)
	ep.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	ep.SavedAt, _ = time.Parse(time.RFC3339Nano, saved)
	return ep, nil
}

func nullStat(s model.Stat) sql.NullFloat64 {
	if !s.Valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: s.Value, Valid: true}
}

func statFromNull(n sql.NullFloat64) model.Stat {
	if !n.Valid {
		return model.Stat{}
	}
	return model.Defined(n.Float64)
}
