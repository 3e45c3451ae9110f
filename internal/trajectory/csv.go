package trajectory

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/signalsfoundry/supplier-sim/core"
)

const dateLayout = "2006-01-02"

// WriteCSV writes the full history as one row per entry:
// date,purchase,demand,shortage,cost,reward.
func WriteCSV(w io.Writer, h *core.History) error {
	if err := h.Check(); err != nil {
		return err
	}
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"date", "purchase", "demand", "shortage", "cost", "reward"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	dates := h.Dates()
	cols := [][]float64{
		h.PurchaseTable().Values(),
		h.DemandTable().Values(),
		h.ShortageTable().Values(),
		h.CostTable().Values(),
		h.ReturnTable().Values(),
	}
	for i, d := range dates {
		rec := make([]string, 0, len(cols)+1)
		rec = append(rec, d.Format(dateLayout))
		for _, c := range cols {
			rec = append(rec, formatFloat(c[i]))
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTable writes a (date, value) projection with the given value header.
func WriteTable(w io.Writer, valueHeader string, t core.Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"date", valueHeader}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range t {
		if err := writer.Write([]string{r.Date.Format(dateLayout), formatFloat(r.Value)}); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportTables writes one CSV per reporting table into dir, prefixed by the
// episode ID, and returns the written paths.
func ExportTables(dir, episodeID string, h *core.History) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	tables := []struct {
		name string
		t    core.Table
	}{
		{"purchase", h.PurchaseTable()},
		{"demand", h.DemandTable()},
		{"shortage", h.ShortageTable()},
		{"return", h.ReturnTable()},
		{"cost", h.CostTable()},
	}
	paths := make([]string, 0, len(tables))
	for _, tbl := range tables {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", episodeID, tbl.name))
		if err := writeFile(path, func(w io.Writer) error { return WriteTable(w, tbl.name, tbl.t) }); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseDate reads a date written by this package.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
