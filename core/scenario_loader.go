// core/scenario_loader.go
package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/signalsfoundry/supplier-sim/kb"
	"github.com/signalsfoundry/supplier-sim/model"
	"gonum.org/v1/gonum/mat"
)

// Scenario is a panel and demand schedule loaded from JSON, plus the shape
// inferred from the first row.
type Scenario struct {
	Panel       *kb.Panel
	Demand      *kb.DemandSchedule
	SupplierNum int
	FeatureDim  int
}

// internal JSON shapes, unexported so the wire format can evolve.
type scenarioJSON struct {
	Days   []panelDayJSON  `json:"days"`
	Demand json.RawMessage `json:"demand"`
}

type panelDayJSON struct {
	Day      int         `json:"day"`
	Date     string      `json:"date"`     // optional; YYYY-MM-DD or RFC 3339
	Features [][]float64 `json:"features"` // one row per supplier
	Price    []float64   `json:"price"`
	Quantity []float64   `json:"quantity"`
	Terminal bool        `json:"terminal"`
}

type demandJSON struct {
	Demand []float64 `json:"demand"`
}

// LoadScenario reads a scenario document from r. The "demand" member may be
// a bare array or an object with a "demand" array.
//
// Structural errors (ragged features, mismatched vector lengths, day gaps)
// fail here; shape agreement with an EnvConfig is checked by NewEnv.
func LoadScenario(r io.Reader) (*Scenario, error) {
	var payload scenarioJSON
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadScenario: decode failed: %w", err)
	}
	if len(payload.Days) == 0 {
		return nil, fmt.Errorf("LoadScenario: no days")
	}

	rows := make([]model.PanelRow, 0, len(payload.Days))
	for _, d := range payload.Days {
		row, err := d.toRow()
		if err != nil {
			return nil, fmt.Errorf("LoadScenario: day %d: %w", d.Day, err)
		}
		rows = append(rows, row)
	}
	panel, err := kb.NewPanel(rows)
	if err != nil {
		return nil, fmt.Errorf("LoadScenario: %w", err)
	}

	demand, err := decodeDemand(payload.Demand)
	if err != nil {
		return nil, fmt.Errorf("LoadScenario: %w", err)
	}

	first, _ := panel.Row(0)
	return &Scenario{
		Panel:       panel,
		Demand:      kb.NewDemandSchedule(demand),
		SupplierNum: first.SupplierCount(),
		FeatureDim:  first.FeatureDim(),
	}, nil
}

// LoadScenarioFile opens path and calls LoadScenario.
func LoadScenarioFile(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return LoadScenario(f)
}

// LoadDemand reads a standalone demand schedule, either a bare JSON array or
// {"demand": [...]}.
func LoadDemand(r io.Reader) (*kb.DemandSchedule, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("LoadDemand: read failed: %w", err)
	}
	values, err := decodeDemand(raw)
	if err != nil {
		return nil, fmt.Errorf("LoadDemand: %w", err)
	}
	return kb.NewDemandSchedule(values), nil
}

// Config returns an EnvConfig over the scenario with one action code per
// supplier subset and unit reward scaling. Callers adjust the rest.
func (s *Scenario) Config() EnvConfig {
	actions := 1
	if s.SupplierNum < 31 {
		actions = 1 << s.SupplierNum
	}
	return EnvConfig{
		Panel:         s.Panel,
		Demand:        s.Demand,
		SupplierNum:   s.SupplierNum,
		RewardScaling: 1,
		StateSpace:    s.FeatureDim,
		ActionSpace:   actions,
	}
}

func (d panelDayJSON) toRow() (model.PanelRow, error) {
	n := len(d.Price)
	if n == 0 {
		return model.PanelRow{}, fmt.Errorf("no suppliers")
	}
	if len(d.Quantity) != n {
		return model.PanelRow{}, fmt.Errorf("%d quantities for %d prices", len(d.Quantity), n)
	}
	if len(d.Features) != n {
		return model.PanelRow{}, fmt.Errorf("%d feature rows for %d suppliers", len(d.Features), n)
	}
	dim := len(d.Features[0])
	if dim == 0 {
		return model.PanelRow{}, fmt.Errorf("empty feature rows")
	}
	flat := make([]float64, 0, n*dim)
	for i, f := range d.Features {
		if len(f) != dim {
			return model.PanelRow{}, fmt.Errorf("feature row %d has %d columns, want %d", i, len(f), dim)
		}
		flat = append(flat, f...)
	}
	date, err := parseDate(d.Date)
	if err != nil {
		return model.PanelRow{}, err
	}
	return model.PanelRow{
		Day:      d.Day,
		Date:     date,
		Features: mat.NewDense(n, dim, flat),
		Price:    append([]float64(nil), d.Price...),
		Quantity: append([]float64(nil), d.Quantity...),
		Terminal: d.Terminal,
	}, nil
}

func decodeDemand(raw []byte) ([]float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing demand")
	}
	var values []float64
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("decode demand: %w", err)
		}
		return values, nil
	}
	var obj demandJSON
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode demand: %w", err)
	}
	return obj.Demand, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q: want YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}
