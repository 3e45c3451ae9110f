package envserver

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/signalsfoundry/supplier-sim/core"
	"github.com/signalsfoundry/supplier-sim/model"
	"gonum.org/v1/gonum/mat"
	"google.golang.org/protobuf/types/known/structpb"
)

// Field names shared by the server and the client.
const (
	fieldSessionID    = "session_id"
	fieldEpisodeID    = "episode_id"
	fieldAction       = "action"
	fieldCode         = "code"
	fieldObservation  = "observation"
	fieldReward       = "reward"
	fieldDone         = "done"
	fieldInfo         = "info"
	fieldDay          = "day"
	fieldPhase        = "phase"
	fieldSupplierNum  = "supplier_num"
	fieldStateSpace   = "state_space"
	fieldActionSpace  = "action_space"
	fieldDays         = "days"
	fieldDataTerminal = "data_terminal"
	fieldScaledReward = "scaled_reward"
	fieldAllocation   = "allocation"
	fieldGap          = "gap"
	fieldCost         = "cost"
	fieldSummary      = "summary"
	fieldDates        = "dates"
	fieldPurchase     = "purchase"
	fieldDemand       = "demand"
	fieldShortage     = "shortage"
)

func matrixValue(m *mat.Dense) []interface{} {
	if m == nil {
		return []interface{}{}
	}
	r, c := m.Dims()
	rows := make([]interface{}, r)
	for i := 0; i < r; i++ {
		row := make([]interface{}, c)
		for j := 0; j < c; j++ {
			row[j] = m.At(i, j)
		}
		rows[i] = row
	}
	return rows
}

func floatsValue(v []float64) []interface{} {
	out := make([]interface{}, len(v))
	for i, x := range v {
		out[i] = x
	}
	return out
}

func statValue(s model.Stat) map[string]interface{} {
	return map[string]interface{}{"value": s.Value, "valid": s.Valid}
}

func summaryValue(s *core.Summary) map[string]interface{} {
	warnings := make([]interface{}, len(s.Warnings))
	for i, w := range s.Warnings {
		warnings[i] = w.Error()
	}
	return map[string]interface{}{
		"steps":             s.Steps,
		"log_mean_cost":     statValue(s.LogMeanCost),
		"log_mean_shortage": statValue(s.LogMeanShortage),
		"avg_unit_price":    statValue(s.AvgUnitPrice),
		"total_cost":        s.TotalCost,
		"total_purchase":    s.TotalPurchase,
		"warnings":          warnings,
	}
}

func stepValue(res core.StepResult) map[string]interface{} {
	info := map[string]interface{}{
		fieldDay:          res.Info.Day,
		fieldDataTerminal: res.Info.DataTerminal,
		fieldScaledReward: res.Info.ScaledReward,
		fieldAllocation:   floatsValue(res.Info.Allocation),
		fieldGap:          res.Info.Gap,
		fieldCost:         res.Info.Cost,
	}
	if res.Info.Summary != nil {
		info[fieldSummary] = summaryValue(res.Info.Summary)
	}
	return map[string]interface{}{
		fieldObservation: matrixValue(res.Observation),
		fieldReward:      res.Reward,
		fieldDone:        res.Done,
		fieldInfo:        info,
	}
}

func historyValue(h *core.History) map[string]interface{} {
	dates := h.Dates()
	ds := make([]interface{}, len(dates))
	for i, d := range dates {
		ds[i] = d.Format(time.RFC3339)
	}
	return map[string]interface{}{
		fieldDates:    ds,
		fieldPurchase: floatsValue(h.PurchaseTable().Values()),
		fieldDemand:   floatsValue(h.DemandTable().Values()),
		fieldShortage: floatsValue(h.ShortageTable().Values()),
		fieldCost:     floatsValue(h.CostTable().Values()),
		fieldReward:   floatsValue(h.ReturnTable().Values()),
	}
}

func stringField(in *structpb.Struct, key string) (string, error) {
	v, ok := in.GetFields()[key]
	if !ok {
		return "", fmt.Errorf("%s is required: %w", key, ErrBadRequest)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || s.StringValue == "" {
		return "", fmt.Errorf("%s must be a non-empty string: %w", key, ErrBadRequest)
	}
	return s.StringValue, nil
}

func intValue(v *structpb.Value, key string) (int, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s must be a number: %w", key, ErrBadRequest)
	}
	f := n.NumberValue
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("%s must be an integer, got %v: %w", key, f, ErrBadRequest)
	}
	return int(f), nil
}

// actionField reads either an explicit index list or a discrete code.
func actionField(in *structpb.Struct) (action []int, code int, isCode bool, err error) {
	fields := in.GetFields()
	if v, ok := fields[fieldCode]; ok {
		if _, both := fields[fieldAction]; both {
			return nil, 0, false, fmt.Errorf("set only one of action and code: %w", ErrBadRequest)
		}
		code, err = intValue(v, fieldCode)
		return nil, code, true, err
	}
	v, ok := fields[fieldAction]
	if !ok {
		return nil, 0, false, fmt.Errorf("action or code is required: %w", ErrBadRequest)
	}
	list, ok := v.GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, 0, false, fmt.Errorf("action must be a list: %w", ErrBadRequest)
	}
	action = make([]int, 0, len(list.ListValue.GetValues()))
	for i, item := range list.ListValue.GetValues() {
		idx, err := intValue(item, fmt.Sprintf("action[%d]", i))
		if err != nil {
			return nil, 0, false, err
		}
		action = append(action, idx)
	}
	return action, 0, false, nil
}

func numberOf(in *structpb.Struct, key string) float64 {
	return in.GetFields()[key].GetNumberValue()
}

func intOf(in *structpb.Struct, key string) int {
	return int(numberOf(in, key))
}

func floatsOf(v *structpb.Value) []float64 {
	items := v.GetListValue().GetValues()
	out := make([]float64, len(items))
	for i, item := range items {
		out[i] = item.GetNumberValue()
	}
	return out
}

func matrixOf(v *structpb.Value) (*mat.Dense, error) {
	rows := v.GetListValue().GetValues()
	if len(rows) == 0 {
		return nil, errors.New("empty observation")
	}
	cols := len(rows[0].GetListValue().GetValues())
	if cols == 0 {
		return nil, errors.New("empty observation row")
	}
	m := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		vals := floatsOf(row)
		if len(vals) != cols {
			return nil, fmt.Errorf("observation row %d has %d values, want %d", i, len(vals), cols)
		}
		m.SetRow(i, vals)
	}
	return m, nil
}

func statOf(v *structpb.Value) model.Stat {
	s := v.GetStructValue()
	return model.Stat{Value: numberOf(s, "value"), Valid: s.GetFields()["valid"].GetBoolValue()}
}

func summaryOf(s *structpb.Struct) *core.Summary {
	f := s.GetFields()
	out := &core.Summary{
		Steps:           intOf(s, "steps"),
		LogMeanCost:     statOf(f["log_mean_cost"]),
		LogMeanShortage: statOf(f["log_mean_shortage"]),
		AvgUnitPrice:    statOf(f["avg_unit_price"]),
		TotalCost:       numberOf(s, "total_cost"),
		TotalPurchase:   numberOf(s, "total_purchase"),
	}
	for _, w := range f["warnings"].GetListValue().GetValues() {
		out.Warnings = append(out.Warnings, remoteWarning(w.GetStringValue()))
	}
	return out
}

// remoteWarning is a summary warning received over the wire.
type remoteWarning string

func (w remoteWarning) Error() string { return string(w) }

func (remoteWarning) Unwrap() error { return core.ErrDegenerateSummary }
