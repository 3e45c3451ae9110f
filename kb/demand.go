package kb

import "fmt"

// DemandSchedule holds target demand per day. It is indexed by the same
// logical day as a Panel but is a separate container; keeping the two in
// lockstep is the caller's job.
type DemandSchedule struct {
	values []float64
}

// NewDemandSchedule copies values into a new schedule.
func NewDemandSchedule(values []float64) *DemandSchedule {
	return &DemandSchedule{values: append([]float64(nil), values...)}
}

// Len returns the number of scheduled days.
func (d *DemandSchedule) Len() int {
	return len(d.values)
}

// Demand returns the target demand for day.
func (d *DemandSchedule) Demand(day int) (float64, error) {
	if day < 0 || day >= len(d.values) {
		return 0, fmt.Errorf("demand day %d of %d: %w", day, len(d.values), ErrIndexLookup)
	}
	return d.values[day], nil
}
