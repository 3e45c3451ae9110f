package kb

import (
	"errors"
	"fmt"
	"sync"

	"github.com/signalsfoundry/supplier-sim/model"
)

var (
	// ErrIndexLookup indicates a day index outside a store's range.
	ErrIndexLookup = errors.New("index lookup out of range")
	// ErrDuplicateDay indicates two panel rows claim the same day.
	ErrDuplicateDay = errors.New("duplicate panel day")
	// ErrMissingDay indicates a gap in the panel's day sequence.
	ErrMissingDay = errors.New("missing panel day")
)

// Panel is an immutable, day-indexed store of supplier rows. It is safe to
// share across episodes and goroutines.
type Panel struct {
	mu   sync.RWMutex
	rows []model.PanelRow
}

// NewPanel indexes rows by their Day field. Days must cover 0..len(rows)-1
// exactly once; input order does not matter.
func NewPanel(rows []model.PanelRow) (*Panel, error) {
	indexed := make([]model.PanelRow, len(rows))
	seen := make([]bool, len(rows))
	for _, r := range rows {
		if r.Day < 0 || r.Day >= len(rows) {
			return nil, fmt.Errorf("panel day %d with %d rows: %w", r.Day, len(rows), ErrMissingDay)
		}
		if seen[r.Day] {
			return nil, fmt.Errorf("panel day %d: %w", r.Day, ErrDuplicateDay)
		}
		seen[r.Day] = true
		indexed[r.Day] = r
	}
	return &Panel{rows: indexed}, nil
}

// Len returns the number of days in the panel.
func (p *Panel) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.rows)
}

// Row returns the row for day. The returned slices and matrix are shared with
// the panel; callers MUST treat them as read-only.
func (p *Panel) Row(day int) (model.PanelRow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if day < 0 || day >= len(p.rows) {
		return model.PanelRow{}, fmt.Errorf("panel row %d of %d: %w", day, len(p.rows), ErrIndexLookup)
	}
	return p.rows[day], nil
}

// Each calls fn for every row in day order, stopping at the first error.
func (p *Panel) Each(fn func(model.PanelRow) error) error {
	p.mu.RLock()
	rows := append([]model.PanelRow(nil), p.rows...)
	p.mu.RUnlock()

	for _, r := range rows {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}
