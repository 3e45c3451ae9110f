package timectrl

import (
	"sync"
	"time"
)

// SimClock gives the environment access to simulation time without tying it
// to a concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// Advance moves simulation time forward by one tick and returns it.
	Advance() time.Time
	// SetTime jumps to t.
	SetTime(t time.Time)
}

// Mode describes how the TimeController paces ticks when Start is used.
type Mode int

const (
	// RealTime waits one Tick of wall-clock time between ticks.
	RealTime Mode = iota
	// Accelerated fires ticks as fast as listeners return.
	Accelerated
)

func (m Mode) String() string {
	switch m {
	case RealTime:
		return "real-time"
	case Accelerated:
		return "accelerated"
	default:
		return "unknown"
	}
}

// DefaultDayTick is the simulated length of one environment day.
const DefaultDayTick = 24 * time.Hour

// TimeController tracks simulation time for a single episode and can drive
// listeners from a goroutine. It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// Pace is the wall-clock delay between ticks in RealTime mode. Zero
	// falls back to Tick.
	Pace time.Duration

	currentTime time.Time
	listeners   []func(time.Time) bool
}

// NewTimeController constructs a controller positioned at start.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	if tick <= 0 {
		tick = DefaultDayTick
	}
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps the controller to t.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.mu.Unlock()
}

// Advance moves simulation time forward by one Tick.
func (tc *TimeController) Advance() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = tc.currentTime.Add(tc.Tick)
	return tc.currentTime
}

// Reset rewinds to StartTime.
func (tc *TimeController) Reset() {
	tc.SetTime(tc.StartTime)
}

// DateFor returns the date of the given day offset from StartTime.
func (tc *TimeController) DateFor(day int) time.Time {
	return tc.StartTime.Add(time.Duration(day) * tc.Tick)
}

// AddListener registers a callback invoked on every tick started by Start.
// A listener returning false stops the run.
func (tc *TimeController) AddListener(fn func(time.Time) bool) {
	tc.mu.Lock()
	tc.listeners = append(tc.listeners, fn)
	tc.mu.Unlock()
}

// Start ticks until maxTicks have fired (0 means unbounded) or a listener
// returns false. It returns a channel closed when the run finishes.
func (tc *TimeController) Start(maxTicks int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.RLock()
		listeners := append([]func(time.Time) bool(nil), tc.listeners...)
		pace := tc.Pace
		tc.mu.RUnlock()
		if pace <= 0 {
			pace = tc.Tick
		}

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(pace)
			defer ticker.Stop()
		}

		for fired := 0; maxTicks <= 0 || fired < maxTicks; fired++ {
			if ticker != nil {
				<-ticker.C
			}
			simTime := tc.Advance()
			for _, fn := range listeners {
				if !fn(simTime) {
					return
				}
			}
		}
	}()
	return done
}
