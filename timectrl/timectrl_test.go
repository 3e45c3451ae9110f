package timectrl

import (
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, DefaultDayTick, RealTime)

	newNow := start.Add(42 * time.Hour)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
	tc.Reset()
	if got := tc.Now(); !got.Equal(start) {
		t.Fatalf("Now() after Reset = %v, want %v", got, start)
	}
}

func TestTimeControllerAdvanceAndDateFor(t *testing.T) {
	start := time.Date(2021, time.January, 4, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 0, Accelerated)

	got := tc.Advance()
	if want := start.AddDate(0, 0, 1); !got.Equal(want) {
		t.Fatalf("Advance() = %v, want %v", got, want)
	}
	if want := start.AddDate(0, 0, 7); !tc.DateFor(7).Equal(want) {
		t.Fatalf("DateFor(7) = %v, want %v", tc.DateFor(7), want)
	}
}

func TestTimeControllerStartStopsOnListener(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Hour, Accelerated)

	ticks := 0
	tc.AddListener(func(time.Time) bool {
		ticks++
		return ticks < 3
	})

	<-tc.Start(10)

	if ticks != 3 {
		t.Fatalf("ticks = %d, want 3", ticks)
	}
	if want := start.Add(3 * time.Hour); !tc.Now().Equal(want) {
		t.Fatalf("Now() = %v, want %v", tc.Now(), want)
	}
}

func TestTimeControllerRealTimePacing(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, DefaultDayTick, RealTime)
	tc.Pace = 2 * time.Millisecond

	begin := time.Now()
	<-tc.Start(3)

	if elapsed := time.Since(begin); elapsed < 6*time.Millisecond {
		t.Fatalf("elapsed %v, want at least 6ms of pacing", elapsed)
	}
	if want := start.Add(3 * DefaultDayTick); !tc.Now().Equal(want) {
		t.Fatalf("Now() = %v, want %v", tc.Now(), want)
	}
}
