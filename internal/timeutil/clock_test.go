package timeutil

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
	if d := clock.Since(time.Now().Add(-time.Second)); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}
	clock.Advance(90 * time.Second)
	if got := clock.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}
	later := start.Add(time.Hour)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestSteppingClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewSteppingClock(start, 250*time.Millisecond)

	t0 := clock.Now()
	t1 := clock.Now()
	if d := t1.Sub(t0); d != 250*time.Millisecond {
		t.Errorf("consecutive reads %v apart, want 250ms", d)
	}
	// Since does not step.
	if d := clock.Since(t0); d != 500*time.Millisecond {
		t.Errorf("Since() = %v, want 500ms", d)
	}
}

func TestMockClock_Concurrent(t *testing.T) {
	clock := NewSteppingClock(time.Unix(0, 0), time.Millisecond)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				clock.Now()
			}
		}()
	}
	wg.Wait()
	if got := clock.Since(time.Unix(0, 0)); got != 800*time.Millisecond {
		t.Errorf("Since() = %v, want 800ms after 800 reads", got)
	}
}
