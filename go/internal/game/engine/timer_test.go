package engine

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestRoundTimerRemainingRecomputesFromAnchor(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rt := NewRoundTimer(fc)
	defer rt.Stop()

	rt.Anchor(fc.Now(), 90)
	if got := rt.Remaining(); got != 90 {
		t.Fatalf("expected 90 remaining, got %d", got)
	}

	fc.Advance(30 * time.Second)
	if got := rt.Remaining(); got != 60 {
		t.Fatalf("expected 60 remaining after 30s, got %d", got)
	}

	fc.Advance(60 * time.Second)
	if got := rt.Remaining(); got != 0 {
		t.Fatalf("expected 0 remaining at expiry, got %d", got)
	}

	fc.Advance(10 * time.Second)
	if got := rt.Remaining(); got != 0 {
		t.Fatalf("remaining must clamp at 0, got %d", got)
	}
}

func TestRoundTimerReAnchorReplacesBothFields(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rt := NewRoundTimer(fc)
	defer rt.Stop()

	start := fc.Now()
	rt.Anchor(start, 90)
	fc.Advance(30 * time.Second)

	// An adjustment extends the round from the original start. Remaining
	// snaps to the recomputed value, it is not a delta on the old counter.
	rt.Anchor(start, 120)
	if got := rt.Remaining(); got != 90 {
		t.Fatalf("expected 90 remaining after re-anchor, got %d", got)
	}
}

func TestRoundTimerLateAnchorResumes(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rt := NewRoundTimer(fc)
	defer rt.Stop()

	rt.Anchor(fc.Now(), 10)
	fc.Advance(20 * time.Second)
	if got := rt.Remaining(); got != 0 {
		t.Fatalf("expected expired timer, got %d", got)
	}

	rt.Anchor(fc.Now(), 30)
	if got := rt.Remaining(); got != 30 {
		t.Fatalf("late adjustment should resume the timer, got %d", got)
	}
}

func TestRoundTimerStopDropsAnchor(t *testing.T) {
	fc := clockwork.NewFakeClock()
	rt := NewRoundTimer(fc)

	rt.Anchor(fc.Now(), 90)
	rt.Stop()
	if got := rt.Remaining(); got != 0 {
		t.Fatalf("stopped timer should read 0, got %d", got)
	}
}

func TestCountdownTicksDownAndExpiresOnce(t *testing.T) {
	fc := clockwork.NewFakeClock()
	cd := NewCountdown(fc)
	defer cd.Stop()

	var fired atomic.Int32
	cd.Start(3, func() { fired.Add(1) })
	if got := cd.Seconds(); got != 3 {
		t.Fatalf("expected 3 seconds, got %d", got)
	}

	fc.BlockUntil(1)
	for want := 2; want >= 0; want-- {
		fc.Advance(time.Second)
		waitFor(t, func() bool { return cd.Seconds() == want })
	}
	waitFor(t, func() bool { return fired.Load() == 1 })

	// The run goroutine has exited; further advances must not re-fire.
	fc.Advance(5 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected exactly one expiry, got %d", got)
	}
}

func TestCountdownStopCancelsExpiry(t *testing.T) {
	fc := clockwork.NewFakeClock()
	cd := NewCountdown(fc)

	var fired atomic.Int32
	cd.Start(3, func() { fired.Add(1) })
	fc.BlockUntil(1)
	cd.Stop()

	fc.Advance(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatal("stopped countdown must not expire")
	}
	if cd.Seconds() != 0 {
		t.Fatalf("stopped countdown should read 0, got %d", cd.Seconds())
	}
}

func TestCountdownRestartReplacesRun(t *testing.T) {
	fc := clockwork.NewFakeClock()
	cd := NewCountdown(fc)
	defer cd.Stop()

	var first, second atomic.Int32
	cd.Start(5, func() { first.Add(1) })
	fc.BlockUntil(1)
	cd.Start(1, func() { second.Add(1) })

	// Advance in single-second steps until the replacement run expires; the
	// first run's stop channel is already closed so it can never fire.
	deadline := time.Now().Add(2 * time.Second)
	for second.Load() == 0 {
		if !time.Now().Before(deadline) {
			t.Fatal("replacement countdown never expired")
		}
		fc.Advance(time.Second)
		time.Sleep(5 * time.Millisecond)
	}

	if first.Load() != 0 {
		t.Fatal("replaced countdown must never fire")
	}
}
