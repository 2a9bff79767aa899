package engine

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	countdownInterval  = time.Second
	roundTimerInterval = 100 * time.Millisecond
)

// Countdown is the fixed local delay between a match being found and the
// first round starting. It owns its cancel handle; Start replaces any
// previous run.
type Countdown struct {
	clock clockwork.Clock

	mu        sync.Mutex
	remaining int
	running   bool
	stop      chan struct{}
}

// NewCountdown creates a stopped countdown
func NewCountdown(clock clockwork.Clock) *Countdown {
	return &Countdown{clock: clock}
}

// Start begins ticking down from seconds once per second. onExpire runs
// exactly once, after the last tick, on the countdown's goroutine.
func (c *Countdown) Start(seconds int, onExpire func()) {
	c.Stop()

	c.mu.Lock()
	c.remaining = seconds
	c.running = true
	c.stop = make(chan struct{})
	stopCh := c.stop
	c.mu.Unlock()

	go c.run(stopCh, onExpire)
}

func (c *Countdown) run(stopCh chan struct{}, onExpire func()) {
	ticker := c.clock.NewTicker(countdownInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			// A tick and a stop can be ready at the same instant; the stop
			// must win or a cancelled countdown could still expire.
			select {
			case <-stopCh:
				return
			default:
			}
			c.mu.Lock()
			c.remaining--
			expired := c.remaining <= 0
			if expired {
				c.remaining = 0
				c.running = false
			}
			c.mu.Unlock()
			if expired {
				onExpire()
				return
			}
		}
	}
}

// Stop cancels the countdown if it is running
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		close(c.stop)
		c.running = false
	}
	c.remaining = 0
}

// Seconds returns the ticks left, 0 when idle or expired
func (c *Countdown) Seconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// RoundTimer is the advisory countdown for the active round. It is anchored
// to the server-supplied (startedAt, durationSeconds) pair and recomputes
// the remaining seconds from wall-clock deltas on every read, never by
// decrementing a counter, so local drift cannot accumulate. Reaching zero
// only stops the ticking; the round itself ends when RoundEnded arrives.
type RoundTimer struct {
	clock clockwork.Clock

	mu        sync.Mutex
	anchored  bool
	startedAt time.Time
	duration  int
	running   bool
	stop      chan struct{}
}

// NewRoundTimer creates an unanchored round timer
func NewRoundTimer(clock clockwork.Clock) *RoundTimer {
	return &RoundTimer{clock: clock}
}

// Anchor replaces the authoritative anchor, both fields together, and
// restarts ticking. Any previous ticking goroutine is cancelled first.
func (t *RoundTimer) Anchor(startedAt time.Time, durationSeconds int) {
	t.mu.Lock()
	t.stopLocked()
	t.anchored = true
	t.startedAt = startedAt
	t.duration = durationSeconds
	remaining := t.remainingLocked()
	if remaining > 0 {
		t.running = true
		t.stop = make(chan struct{})
		go t.run(t.stop)
	}
	t.mu.Unlock()
}

func (t *RoundTimer) run(stopCh chan struct{}) {
	ticker := t.clock.NewTicker(roundTimerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			t.mu.Lock()
			expired := t.remainingLocked() == 0
			if expired {
				t.running = false
			}
			t.mu.Unlock()
			if expired {
				return
			}
		}
	}
}

// Stop cancels the timer and drops the anchor
func (t *RoundTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
	t.anchored = false
}

func (t *RoundTimer) stopLocked() {
	if t.running {
		close(t.stop)
		t.running = false
	}
}

// Remaining returns the seconds left in the round, recomputed from the
// latest anchor. 0 when unanchored or elapsed.
func (t *RoundTimer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

func (t *RoundTimer) remainingLocked() int {
	if !t.anchored {
		return 0
	}
	elapsed := int(t.clock.Since(t.startedAt) / time.Second)
	remaining := t.duration - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
