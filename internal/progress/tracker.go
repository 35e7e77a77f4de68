// Package progress keeps an external liveness watchdog fed. Every status
// update is timestamped and rebroadcast on a fixed interval so a single
// long-running FFmpeg call never looks like a hang from the outside.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelmix/reelmix/internal/logging"
	"github.com/reelmix/reelmix/pkg/util"
)

// Stall policy surfaced for external supervisors: how long without a fresh
// report counts as silence, and how often a stalled task is re-pinged
// before it is abandoned.
const (
	StallThreshold = 30 * time.Second
	StallRetries   = 3
)

// Callback receives every status line. percent is 0-100.
type Callback func(message string, percent float64)

// Tracker accumulates elapsed time and completion counts, decorates every
// report with them, and rebroadcasts the last report on a ticker until
// Stop is called.
type Tracker struct {
	logger   zerolog.Logger
	callback Callback
	interval time.Duration

	mu          sync.Mutex
	lastMessage string
	lastPercent float64
	startTime   time.Time
	total       int
	completed   int

	ticking bool
	stop    chan struct{}
	done    chan struct{}
}

// New constructs a Tracker. callback may be nil; reports are then only
// logged. interval is the rebroadcast period.
func New(callback Callback, interval time.Duration) *Tracker {
	return &Tracker{
		logger:   logging.WithComponent("progress"),
		callback: callback,
		interval: interval,
	}
}

// Start records the batch start time and total unit count, then launches
// the rebroadcast ticker. A tracker can run any number of Start/Stop
// cycles; calling Start while already ticking is a no-op.
func (t *Tracker) Start(totalUnits int) {
	t.mu.Lock()
	if t.ticking {
		t.mu.Unlock()
		return
	}
	t.ticking = true
	t.startTime = time.Now()
	t.total = totalUnits
	t.completed = 0
	t.lastMessage = ""
	t.lastPercent = 0
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	stop, done := t.stop, t.done
	t.mu.Unlock()

	go t.tick(stop, done)
}

// Stop cancels the rebroadcast ticker and waits for it to exit. Safe to
// call more than once, and without a prior Start.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.ticking {
		t.mu.Unlock()
		return
	}
	t.ticking = false
	stop, done := t.stop, t.done
	t.mu.Unlock()

	close(stop)
	<-done
}

// CompleteUnit bumps the finished-output counter.
func (t *Tracker) CompleteUnit() {
	t.mu.Lock()
	t.completed++
	t.mu.Unlock()
}

// Report decorates message with elapsed time and completion counts, stores
// it as the latest status, and delivers it.
func (t *Tracker) Report(message string, percent float64) {
	t.mu.Lock()
	t.lastMessage = message
	t.lastPercent = percent
	decorated := t.decorateLocked(message)
	pct := percent
	t.mu.Unlock()

	t.deliver(decorated, pct)
}

// Elapsed returns time since Start.
func (t *Tracker) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.startTime.IsZero() {
		return 0
	}
	return time.Since(t.startTime)
}

// tick resends the last status with a refreshed elapsed time until Stop.
func (t *Tracker) tick(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.lastMessage == "" {
				t.mu.Unlock()
				continue
			}
			decorated := t.decorateLocked(t.lastMessage)
			pct := t.lastPercent
			t.mu.Unlock()

			t.deliver(decorated, pct)
		}
	}
}

func (t *Tracker) decorateLocked(message string) string {
	elapsed := util.FormatElapsed(time.Since(t.startTime))
	if t.total > 0 {
		return fmt.Sprintf("%s [elapsed %s, %d/%d done]", message, elapsed, t.completed, t.total)
	}
	return fmt.Sprintf("%s [elapsed %s]", message, elapsed)
}

func (t *Tracker) deliver(message string, percent float64) {
	t.logger.Debug().Float64("percent", percent).Msg(message)
	if t.callback != nil {
		t.callback(message, percent)
	}
}
