package progress

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder collects callback invocations for assertions.
type recorder struct {
	mu       sync.Mutex
	messages []string
	percents []float64
}

func (r *recorder) record(message string, percent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, message)
	r.percents = append(r.percents, percent)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return ""
	}
	return r.messages[len(r.messages)-1]
}

func TestReportDecoratesMessage(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.record, time.Hour)
	tr.Start(3)
	defer tr.Stop()

	tr.CompleteUnit()
	tr.Report("composing scene", 42)

	got := rec.last()
	if !strings.HasPrefix(got, "composing scene") {
		t.Errorf("message = %q", got)
	}
	if !strings.Contains(got, "1/3 done") {
		t.Errorf("missing completion count: %q", got)
	}
	if !strings.Contains(got, "elapsed 00:00:0") {
		t.Errorf("missing elapsed time: %q", got)
	}
	if rec.percents[0] != 42 {
		t.Errorf("percent = %v", rec.percents[0])
	}
}

func TestTickerRebroadcastsLastMessage(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.record, 20*time.Millisecond)
	tr.Start(1)

	tr.Report("long encode running", 50)
	time.Sleep(120 * time.Millisecond)
	tr.Stop()

	// One direct report plus several ticker resends.
	if rec.count() < 3 {
		t.Fatalf("got %d deliveries, want the ticker to resend", rec.count())
	}
	for _, msg := range rec.messages {
		if !strings.HasPrefix(msg, "long encode running") {
			t.Errorf("unexpected message %q", msg)
		}
	}
}

func TestTickerSilentBeforeFirstReport(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.record, 10*time.Millisecond)
	tr.Start(1)
	time.Sleep(50 * time.Millisecond)
	tr.Stop()

	if rec.count() != 0 {
		t.Errorf("ticker resent %d times with nothing to resend", rec.count())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	tr := New(nil, 10*time.Millisecond)
	tr.Start(1)
	tr.Stop()
	tr.Stop() // must not panic or block

	// Stop without Start must not block either.
	tr2 := New(nil, 10*time.Millisecond)
	tr2.Stop()
	tr2.Stop()
}

func TestRestartAfterStop(t *testing.T) {
	rec := &recorder{}
	tr := New(rec.record, 20*time.Millisecond)

	tr.Start(2)
	tr.CompleteUnit()
	tr.Stop()

	// A second cycle must tick again with fresh counters.
	tr.Start(5)
	tr.Report("second run", 10)
	time.Sleep(120 * time.Millisecond)
	tr.Stop()

	if rec.count() < 3 {
		t.Fatalf("got %d deliveries, want the second run's ticker to resend", rec.count())
	}
	last := rec.last()
	if !strings.Contains(last, "0/5 done") {
		t.Errorf("second run should reset counters: %q", last)
	}
	if tr.Elapsed() == 0 {
		t.Error("Elapsed should report time since the last Start")
	}
}

func TestNilCallback(t *testing.T) {
	tr := New(nil, time.Hour)
	tr.Start(1)
	defer tr.Stop()
	tr.Report("no listener", 10) // must not panic
}
