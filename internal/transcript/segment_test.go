package transcript

import (
	"sync"
	"testing"
	"time"
)

type breakRecorder struct {
	mu      sync.Mutex
	reasons []string
}

func (r *breakRecorder) record(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *breakRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reasons...)
}

func TestSegmentSilenceGap(t *testing.T) {
	rec := &breakRecorder{}
	d := NewSegmentDetector(SegmentConfig{SilenceGap: 10 * time.Second, Debounce: time.Millisecond}, rec.record)

	base := time.Now()
	d.Observe("we should review the budget", base)
	d.Observe("agreed", base.Add(3*time.Second))
	if len(rec.all()) != 0 {
		t.Fatal("no break expected within the gap")
	}

	d.Observe("ok next item", base.Add(20*time.Second))
	got := rec.all()
	if len(got) != 1 || got[0] != "silence" {
		t.Fatalf("expected one silence break, got %v", got)
	}
}

func TestSegmentSilenceFiresWithoutNextChunk(t *testing.T) {
	rec := &breakRecorder{}
	d := NewSegmentDetector(SegmentConfig{
		SilenceGap:     40 * time.Millisecond,
		ReviewInterval: time.Hour,
		Debounce:       time.Millisecond,
	}, rec.record)

	d.Start()
	defer d.Stop()

	d.Observe("we should review the budget", time.Now())

	// No further speech: the silence ticker must report the gap on its own.
	deadline := time.Now().Add(time.Second)
	for len(rec.all()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected a silence break during an ongoing pause")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := rec.all(); got[0] != "silence" {
		t.Fatalf("expected silence break, got %v", got)
	}

	// One boundary per gap: continued silence does not fire again.
	time.Sleep(120 * time.Millisecond)
	if got := rec.all(); len(got) != 1 {
		t.Fatalf("continued silence should not re-fire, got %v", got)
	}
}

func TestSegmentTransitionPhrase(t *testing.T) {
	rec := &breakRecorder{}
	d := NewSegmentDetector(SegmentConfig{Debounce: time.Millisecond}, rec.record)

	base := time.Now()
	d.Observe("Moving on to the hiring plan", base)
	got := rec.all()
	if len(got) != 1 || got[0] != "transition_phrase" {
		t.Fatalf("expected transition_phrase break, got %v", got)
	}
}

func TestSegmentDebounce(t *testing.T) {
	rec := &breakRecorder{}
	d := NewSegmentDetector(SegmentConfig{Debounce: 30 * time.Second}, rec.record)

	base := time.Now()
	d.Observe("moving on", base)
	d.Observe("next topic", base.Add(5*time.Second))
	d.Observe("let's switch to planning", base.Add(10*time.Second))

	if got := rec.all(); len(got) != 1 {
		t.Fatalf("debounce should collapse rapid triggers, got %v", got)
	}

	// Past the debounce window the detector fires again.
	d.Observe("moving on", base.Add(45*time.Second))
	if got := rec.all(); len(got) != 2 {
		t.Fatalf("expected second break after debounce, got %v", got)
	}
}

func TestSegmentStartStopRestart(t *testing.T) {
	rec := &breakRecorder{}
	d := NewSegmentDetector(SegmentConfig{ReviewInterval: time.Hour}, rec.record)

	d.Start()
	d.Stop()
	d.Start() // pause/resume path
	d.Stop()
}
