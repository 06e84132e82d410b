package action

import (
	"context"
	"math"
	"sync"
	"testing"

	"pgregory.net/rapid"

	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []insight.Event
}

func (r *eventRecorder) emit(evt insight.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) ofType(t insight.EventType) []insight.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []insight.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestCompleteness(t *testing.T) {
	tests := []struct {
		name        string
		description string
		owner       string
		deadline    string
		want        float64
	}{
		{"all fields", "send the quarterly report", "john", "friday", 1.0},
		{"description only", "send the quarterly report", "", "", 0.4},
		{"short fragment", "report stuff", "", "", 0.2},
		{"empty description with owner", "", "john", "", 0.3},
		{"owner and deadline no text", "", "john", "friday", 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Completeness(tt.description, tt.owner, tt.deadline)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Completeness(%q, %q, %q) = %v, want %v", tt.description, tt.owner, tt.deadline, got, tt.want)
			}
		})
	}
}

func TestActionAccumulatesAcrossUpdates(t *testing.T) {
	rec := &eventRecorder{}
	h := NewHandler("s1", rec.emit)
	ctx := context.Background()

	// "John will send the report" arrives without a deadline first.
	h.OnDetected(ctx, insight.DetectionObject{
		Type: insight.DetectionAction, ID: "a_1",
		Text: "send the quarterly report", Owner: "john",
	})

	got := h.Snapshot()
	if len(got) != 1 {
		t.Fatalf("expected 1 action, got %d", len(got))
	}
	if got[0].Status != insight.ActionTracked {
		t.Errorf("expected tracked, got %s", got[0].Status)
	}
	if math.Abs(got[0].Completeness-0.7) > 1e-9 {
		t.Errorf("expected 0.7 completeness, got %v", got[0].Completeness)
	}

	// The deadline lands in a later utterance.
	h.OnUpdated(ctx, insight.DetectionObject{
		Type: insight.DetectionActionUpdate, ID: "a_1", Deadline: "friday",
	})

	got = h.Snapshot()
	if got[0].Completeness != 1.0 {
		t.Errorf("expected 1.0 completeness, got %v", got[0].Completeness)
	}
	if got[0].Status != insight.ActionComplete {
		t.Errorf("expected complete, got %s", got[0].Status)
	}
	if got[0].Owner != "john" || got[0].Deadline != "friday" {
		t.Errorf("fields lost in merge: %+v", got[0])
	}

	if len(rec.ofType(insight.EventActionTracked)) != 1 {
		t.Error("expected one ACTION_TRACKED event")
	}
	if len(rec.ofType(insight.EventActionUpdated)) != 1 {
		t.Error("expected one ACTION_UPDATED event")
	}
}

func TestUpdateNeverErasesFields(t *testing.T) {
	rec := &eventRecorder{}
	h := NewHandler("s1", rec.emit)
	ctx := context.Background()

	h.OnDetected(ctx, insight.DetectionObject{
		Type: insight.DetectionAction, ID: "a_1",
		Text: "update the onboarding docs", Owner: "maria", Deadline: "tuesday",
	})
	h.OnUpdated(ctx, insight.DetectionObject{
		Type: insight.DetectionActionUpdate, ID: "a_1", Text: "docs",
	})

	got := h.Snapshot()[0]
	if got.Description != "update the onboarding docs" {
		t.Errorf("shorter text replaced description: %q", got.Description)
	}
	if got.Owner != "maria" || got.Deadline != "tuesday" {
		t.Errorf("update erased fields: %+v", got)
	}
}

func TestUpdateUnknownActionIgnored(t *testing.T) {
	rec := &eventRecorder{}
	h := NewHandler("s1", rec.emit)

	h.OnUpdated(context.Background(), insight.DetectionObject{
		Type: insight.DetectionActionUpdate, ID: "a_missing", Owner: "ghost",
	})

	if len(h.Snapshot()) != 0 {
		t.Fatal("update for unknown action must not create one")
	}
}

func TestAssignOwner(t *testing.T) {
	rec := &eventRecorder{}
	h := NewHandler("s1", rec.emit)

	h.OnDetected(context.Background(), insight.DetectionObject{
		Type: insight.DetectionAction, ID: "a_1", Text: "book the offsite venue", Deadline: "march",
	})

	if h.AssignOwner("a_1", "") {
		t.Error("empty owner must be rejected")
	}
	if !h.AssignOwner("a_1", "lena") {
		t.Fatal("assignment failed")
	}
	got := h.Snapshot()[0]
	if got.Owner != "lena" || got.Status != insight.ActionComplete {
		t.Errorf("assignment not applied: %+v", got)
	}
}

func TestReviewIncomplete(t *testing.T) {
	rec := &eventRecorder{}
	h := NewHandler("s1", rec.emit)
	ctx := context.Background()

	h.OnDetected(ctx, insight.DetectionObject{
		Type: insight.DetectionAction, ID: "a_1", Text: "follow up with legal",
	})
	h.OnDetected(ctx, insight.DetectionObject{
		Type: insight.DetectionAction, ID: "a_2",
		Text: "send the summary email", Owner: "john", Deadline: "today",
	})

	n := h.ReviewIncomplete(0.7)
	if n != 1 {
		t.Fatalf("expected 1 flagged action, got %d", n)
	}
	alerts := rec.ofType(insight.EventActionAlert)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert event, got %d", len(alerts))
	}
	payload := alerts[0].Payload.(insight.AlertPayload)
	if payload.Action.ID != "a_1" {
		t.Errorf("wrong action flagged: %s", payload.Action.ID)
	}
	// Alerts are informational; status does not change.
	if h.Snapshot()[0].Status != insight.ActionTracked {
		t.Error("alert must not change action status")
	}
}

// Completeness never decreases as updates accumulate, in any order.
func TestCompletenessMonotonicUnderUpdates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rec := &eventRecorder{}
		h := NewHandler("s1", rec.emit)
		ctx := context.Background()

		h.OnDetected(ctx, insight.DetectionObject{
			Type: insight.DetectionAction, ID: "a_1",
			Text: rapid.SampledFrom([]string{"", "fix", "fix the login flow"}).Draw(t, "initial"),
		})

		prev := h.Snapshot()[0].Completeness
		steps := rapid.IntRange(1, 8).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			h.OnUpdated(ctx, insight.DetectionObject{
				Type:     insight.DetectionActionUpdate,
				ID:       "a_1",
				Text:     rapid.SampledFrom([]string{"", "fix", "fix the login flow properly"}).Draw(t, "text"),
				Owner:    rapid.SampledFrom([]string{"", "sam"}).Draw(t, "owner"),
				Deadline: rapid.SampledFrom([]string{"", "friday"}).Draw(t, "deadline"),
			})
			cur := h.Snapshot()[0].Completeness
			if cur < prev {
				t.Fatalf("completeness decreased from %v to %v at step %d", prev, cur, i)
			}
			prev = cur
		}
	})
}
