package router

import (
	"context"
	"sync"
	"testing"

	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
)

type recordingSink struct {
	mu       sync.Mutex
	detected []insight.DetectionObject
	updated  []insight.DetectionObject
}

func (s *recordingSink) OnDetected(_ context.Context, det insight.DetectionObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detected = append(s.detected, det)
}

func (s *recordingSink) OnUpdated(_ context.Context, det insight.DetectionObject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, det)
}

func newTestRouter() (*Router, *recordingSink, *recordingSink, *recordingSink) {
	q := &recordingSink{}
	a := &recordingSink{}
	ans := &recordingSink{}
	return New(q, a, ans), q, a, ans
}

func TestDispatchByType(t *testing.T) {
	r, q, a, ans := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, insight.DetectionObject{Type: insight.DetectionQuestion, ID: "q_1", Text: "why?"})
	r.Dispatch(ctx, insight.DetectionObject{Type: insight.DetectionAction, ID: "a_1", Text: "do it"})
	r.Dispatch(ctx, insight.DetectionObject{Type: insight.DetectionAnswer, Text: "because"})

	if len(q.detected) != 1 || q.detected[0].ID != "q_1" {
		t.Errorf("question not routed: %+v", q.detected)
	}
	if len(a.detected) != 1 || a.detected[0].ID != "a_1" {
		t.Errorf("action not routed: %+v", a.detected)
	}
	if len(ans.detected) != 1 {
		t.Errorf("answer not routed: %+v", ans.detected)
	}
}

func TestDispatchUnknownTypeDropped(t *testing.T) {
	r, q, a, ans := newTestRouter()

	r.Dispatch(context.Background(), insight.DetectionObject{Type: "telepathy", ID: "x_1"})

	if len(q.detected)+len(a.detected)+len(ans.detected) != 0 {
		t.Fatal("unknown type must not reach any sink")
	}
	if r.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", r.Stats().Dropped)
	}
}

func TestDispatchDuplicateQuestionIgnored(t *testing.T) {
	r, q, _, _ := newTestRouter()
	ctx := context.Background()

	det := insight.DetectionObject{Type: insight.DetectionQuestion, ID: "q_1", Text: "why?"}
	r.Dispatch(ctx, det)
	r.Dispatch(ctx, det)

	if len(q.detected) != 1 {
		t.Fatalf("duplicate question dispatched %d times", len(q.detected))
	}
}

func TestDispatchRepeatedActionBecomesUpdate(t *testing.T) {
	r, _, a, _ := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, insight.DetectionObject{Type: insight.DetectionAction, ID: "a_1", Text: "send report"})
	r.Dispatch(ctx, insight.DetectionObject{Type: insight.DetectionAction, ID: "a_1", Text: "send report", Owner: "john"})

	if len(a.detected) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(a.detected))
	}
	if len(a.updated) != 1 || a.updated[0].Owner != "john" {
		t.Fatalf("re-detection should route as update: %+v", a.updated)
	}
}

func TestDispatchUpdateForKnownAction(t *testing.T) {
	r, _, a, _ := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, insight.DetectionObject{Type: insight.DetectionAction, ID: "a_1", Text: "send report"})
	r.Dispatch(ctx, insight.DetectionObject{Type: insight.DetectionActionUpdate, ID: "a_1", Deadline: "Friday"})

	if len(a.updated) != 1 || a.updated[0].Deadline != "Friday" {
		t.Fatalf("update not routed: %+v", a.updated)
	}
}

func TestDispatchUpdateAimedAtQuestionIDDropped(t *testing.T) {
	r, q, a, _ := newTestRouter()
	ctx := context.Background()

	r.Dispatch(ctx, insight.DetectionObject{Type: insight.DetectionQuestion, ID: "q_1", Text: "why?"})
	r.Dispatch(ctx, insight.DetectionObject{Type: insight.DetectionActionUpdate, ID: "q_1", Owner: "john"})

	if len(a.detected)+len(a.updated) != 0 {
		t.Fatalf("update aimed at a question id must not reach the action sink: %+v %+v", a.detected, a.updated)
	}
	if r.Stats().Dropped != 1 {
		t.Errorf("expected 1 dropped, got %d", r.Stats().Dropped)
	}

	// The question's routing entry survives: its id still dedupes, and a
	// second stray update is still dropped rather than routed as an update.
	r.Dispatch(ctx, insight.DetectionObject{Type: insight.DetectionQuestion, ID: "q_1", Text: "why?"})
	if len(q.detected) != 1 {
		t.Fatalf("question id lost its dedupe entry: %d detections", len(q.detected))
	}
	r.Dispatch(ctx, insight.DetectionObject{Type: insight.DetectionActionUpdate, ID: "q_1", Deadline: "Friday"})
	if len(a.updated) != 0 {
		t.Fatalf("stray update routed as a real update: %+v", a.updated)
	}
}

func TestDispatchUpdateForUnknownActionPromoted(t *testing.T) {
	r, _, a, _ := newTestRouter()

	r.Dispatch(context.Background(), insight.DetectionObject{Type: insight.DetectionActionUpdate, ID: "a_9", Text: "late arrival"})

	if len(a.detected) != 1 {
		t.Fatalf("orphan update should become a fresh action: %+v", a.detected)
	}
	if r.Stats().Retargeted != 1 {
		t.Errorf("expected 1 retargeted, got %d", r.Stats().Retargeted)
	}
}
