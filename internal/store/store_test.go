package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "insights.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedSession(t *testing.T, s *Store, sessionID, projectID string) {
	t.Helper()
	questions := []insight.Question{
		{ID: "q_1", Text: "what is the launch date?", Status: insight.StatusAnswered, Source: insight.SourceRAG, Answer: "March 3rd"},
		{ID: "q_2", Text: "who owns onboarding?", Status: insight.StatusUnanswered, Source: insight.SourceUnanswered},
	}
	actions := []insight.Action{
		{ID: "a_1", Description: "send the quarterly report", Owner: "john", Deadline: "friday", Completeness: 1.0, Status: insight.ActionComplete},
		{ID: "a_2", Description: "follow up with legal", Completeness: 0.4, Status: insight.ActionTracked},
	}
	events := []insight.Event{
		insight.NewEvent(insight.EventQuestionDetected, sessionID, questions[0]),
		insight.NewEvent(insight.EventActionTracked, sessionID, actions[0]),
	}
	err := s.SaveSession(context.Background(), sessionID, projectID, time.Now().Add(-time.Hour), questions, actions, events)
	if err != nil {
		t.Fatalf("failed to save session: %v", err)
	}
}

func TestSaveAndQueryBySession(t *testing.T) {
	s := openTestStore(t)
	seedSession(t, s, "s1", "proj1")

	records, err := s.QueryBySession(context.Background(), "s1", Query{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}

	var q insight.Question
	for _, r := range records {
		if r.ID == "q_1" {
			if r.Kind != KindQuestion {
				t.Errorf("q_1 has kind %s", r.Kind)
			}
			if err := json.Unmarshal(r.Payload, &q); err != nil {
				t.Fatalf("payload does not round-trip: %v", err)
			}
		}
	}
	if q.Answer != "March 3rd" || q.Source != insight.SourceRAG {
		t.Errorf("question payload lost fields: %+v", q)
	}

	n, err := s.EventCount(context.Background(), "s1")
	if err != nil {
		t.Fatalf("event count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 persisted events, got %d", n)
	}
}

func TestUnresolvedInsightsAreHighPriority(t *testing.T) {
	s := openTestStore(t)
	seedSession(t, s, "s1", "proj1")

	high, err := s.QueryBySession(context.Background(), "s1", Query{Priority: PriorityHigh})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(high) != 2 {
		t.Fatalf("expected 2 high-priority records, got %d", len(high))
	}
	for _, r := range high {
		if r.ID != "q_2" && r.ID != "a_2" {
			t.Errorf("unexpected high-priority record %s", r.ID)
		}
	}
}

func TestQueryFilters(t *testing.T) {
	s := openTestStore(t)
	seedSession(t, s, "s1", "proj1")

	questions, err := s.QueryBySession(context.Background(), "s1", Query{Kind: KindQuestion})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	page, err := s.QueryBySession(context.Background(), "s1", Query{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("paged query failed: %v", err)
	}
	if len(page) != 1 {
		t.Fatalf("expected 1 record for limit=1, got %d", len(page))
	}
}

func TestQueryByProjectSpansSessions(t *testing.T) {
	s := openTestStore(t)
	seedSession(t, s, "s1", "proj1")
	seedSession(t, s, "s2", "proj1")
	seedSession(t, s, "s3", "other")

	records, err := s.QueryByProject(context.Background(), "proj1", Query{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 8 {
		t.Fatalf("expected 8 records across proj1 sessions, got %d", len(records))
	}
}

func TestRefinalizeReplacesRows(t *testing.T) {
	s := openTestStore(t)
	seedSession(t, s, "s1", "proj1")
	seedSession(t, s, "s1", "proj1")

	records, err := s.QueryBySession(context.Background(), "s1", Query{})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("re-finalizing must replace rows, got %d", len(records))
	}
}
