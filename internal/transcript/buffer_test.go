package transcript

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestBufferAppendAndWindow(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	b := NewBuffer(60*time.Second, 0)

	b.Append("c1", "first", "alice", base, 1)
	b.Append("c2", "second", "bob", base.Add(30*time.Second), 2)
	if b.Len() != 2 {
		t.Fatalf("expected 2 chunks, got %d", b.Len())
	}

	// c1 falls out of the 60s window once a chunk arrives past the cutoff.
	b.Append("c3", "third", "alice", base.Add(70*time.Second), 3)
	if b.Len() != 2 {
		t.Fatalf("expected c1 evicted, got %d chunks", b.Len())
	}

	recent := b.Recent(10)
	if recent[0].ID != "c2" || recent[1].ID != "c3" {
		t.Errorf("unexpected order: %s, %s", recent[0].ID, recent[1].ID)
	}
}

func TestBufferDuplicateChunkIsNoOp(t *testing.T) {
	base := time.Now()
	b := NewBuffer(0, 0)

	if !b.Append("c1", "hello", "", base, 1) {
		t.Fatal("first append should insert")
	}
	if b.Append("c1", "hello", "", base, 1) {
		t.Fatal("duplicate append should be rejected")
	}
	if b.Len() != 1 {
		t.Fatalf("expected 1 chunk after duplicate delivery, got %d", b.Len())
	}
}

func TestBufferEvictedIDMayReturn(t *testing.T) {
	base := time.Now()
	b := NewBuffer(time.Minute, 0)

	b.Append("c1", "old", "", base, 1)
	b.Append("c2", "new", "", base.Add(2*time.Minute), 2)

	// c1 was evicted, so its id is free again.
	if !b.Append("c1", "old again", "", base.Add(2*time.Minute), 3) {
		t.Fatal("evicted id should be insertable again")
	}
}

func TestRenderContextSpeakers(t *testing.T) {
	base := time.Now()
	b := NewBuffer(0, 0)
	b.Append("c1", "hello there", "alice", base, 1)
	b.Append("c2", "hi", "", base.Add(time.Second), 2)

	got := b.RenderContext(true)
	want := "alice: hello there\nhi"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	plain := b.RenderContext(false)
	if plain != "hello there\nhi" {
		t.Errorf("speakerless render got %q", plain)
	}
}

func TestRenderContextTruncatesOldestFirst(t *testing.T) {
	base := time.Now()
	b := NewBuffer(time.Hour, 20)

	long := strings.Repeat("word ", 30)
	b.Append("c1", long, "", base, 1)
	b.Append("c2", "the decision was approved", "", base.Add(time.Second), 2)

	got := b.RenderContext(false)
	if !strings.Contains(got, "the decision was approved") {
		t.Fatal("newest chunk must survive truncation")
	}
	if strings.Contains(got, long) {
		t.Error("oldest chunk should have been dropped by the budget")
	}
}

func TestRenderContextChronologicalOrder(t *testing.T) {
	base := time.Now()
	b := NewBuffer(time.Hour, 0)
	for i := 0; i < 5; i++ {
		b.Append(fmt.Sprintf("c%d", i), fmt.Sprintf("utterance %d", i), "", base.Add(time.Duration(i)*time.Second), int64(i))
	}

	got := b.RenderContext(false)
	last := -1
	for i := 0; i < 5; i++ {
		idx := strings.Index(got, fmt.Sprintf("utterance %d", i))
		if idx < 0 {
			t.Fatalf("utterance %d missing from context", i)
		}
		if idx < last {
			t.Fatalf("utterance %d out of order", i)
		}
		last = idx
	}
}
