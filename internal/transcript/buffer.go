// Package transcript maintains the rolling utterance window for one session
// and detects conversation segment boundaries.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// DefaultWindow is how far back the buffer keeps utterances.
const DefaultWindow = 60 * time.Second

// DefaultTokenBudget bounds the rendered context handed to inference.
const DefaultTokenBudget = 1200

// Buffer holds an ordered, time-windowed sequence of transcript chunks.
// Single writer (the session's ingest path), multiple readers. Chunks are
// immutable once appended and eviction happens under the same lock as
// appends, so readers never observe a half-evicted window.
type Buffer struct {
	mu          sync.Mutex
	window      time.Duration
	tokenBudget int
	chunks      []insightChunk
	seen        map[string]bool
}

type insightChunk struct {
	id      string
	text    string
	speaker string
	at      time.Time
	seq     int64
}

// NewBuffer creates a buffer with the given window and token budget.
// Zero values fall back to the defaults.
func NewBuffer(window time.Duration, tokenBudget int) *Buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &Buffer{
		window:      window,
		tokenBudget: tokenBudget,
		seen:        make(map[string]bool),
	}
}

// Append inserts a chunk and evicts everything older than the window.
// Re-appending a chunk identifier already in the buffer is a no-op, so
// reprocessing the same chunk twice never duplicates entries. Returns true
// when the chunk was actually inserted.
func (b *Buffer) Append(id, text, speaker string, at time.Time, seq int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.seen[id] {
		return false
	}
	b.seen[id] = true
	b.chunks = append(b.chunks, insightChunk{id: id, text: text, speaker: speaker, at: at, seq: seq})
	b.trimLocked(at)
	return true
}

// trimLocked evicts chunks older than the window relative to now.
func (b *Buffer) trimLocked(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.chunks) && b.chunks[i].at.Before(cutoff) {
		delete(b.seen, b.chunks[i].id)
		i++
	}
	if i > 0 {
		b.chunks = append(b.chunks[:0], b.chunks[i:]...)
	}
}

// Len returns the number of buffered chunks.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Last returns the timestamp and sequence of the newest chunk, or zero
// values when the buffer is empty.
func (b *Buffer) Last() (time.Time, int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.chunks) == 0 {
		return time.Time{}, 0
	}
	last := b.chunks[len(b.chunks)-1]
	return last.at, last.seq
}

// Recent returns up to n of the newest chunks in order, as exported records.
func (b *Buffer) Recent(n int) []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := 0
	if n > 0 && len(b.chunks) > n {
		start = len(b.chunks) - n
	}
	out := make([]Chunk, 0, len(b.chunks)-start)
	for _, c := range b.chunks[start:] {
		out = append(out, Chunk{ID: c.id, Text: c.text, Speaker: c.speaker, Timestamp: c.at, Seq: c.seq})
	}
	return out
}

// Chunk is the read-side view of a buffered transcript chunk.
type Chunk struct {
	ID        string
	Text      string
	Speaker   string
	Timestamp time.Time
	Seq       int64
}

// RenderContext produces a compact text block for inference consumption,
// bounded to the token budget. When truncation is needed, the most recent
// chunks win: lines are collected newest-first until the budget is spent and
// then emitted in chronological order.
func (b *Buffer) RenderContext(includeSpeakers bool) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var lines []string
	budget := b.tokenBudget
	for i := len(b.chunks) - 1; i >= 0; i-- {
		c := b.chunks[i]
		line := c.text
		if includeSpeakers && c.speaker != "" {
			line = c.speaker + ": " + line
		}
		cost := estimateTokens(line)
		if cost > budget && len(lines) > 0 {
			break
		}
		budget -= cost
		lines = append(lines, line)
		if budget <= 0 {
			break
		}
	}

	// Reverse back to chronological order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return strings.Join(lines, "\n")
}

// estimateTokens gives a rough token count, ~4 characters per token with a
// small discount for whitespace. Good enough for budgeting context windows.
func estimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	charCount := len([]rune(text))
	whitespace := strings.Count(text, " ") + strings.Count(text, "\n") + strings.Count(text, "\t")
	estimated := (charCount / 4) + (whitespace / 6)
	if estimated < 1 {
		return 1
	}
	return estimated
}
