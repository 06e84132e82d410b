// Package answer matches conversational answer detections to questions
// currently in their live-monitoring window.
package answer

import (
	"context"
	"strings"
	"sync"

	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
)

// Signal is delivered to a question's tier-3 wait when the conversation
// plausibly answered it.
type Signal struct {
	Content    string
	Confidence float64
	Source     insight.AnswerSource
}

// DefaultSignalThreshold is the confidence an unreferenced answer must reach
// before it is signalled to a monitoring question.
const DefaultSignalThreshold = 0.85

// Handler consumes answer detections. Referenced answers are applied
// directly; unreferenced ones are matched against the watched (monitoring)
// questions by text similarity and discarded silently at or below the
// threshold.
type Handler struct {
	threshold float64

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	text string
	ch   chan Signal
}

// NewHandler creates an answer handler. threshold <= 0 uses the default.
func NewHandler(threshold float64) *Handler {
	if threshold <= 0 {
		threshold = DefaultSignalThreshold
	}
	return &Handler{
		threshold: threshold,
		watches:   make(map[string]*watch),
	}
}

// Watch registers a question entering its monitoring window and returns the
// channel its tier-3 wait selects on. The channel is buffered so a signal
// never blocks the detection path.
func (h *Handler) Watch(questionID, questionText string) <-chan Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := &watch{text: questionText, ch: make(chan Signal, 1)}
	h.watches[questionID] = w
	return w.ch
}

// Unwatch removes a question from the watch set. Safe to call for ids that
// were never watched.
func (h *Handler) Unwatch(questionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.watches, questionID)
}

// Watching returns the number of questions currently watched.
func (h *Handler) Watching() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watches)
}

// OnDetected routes one answer detection.
func (h *Handler) OnDetected(_ context.Context, det insight.DetectionObject) {
	if det.QuestionID != "" {
		h.signal(det.QuestionID, Signal{
			Content:    det.Text,
			Confidence: det.Confidence,
			Source:     insight.SourceLive,
		})
		return
	}

	// Strictly above the threshold, matching the gate on the receiving
	// side; a borderline signal would be delivered only to be ignored.
	questionID, matchConfidence := h.bestMatch(det)
	if questionID == "" || matchConfidence <= h.threshold {
		return // no confident match: discard silently, not an error
	}
	h.signal(questionID, Signal{
		Content:    det.Text,
		Confidence: matchConfidence,
		Source:     insight.SourceLive,
	})
}

// bestMatch scores the answer text against every watched question. The match
// confidence is the detection's own confidence weighted by text similarity,
// so a high-confidence answer about the wrong topic still stays silent.
func (h *Handler) bestMatch(det insight.DetectionObject) (string, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var bestID string
	var bestScore float64
	for id, w := range h.watches {
		score := det.Confidence * Similarity(w.text, det.Text)
		if score > bestScore {
			bestID = id
			bestScore = score
		}
	}
	return bestID, bestScore
}

func (h *Handler) signal(questionID string, sig Signal) {
	h.mu.Lock()
	w, ok := h.watches[questionID]
	h.mu.Unlock()
	if !ok {
		return // question left monitoring already
	}
	select {
	case w.ch <- sig:
	default:
		// A signal is already pending; the first one wins.
	}
}

// stopwords excluded from similarity scoring.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "by": true, "did": true,
	"do": true, "does": true, "for": true, "how": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "we": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "will": true,
	"with": true,
}

// Similarity returns the fraction of the question's content words present in
// the candidate answer text, in [0,1]. Lightweight on purpose: the watch set
// holds at most a handful of open questions at a time.
func Similarity(question, answer string) float64 {
	qWords := contentWords(question)
	if len(qWords) == 0 {
		return 0
	}
	aWords := make(map[string]bool)
	for _, w := range contentWords(answer) {
		aWords[w] = true
	}

	matched := 0
	for _, w := range qWords {
		if aWords[w] {
			matched++
		}
	}
	return float64(matched) / float64(len(qWords))
}

func contentWords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}
