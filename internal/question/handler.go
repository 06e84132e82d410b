// Package question owns the lifecycle of detected questions and drives the
// four-tier answer-discovery protocol:
//
//	tier 1  document/knowledge-base search   (2s timeout)
//	tier 2  in-meeting semantic search       (1.5s timeout)
//	tier 3  live-conversation monitoring     (15s cancellable wait)
//	tier 4  AI-generated fallback            (3s timeout)
//
// Tiers 1 and 2 race in parallel; each result is streamed the moment it
// lands and neither cancels its sibling. Tier 3 is a wait on a per-question
// signal, not polling. Tier 4 runs exactly once, only after tier 3 lapses.
package question

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Tell-Me-Mo/insight-engine/internal/answer"
	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
	"github.com/Tell-Me-Mo/insight-engine/internal/search"
)

// Config tunes the discovery protocol. Zero values fall back to defaults.
type Config struct {
	Tier1Timeout  time.Duration // document search
	Tier2Timeout  time.Duration // in-meeting search
	MonitorWindow time.Duration // tier-3 live monitoring ceiling
	Tier4Timeout  time.Duration // generated answer

	// FoundThreshold is the confidence a tier-1/2 hit needs to count as a
	// match. SignalThreshold gates tier-3 signals; GenerateThreshold gates
	// tier-4 answers.
	FoundThreshold    float64
	SignalThreshold   float64
	GenerateThreshold float64
}

func (c Config) withDefaults() Config {
	if c.Tier1Timeout <= 0 {
		c.Tier1Timeout = 2 * time.Second
	}
	if c.Tier2Timeout <= 0 {
		c.Tier2Timeout = 1500 * time.Millisecond
	}
	if c.MonitorWindow <= 0 {
		c.MonitorWindow = 15 * time.Second
	}
	if c.Tier4Timeout <= 0 {
		c.Tier4Timeout = 3 * time.Second
	}
	if c.FoundThreshold <= 0 {
		c.FoundThreshold = 0.6
	}
	if c.SignalThreshold <= 0 {
		c.SignalThreshold = 0.85
	}
	if c.GenerateThreshold <= 0 {
		c.GenerateThreshold = 0.70
	}
	return c
}

// Handler owns the question map for one session. Record mutation funnels
// through the handler's lock whether it originates from the router's
// dispatch path, a tier completion, or user feedback.
type Handler struct {
	sessionID string
	tenant    string
	cfg       Config

	docs    search.DocumentSearcher
	meeting search.MeetingSearcher
	gen     search.AnswerGenerator
	answers *answer.Handler

	emit      func(insight.Event)
	contextFn func() string // renders meeting context for tier 4

	wg *sync.WaitGroup

	mu        sync.Mutex
	questions map[string]*insight.Question
	order     []string
}

// NewHandler wires a question handler for one session. wg is the session's
// task group; every discovery goroutine registers with it so finalize can
// await full cancellation.
func NewHandler(
	sessionID, tenant string,
	cfg Config,
	docs search.DocumentSearcher,
	meeting search.MeetingSearcher,
	gen search.AnswerGenerator,
	answers *answer.Handler,
	emit func(insight.Event),
	contextFn func() string,
	wg *sync.WaitGroup,
) *Handler {
	return &Handler{
		sessionID: sessionID,
		tenant:    tenant,
		cfg:       cfg.withDefaults(),
		docs:      docs,
		meeting:   meeting,
		gen:       gen,
		answers:   answers,
		emit:      emit,
		contextFn: contextFn,
		wg:        wg,
		questions: make(map[string]*insight.Question),
	}
}

// OnDetected creates the question in `searching` and launches discovery on
// the given run context. Cancelling ctx (pause or finalize) aborts every
// outstanding tier for this question.
func (h *Handler) OnDetected(ctx context.Context, det insight.DetectionObject) {
	q := &insight.Question{
		ID:         det.ID,
		Text:       det.Text,
		Speaker:    det.Speaker,
		DetectedAt: time.Now().UTC(),
		Status:     insight.StatusSearching,
	}

	h.mu.Lock()
	if _, exists := h.questions[det.ID]; exists {
		h.mu.Unlock()
		return
	}
	h.questions[det.ID] = q
	h.order = append(h.order, det.ID)
	clone := q.Clone()
	h.mu.Unlock()

	h.emit(insight.NewEvent(insight.EventQuestionDetected, h.sessionID, clone))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.discover(ctx, det.ID, det.Text)
	}()
}

// discover runs the full tier protocol for one question.
func (h *Handler) discover(ctx context.Context, id, text string) {
	results := make(chan insight.TierResult, 2)

	var tierWG sync.WaitGroup
	tierWG.Add(2)
	go func() {
		defer tierWG.Done()
		results <- h.runDocumentTier(ctx, text)
	}()
	go func() {
		defer tierWG.Done()
		results <- h.runMeetingTier(ctx, text)
	}()

	// Stream each tier result the moment it completes; completion order,
	// not tier-declaration order. The first confident match moves the
	// question toward found, but the sibling tier keeps running and its
	// result is retained for display.
	var best insight.TierResult
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			h.appendTierResult(id, r)
			if r.Found && r.Confidence >= h.cfg.FoundThreshold && r.Confidence > best.Confidence {
				best = r
			}
		case <-ctx.Done():
			tierWG.Wait()
			return
		}
	}
	tierWG.Wait()

	if best.Found {
		h.resolve(id, sourceForTier(best.Tier), best.Content, true)
		return
	}

	h.monitor(ctx, id, text)
}

// runDocumentTier executes tier 1 within its timeout. A timeout or error is
// "no result", never an error condition.
func (h *Handler) runDocumentTier(ctx context.Context, text string) insight.TierResult {
	start := time.Now()
	result := insight.TierResult{Tier: insight.TierDocuments}

	if h.docs == nil || !h.docs.Available() {
		result.Elapsed = time.Since(start)
		return result
	}

	tierCtx, cancel := context.WithTimeout(ctx, h.cfg.Tier1Timeout)
	defer cancel()

	hits, err := h.docs.Search(tierCtx, h.tenant, text, 5)
	result.Elapsed = time.Since(start)
	if err != nil || len(hits) == 0 {
		return result
	}

	top := hits[0]
	result.Found = true
	result.Content = top.Content
	result.Confidence = top.Score
	return result
}

// runMeetingTier executes tier 2 within its timeout.
func (h *Handler) runMeetingTier(ctx context.Context, text string) insight.TierResult {
	start := time.Now()
	result := insight.TierResult{Tier: insight.TierMeeting}

	if h.meeting == nil {
		result.Elapsed = time.Since(start)
		return result
	}

	tierCtx, cancel := context.WithTimeout(ctx, h.cfg.Tier2Timeout)
	defer cancel()

	hits, err := h.meeting.Search(tierCtx, text, 3)
	result.Elapsed = time.Since(start)
	if err != nil || len(hits) == 0 {
		return result
	}

	top := hits[0]
	result.Found = true
	result.Content = top.Text
	result.Confidence = top.Score
	return result
}

// monitor is tier 3: a cancellable wait on the question's answer signal.
// Cancellation (pause/finalize) leaves the question in monitoring; a
// cancelled window is never resumed.
func (h *Handler) monitor(ctx context.Context, id, text string) {
	if !h.setStatus(id, insight.StatusMonitoring) {
		return
	}

	sigCh := h.answers.Watch(id, text)
	defer h.answers.Unwatch(id)

	timer := time.NewTimer(h.cfg.MonitorWindow)
	defer timer.Stop()

	for {
		select {
		case sig := <-sigCh:
			if sig.Confidence > h.cfg.SignalThreshold || sig.Source == insight.SourceUserProvided {
				h.appendTierResult(id, insight.TierResult{
					Tier:       insight.TierLive,
					Found:      true,
					Content:    sig.Content,
					Confidence: sig.Confidence,
				})
				h.resolve(id, sig.Source, sig.Content, true)
				return
			}
			// Below threshold; keep waiting out the window.
		case <-timer.C:
			h.generate(ctx, id, text)
			return
		case <-ctx.Done():
			return
		}
	}
}

// generate is tier 4, invoked exactly once after the monitoring window
// lapses with no signal.
func (h *Handler) generate(ctx context.Context, id, text string) {
	start := time.Now()

	tierCtx, cancel := context.WithTimeout(ctx, h.cfg.Tier4Timeout)
	defer cancel()

	meetingContext := ""
	if h.contextFn != nil {
		meetingContext = h.contextFn()
	}

	generated, err := h.gen.Generate(tierCtx, text, meetingContext)
	elapsed := time.Since(start)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		log.Printf("question %s: tier-4 generation failed: %v", id, err)
		h.appendTierResult(id, insight.TierResult{Tier: insight.TierGenerated, Elapsed: elapsed})
		h.resolve(id, insight.SourceUnanswered, "", false)
		return
	}

	h.appendTierResult(id, insight.TierResult{
		Tier:       insight.TierGenerated,
		Found:      generated.Confidence > h.cfg.GenerateThreshold,
		Content:    generated.Answer,
		Confidence: generated.Confidence,
		Elapsed:    elapsed,
	})

	if generated.Confidence > h.cfg.GenerateThreshold {
		h.resolveGenerated(id, generated.Answer)
		return
	}
	h.resolve(id, insight.SourceUnanswered, "", false)
}

// MarkAnswered applies a user-provided answer, terminating discovery for the
// question regardless of its current tier.
func (h *Handler) MarkAnswered(id, content string) bool {
	h.mu.Lock()
	q, ok := h.questions[id]
	if !ok || q.Status.Terminal() {
		h.mu.Unlock()
		return false
	}
	monitoring := q.Status == insight.StatusMonitoring
	h.mu.Unlock()

	if monitoring {
		h.answers.Unwatch(id) // prevent a racing conversational signal
	}
	h.resolve(id, insight.SourceUserProvided, content, true)
	return true
}

// Dismiss terminates a question on explicit user request.
func (h *Handler) Dismiss(id string) bool {
	h.mu.Lock()
	q, ok := h.questions[id]
	if !ok || q.Status.Terminal() {
		h.mu.Unlock()
		return false
	}
	h.mu.Unlock()

	h.answers.Unwatch(id)
	h.resolve(id, insight.SourceUnanswered, "", false)
	return true
}

// appendTierResult records one tier outcome (append-only) and streams a
// partial update. The first confident tier-1/2 result also moves the
// question from searching to found.
func (h *Handler) appendTierResult(id string, r insight.TierResult) {
	h.mu.Lock()
	q, ok := h.questions[id]
	if !ok || q.Status.Terminal() {
		h.mu.Unlock()
		return
	}
	q.TierResults = append(q.TierResults, r)
	if r.Found && r.Confidence >= h.cfg.FoundThreshold && q.Status == insight.StatusSearching {
		q.Status = insight.StatusFound
	}
	payload := insight.TierResultPayload{QuestionID: id, Status: q.Status, Result: r}
	h.mu.Unlock()

	h.emit(insight.NewEvent(insight.EventTierResult, h.sessionID, payload))
}

// setStatus applies a non-terminal transition; false when the question is
// gone or already terminal.
func (h *Handler) setStatus(id string, status insight.QuestionStatus) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.questions[id]
	if !ok || q.Status.Terminal() {
		return false
	}
	q.Status = status
	return true
}

// resolve applies the terminal transition. answered=false yields
// `unanswered`. At most one terminal transition wins; later calls no-op.
func (h *Handler) resolve(id string, source insight.AnswerSource, content string, answered bool) {
	h.mu.Lock()
	q, ok := h.questions[id]
	if !ok || q.Status.Terminal() {
		h.mu.Unlock()
		return
	}
	if answered {
		q.Status = insight.StatusAnswered
		q.Source = source
		q.Answer = content
	} else {
		q.Status = insight.StatusUnanswered
		q.Source = insight.SourceUnanswered
	}
	clone := q.Clone()
	h.mu.Unlock()

	eventType := insight.EventQuestionAnswered
	if !answered {
		eventType = insight.EventQuestionUnanswered
	}
	h.emit(insight.NewEvent(eventType, h.sessionID, clone))
}

// resolveGenerated is resolve for tier-4 answers, which carry a disclaimer.
func (h *Handler) resolveGenerated(id, content string) {
	h.mu.Lock()
	q, ok := h.questions[id]
	if !ok || q.Status.Terminal() {
		h.mu.Unlock()
		return
	}
	q.Status = insight.StatusAnswered
	q.Source = insight.SourceGenerated
	q.Answer = content
	q.Disclaimer = true
	clone := q.Clone()
	h.mu.Unlock()

	h.emit(insight.NewEvent(insight.EventQuestionAnswered, h.sessionID, clone))
}

// Snapshot returns clones of all questions in detection order.
func (h *Handler) Snapshot() []insight.Question {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]insight.Question, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.questions[id].Clone())
	}
	return out
}

// Open returns clones of questions not yet in a terminal status.
func (h *Handler) Open() []insight.Question {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []insight.Question
	for _, id := range h.order {
		if q := h.questions[id]; !q.Status.Terminal() {
			out = append(out, q.Clone())
		}
	}
	return out
}

// Get returns a clone of one question.
func (h *Handler) Get(id string) (insight.Question, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	q, ok := h.questions[id]
	if !ok {
		return insight.Question{}, false
	}
	return q.Clone(), true
}

func sourceForTier(tier string) insight.AnswerSource {
	switch tier {
	case insight.TierDocuments:
		return insight.SourceRAG
	case insight.TierMeeting:
		return insight.SourceMeeting
	case insight.TierLive:
		return insight.SourceLive
	case insight.TierGenerated:
		return insight.SourceGenerated
	}
	return insight.SourceUnanswered
}
