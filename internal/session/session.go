// Package session orchestrates one live meeting: it owns the transcript
// buffer, drives the detection pipeline, fans events out to connected
// clients, and persists the final state when the meeting ends.
package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Tell-Me-Mo/insight-engine/internal/action"
	"github.com/Tell-Me-Mo/insight-engine/internal/answer"
	"github.com/Tell-Me-Mo/insight-engine/internal/inference"
	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
	"github.com/Tell-Me-Mo/insight-engine/internal/question"
	"github.com/Tell-Me-Mo/insight-engine/internal/router"
	"github.com/Tell-Me-Mo/insight-engine/internal/search"
	"github.com/Tell-Me-Mo/insight-engine/internal/transcript"
)

// Broadcaster delivers events to every client subscribed to a session.
type Broadcaster interface {
	Broadcast(evt insight.Event)
}

// Persister stores the finalized session state.
type Persister interface {
	SaveSession(ctx context.Context, sessionID, projectID string, startedAt time.Time,
		questions []insight.Question, actions []insight.Action, events []insight.Event) error
}

// SessionCloser is implemented by broadcasters that can disconnect a
// session's subscribers once the session is gone. The websocket hub
// implements it; finalize calls it so clients are not left attached to a
// dead session.
type SessionCloser interface {
	CloseSession(sessionID string)
}

// Config tunes one session's pipeline. Zero values fall back to defaults.
type Config struct {
	// MinAnalysisInterval throttles detection passes; bursts of chunks
	// arriving faster than this are coalesced into one pass.
	MinAnalysisInterval time.Duration
	// FailureThreshold is how many consecutive terminal stream failures
	// put the session into degraded mode.
	FailureThreshold int
	// AlertThreshold for incomplete-action review at segment breaks.
	AlertThreshold float64
	// DegradedRetryInterval spaces out recovery probes while degraded: at
	// most one detection pass per interval goes out so the session can
	// notice the provider coming back.
	DegradedRetryInterval time.Duration
	// IncludeSpeakers controls speaker attribution in rendered context.
	IncludeSpeakers bool

	Window      time.Duration
	TokenBudget int

	Question question.Config
	Segment  transcript.SegmentConfig
}

func (c Config) withDefaults() Config {
	if c.MinAnalysisInterval <= 0 {
		c.MinAnalysisInterval = 2 * time.Second
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.AlertThreshold <= 0 {
		c.AlertThreshold = action.DefaultAlertThreshold
	}
	if c.DegradedRetryInterval <= 0 {
		c.DegradedRetryInterval = 30 * time.Second
	}
	if c.Window <= 0 {
		c.Window = transcript.DefaultWindow
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = transcript.DefaultTokenBudget
	}
	return c
}

// Deps are the session's external collaborators. Docs and Generator come
// from the search package; Broadcaster is typically the websocket hub.
type Deps struct {
	Inference   *inference.Client
	Docs        search.DocumentSearcher
	Generator   search.AnswerGenerator
	Broadcaster Broadcaster
	Persister   Persister
	Summarizer  *Summarizer // optional; nil skips the finalize recap
}

// Session is the per-meeting orchestrator. All exported methods are safe
// for concurrent use.
type Session struct {
	ID        string
	ProjectID string
	OrgID     string

	cfg  Config
	deps Deps

	buffer   *transcript.Buffer
	meeting  *search.MeetingIndex
	segments *transcript.SegmentDetector

	answers   *answer.Handler
	actions   *action.Handler
	questions *question.Handler
	router    *router.Router

	wg   sync.WaitGroup
	wake chan struct{}

	mu           sync.Mutex
	phase        insight.SessionPhase
	runCtx       context.Context
	runCancel    context.CancelFunc
	events       []insight.Event
	failures     int
	degraded     bool
	nextProbe    time.Time
	lastActivity time.Time
	startedAt    time.Time
	recap        string
}

// New assembles a session in the initializing phase; call Start to begin
// accepting transcript chunks.
func New(id, projectID, orgID string, cfg Config, deps Deps) (*Session, error) {
	cfg = cfg.withDefaults()

	meeting, err := search.NewMeetingIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to build meeting index: %w", err)
	}

	s := &Session{
		ID:           id,
		ProjectID:    projectID,
		OrgID:        orgID,
		cfg:          cfg,
		deps:         deps,
		buffer:       transcript.NewBuffer(cfg.Window, cfg.TokenBudget),
		meeting:      meeting,
		wake:         make(chan struct{}, 1),
		phase:        insight.PhaseInitializing,
		startedAt:    time.Now().UTC(),
		lastActivity: time.Now().UTC(),
	}

	s.answers = answer.NewHandler(cfg.Question.SignalThreshold)
	s.actions = action.NewHandler(id, s.emit)
	s.questions = question.NewHandler(
		id, orgID, cfg.Question,
		deps.Docs, meeting, deps.Generator, s.answers,
		s.emit,
		func() string { return s.buffer.RenderContext(cfg.IncludeSpeakers) },
		&s.wg,
	)
	s.router = router.New(s.questions, s.actions, s.answers)
	s.segments = transcript.NewSegmentDetector(cfg.Segment, s.onSegmentBreak)
	return s, nil
}

// Start moves the session to active and launches the analysis loop.
func (s *Session) Start() {
	s.mu.Lock()
	if s.phase != insight.PhaseInitializing {
		s.mu.Unlock()
		return
	}
	s.phase = insight.PhaseActive
	ctx, cancel := context.WithCancel(context.Background())
	s.runCtx, s.runCancel = ctx, cancel
	s.mu.Unlock()

	s.segments.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.analysisLoop(ctx)
	}()
}

// Ingest accepts one transcript chunk. Duplicate chunk ids are absorbed
// silently so retried deliveries have no observable effect. Chunks arriving
// while paused are buffered for context but trigger no analysis.
func (s *Session) Ingest(id, text, speaker string, at time.Time, seq int64) error {
	s.mu.Lock()
	phase := s.phase
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()

	switch phase {
	case insight.PhaseFinalizing, insight.PhaseClosed:
		return fmt.Errorf("session %s is %s and no longer accepts chunks", s.ID, phase)
	}

	if !s.buffer.Append(id, text, speaker, at, seq) {
		return nil // duplicate delivery
	}

	if err := s.meeting.Index(id, text, speaker); err != nil {
		log.Printf("session %s: meeting index rejected chunk %s: %v", s.ID, id, err)
	}

	if phase != insight.PhaseActive {
		return nil
	}

	s.segments.Observe(text, at)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// analysisLoop runs detection passes over the rolling context, coalescing
// rapid chunk arrivals so the provider sees at most one request per
// MinAnalysisInterval.
func (s *Session) analysisLoop(ctx context.Context) {
	var lastRun time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}

		if wait := s.cfg.MinAnalysisInterval - time.Since(lastRun); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			// Absorb wakes that piled up during the cooldown.
			select {
			case <-s.wake:
			default:
			}
		}

		if !s.allowAnalysis() {
			continue
		}
		s.analyzeOnce(ctx)
		lastRun = time.Now()
	}
}

// allowAnalysis reports whether a detection pass may run. While degraded,
// extraction stops; a single probe per DegradedRetryInterval still goes out
// so recovery flips the session back to normal operation.
func (s *Session) allowAnalysis() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.degraded {
		return true
	}
	now := time.Now()
	if now.Before(s.nextProbe) {
		return false
	}
	s.nextProbe = now.Add(s.cfg.DegradedRetryInterval)
	return true
}

// analyzeOnce issues one detection request and routes everything it yields.
func (s *Session) analyzeOnce(ctx context.Context) {
	contextText := s.buffer.RenderContext(s.cfg.IncludeSpeakers)
	if contextText == "" {
		return
	}

	stream := s.deps.Inference.StreamDetections(ctx, contextText)
	for {
		det, ok := stream.Next()
		if !ok {
			break
		}
		s.router.Dispatch(ctx, det)
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return // pause/finalize, not a provider failure
		}
		s.recordFailure(err)
		return
	}
	s.recordSuccess()
}

func (s *Session) recordFailure(err error) {
	s.mu.Lock()
	s.failures++
	notify := s.failures >= s.cfg.FailureThreshold && !s.degraded
	if notify {
		s.degraded = true
		s.nextProbe = time.Now().Add(s.cfg.DegradedRetryInterval)
	}
	failures := s.failures
	s.mu.Unlock()

	log.Printf("session %s: detection pass failed (%d consecutive): %v", s.ID, failures, err)
	if notify {
		s.emit(insight.NewEvent(insight.EventInsightsUnavailable, s.ID, insight.ErrorPayload{
			Op:      "analyze",
			Message: "insight detection is temporarily unavailable; transcript capture continues",
		}))
	}
}

func (s *Session) recordSuccess() {
	s.mu.Lock()
	recovered := s.degraded
	s.failures = 0
	s.degraded = false
	s.mu.Unlock()
	if recovered {
		log.Printf("session %s: detection recovered", s.ID)
	}
}

// onSegmentBreak fires on topic transitions: sweep incomplete actions and
// refresh the interim snapshot clients receive on reconnect.
func (s *Session) onSegmentBreak(reason string) {
	s.emit(insight.NewEvent(insight.EventSegmentTransition, s.ID, map[string]string{
		"reason": reason,
	}))
	alerted := s.actions.ReviewIncomplete(s.cfg.AlertThreshold)
	if alerted > 0 {
		log.Printf("session %s: segment break (%s) flagged %d incomplete actions", s.ID, reason, alerted)
	}
}

// Pause halts analysis. Outstanding tier searches and monitoring windows
// are cancelled and are not resumed later; questions keep whatever status
// they had.
func (s *Session) Pause() error {
	s.mu.Lock()
	if s.phase != insight.PhaseActive {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("cannot pause session in phase %s", phase)
	}
	s.phase = insight.PhasePaused
	s.runCancel()
	s.mu.Unlock()

	s.segments.Stop()
	return nil
}

// Resume restarts analysis after a pause with a fresh run context.
func (s *Session) Resume() error {
	s.mu.Lock()
	if s.phase != insight.PhasePaused {
		s.mu.Unlock()
		return fmt.Errorf("cannot resume session in phase %s", s.phase)
	}
	s.phase = insight.PhaseActive
	ctx, cancel := context.WithCancel(context.Background())
	s.runCtx, s.runCancel = ctx, cancel
	s.mu.Unlock()

	s.segments.Start()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.analysisLoop(ctx)
	}()
	return nil
}

// Finalize ends the meeting: cancels all in-flight work, resolves open
// questions as unanswered, generates the recap, and persists everything.
func (s *Session) Finalize(ctx context.Context) (insight.SessionSnapshot, error) {
	s.mu.Lock()
	if s.phase == insight.PhaseClosed || s.phase == insight.PhaseFinalizing {
		phase := s.phase
		s.mu.Unlock()
		return insight.SessionSnapshot{}, fmt.Errorf("session %s already %s", s.ID, phase)
	}
	s.phase = insight.PhaseFinalizing
	if s.runCancel != nil {
		s.runCancel()
	}
	s.mu.Unlock()

	s.segments.Stop()
	s.wg.Wait()

	for _, q := range s.questions.Open() {
		s.questions.Dismiss(q.ID)
	}

	if s.deps.Summarizer != nil {
		recapCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		recap, err := s.deps.Summarizer.Recap(recapCtx, s.buffer.RenderContext(true),
			s.questions.Snapshot(), s.actions.Snapshot())
		cancel()
		if err != nil {
			log.Printf("session %s: recap generation failed: %v", s.ID, err)
		} else {
			s.mu.Lock()
			s.recap = recap
			s.mu.Unlock()
		}
	}

	snapshot := s.snapshotLocked(true)

	// A persistence failure is surfaced to clients but never blocks the
	// close: the session still releases its resources and reaches closed.
	var persistErr error
	if s.deps.Persister != nil {
		err := s.deps.Persister.SaveSession(ctx, s.ID, s.ProjectID, s.startedAt,
			snapshot.Questions, snapshot.Actions, snapshot.Events)
		if err != nil {
			persistErr = fmt.Errorf("failed to persist session %s: %w", s.ID, err)
			s.emit(insight.NewEvent(insight.EventError, s.ID, insight.ErrorPayload{
				Op:      "persist",
				Message: "failed to save session state; the session still closed",
			}))
		}
	}

	if err := s.meeting.Close(); err != nil {
		log.Printf("session %s: failed to close meeting index: %v", s.ID, err)
	}

	s.mu.Lock()
	s.phase = insight.PhaseClosed
	s.mu.Unlock()
	snapshot.Phase = insight.PhaseClosed

	if closer, ok := s.deps.Broadcaster.(SessionCloser); ok {
		closer.CloseSession(s.ID)
	}
	return snapshot, persistErr
}

// emit appends to the session event trail and broadcasts to clients.
func (s *Session) emit(evt insight.Event) {
	s.mu.Lock()
	s.events = append(s.events, evt)
	s.mu.Unlock()
	if s.deps.Broadcaster != nil {
		s.deps.Broadcaster.Broadcast(evt)
	}
}

// MarkAnswered records a user-provided answer for a question.
func (s *Session) MarkAnswered(questionID, content string) bool {
	s.touch()
	return s.questions.MarkAnswered(questionID, content)
}

// DismissQuestion terminates a question on user request.
func (s *Session) DismissQuestion(questionID string) bool {
	s.touch()
	return s.questions.Dismiss(questionID)
}

// AssignAction sets an action's owner from user input.
func (s *Session) AssignAction(actionID, owner string) bool {
	s.touch()
	return s.actions.AssignOwner(actionID, owner)
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()
}

// LastActivity reports when the session last saw a chunk or user action.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() insight.SessionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Snapshot returns the reconnect state for SYNC_STATE replies: open
// questions and still-tracked actions plus recent buffer state. Terminal
// records were already delivered as events and are not replayed.
func (s *Session) Snapshot() insight.SessionSnapshot {
	return s.snapshotLocked(false)
}

// snapshotLocked assembles the session state. full includes the event trail
// and every record regardless of status; finalize persists that form.
func (s *Session) snapshotLocked(full bool) insight.SessionSnapshot {
	s.mu.Lock()
	phase := s.phase
	recap := s.recap
	var events []insight.Event
	if full {
		events = make([]insight.Event, len(s.events))
		copy(events, s.events)
	}
	s.mu.Unlock()

	var chunks []insight.TranscriptChunk
	for _, c := range s.buffer.Recent(5) {
		chunks = append(chunks, insight.TranscriptChunk{
			ID: c.ID, Text: c.Text, Speaker: c.Speaker, Timestamp: c.Timestamp, Seq: c.Seq,
		})
	}

	questions := s.questions.Snapshot()
	actions := s.actions.Snapshot()
	if !full {
		questions = s.questions.Open()
		actions = s.actions.Tracked()
	}

	return insight.SessionSnapshot{
		SessionID:    s.ID,
		ProjectID:    s.ProjectID,
		OrgID:        s.OrgID,
		Phase:        phase,
		Questions:    questions,
		Actions:      actions,
		RecentChunks: chunks,
		Events:       events,
		Recap:        recap,
		TakenAt:      time.Now().UTC(),
	}
}

// Health summarizes the session's operational state.
type Health struct {
	SessionID      string               `json:"session_id"`
	Phase          insight.SessionPhase `json:"phase"`
	BufferedChunks int                  `json:"buffered_chunks"`
	OpenQuestions  int                  `json:"open_questions"`
	TotalQuestions int                  `json:"total_questions"`
	TrackedActions int                  `json:"tracked_actions"`
	Dispatched     int64                `json:"dispatched"`
	Dropped        int64                `json:"dropped"`
	Failures       int                  `json:"consecutive_failures"`
	Degraded       bool                 `json:"degraded"`
}

// Health reports current counters for the health endpoint.
func (s *Session) Health() Health {
	stats := s.router.Stats()
	s.mu.Lock()
	phase, failures, degraded := s.phase, s.failures, s.degraded
	s.mu.Unlock()
	return Health{
		SessionID:      s.ID,
		Phase:          phase,
		BufferedChunks: s.buffer.Len(),
		OpenQuestions:  len(s.questions.Open()),
		TotalQuestions: len(s.questions.Snapshot()),
		TrackedActions: len(s.actions.Snapshot()),
		Dispatched:     stats.Dispatched,
		Dropped:        stats.Dropped,
		Failures:       failures,
		Degraded:       degraded,
	}
}
