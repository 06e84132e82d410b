// Package insight defines the core data model shared by the streaming
// meeting-intelligence pipeline: transcript chunks, detected questions and
// actions, tier results, and the typed events broadcast to clients.
package insight

import (
	"time"
)

// TranscriptChunk is one immutable unit of transcribed speech produced by the
// external transcription capability. Chunks are consumed exactly once by the
// transcript buffer and never mutated after insertion.
type TranscriptChunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Speaker   string    `json:"speaker,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"`
}

// QuestionStatus is the lifecycle state of a detected question.
type QuestionStatus string

const (
	StatusSearching  QuestionStatus = "searching"
	StatusFound      QuestionStatus = "found"
	StatusMonitoring QuestionStatus = "monitoring"
	StatusAnswered   QuestionStatus = "answered"
	StatusUnanswered QuestionStatus = "unanswered"
)

// Terminal reports whether the status is final. A question reaches at most
// one terminal status.
func (s QuestionStatus) Terminal() bool {
	return s == StatusAnswered || s == StatusUnanswered
}

// AnswerSource identifies which discovery path produced a question's answer.
type AnswerSource string

const (
	SourceRAG          AnswerSource = "rag"
	SourceMeeting      AnswerSource = "meeting_context"
	SourceLive         AnswerSource = "live_conversation"
	SourceGenerated    AnswerSource = "gpt_generated"
	SourceUserProvided AnswerSource = "user_provided"
	SourceUnanswered   AnswerSource = "unanswered"
)

// Tier names used in TierResult records.
const (
	TierDocuments = "documents"
	TierMeeting   = "meeting_context"
	TierLive      = "live_conversation"
	TierGenerated = "gpt_generated"
)

// TierResult is the immutable outcome of one discovery tier for one question.
type TierResult struct {
	Tier       string        `json:"tier"`
	Found      bool          `json:"found"`
	Content    string        `json:"content,omitempty"`
	Confidence float64       `json:"confidence"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Question is a detected question and its answer-discovery state. Tier
// results are append-only; Status reaches at most one terminal value.
type Question struct {
	ID          string         `json:"id"`
	Text        string         `json:"text"`
	Speaker     string         `json:"speaker,omitempty"`
	DetectedAt  time.Time      `json:"detected_at"`
	Status      QuestionStatus `json:"status"`
	TierResults []TierResult   `json:"tier_results,omitempty"`
	Source      AnswerSource   `json:"source,omitempty"`
	Answer      string         `json:"answer,omitempty"`
	// Disclaimer marks AI-generated answers that were not grounded in
	// organization documents or the meeting itself.
	Disclaimer bool `json:"disclaimer,omitempty"`
}

// Clone returns a deep copy safe to hand outside the owning handler's lock.
func (q *Question) Clone() Question {
	out := *q
	out.TierResults = append([]TierResult(nil), q.TierResults...)
	return out
}

// ActionStatus is the lifecycle state of a tracked action item.
type ActionStatus string

const (
	ActionTracked  ActionStatus = "tracked"
	ActionComplete ActionStatus = "complete"
)

// Action is a tracked action item accumulated from one or more detections.
// Actions are never deleted; they are marked complete or left tracked at
// session end.
type Action struct {
	ID           string       `json:"id"`
	Description  string       `json:"description"`
	Owner        string       `json:"owner,omitempty"`
	Deadline     string       `json:"deadline,omitempty"`
	Completeness float64      `json:"completeness"`
	Status       ActionStatus `json:"status"`
	// Sources lists the detection identifiers merged into this action,
	// in arrival order.
	Sources   []string  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to hand outside the owning handler's lock.
func (a *Action) Clone() Action {
	out := *a
	out.Sources = append([]string(nil), a.Sources...)
	return out
}

// SessionPhase is the lifecycle phase of a live meeting session.
type SessionPhase string

const (
	PhaseInitializing SessionPhase = "initializing"
	PhaseActive       SessionPhase = "active"
	PhasePaused       SessionPhase = "paused"
	PhaseFinalizing   SessionPhase = "finalizing"
	PhaseClosed       SessionPhase = "closed"
)

// SessionSnapshot is the full state handed to the persistence collaborator
// at finalization, and the basis of SYNC_STATE replies during the session.
type SessionSnapshot struct {
	SessionID    string            `json:"session_id"`
	ProjectID    string            `json:"project_id"`
	OrgID        string            `json:"org_id"`
	Phase        SessionPhase      `json:"phase"`
	Questions    []Question        `json:"questions"`
	Actions      []Action          `json:"actions"`
	RecentChunks []TranscriptChunk `json:"recent_chunks,omitempty"`
	Events       []Event           `json:"events,omitempty"`
	Recap        string            `json:"recap,omitempty"`
	TakenAt      time.Time         `json:"taken_at"`
}
