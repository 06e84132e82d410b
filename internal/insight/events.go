package insight

import "time"

// EventType names the typed updates broadcast to connected clients.
type EventType string

const (
	EventQuestionDetected    EventType = "QUESTION_DETECTED"
	EventTierResult          EventType = "TIER_RESULT"
	EventQuestionAnswered    EventType = "QUESTION_ANSWERED"
	EventQuestionUnanswered  EventType = "QUESTION_UNANSWERED"
	EventActionTracked       EventType = "ACTION_TRACKED"
	EventActionUpdated       EventType = "ACTION_UPDATED"
	EventActionAlert         EventType = "ACTION_ALERT"
	EventSegmentTransition   EventType = "SEGMENT_TRANSITION"
	EventSyncState           EventType = "SYNC_STATE"
	EventInsightsUnavailable EventType = "INSIGHTS_UNAVAILABLE"
	EventError               EventType = "ERROR"
)

// Event is one outbound update for a session. Payload is a JSON-serializable
// value whose shape depends on Type (a Question clone, an Action clone, a
// TierResultPayload, a SessionSnapshot for SYNC_STATE, ...).
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Payload   any       `json:"payload,omitempty"`
}

// NewEvent stamps an event with the current time.
func NewEvent(t EventType, sessionID string, payload any) Event {
	return Event{Type: t, SessionID: sessionID, At: time.Now().UTC(), Payload: payload}
}

// TierResultPayload is the payload of a TIER_RESULT event: one tier outcome
// together with the question it belongs to and the question's status after
// the result was applied.
type TierResultPayload struct {
	QuestionID string         `json:"question_id"`
	Status     QuestionStatus `json:"status"`
	Result     TierResult     `json:"result"`
}

// AlertPayload is the payload of an ACTION_ALERT event emitted when a
// segment boundary review finds a tracked action below the completeness
// threshold.
type AlertPayload struct {
	Action    Action  `json:"action"`
	Threshold float64 `json:"threshold"`
}

// ErrorPayload is the payload of an ERROR event surfaced for session-fatal
// conditions. The session still closes cleanly after emitting one.
type ErrorPayload struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}
