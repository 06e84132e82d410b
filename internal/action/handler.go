// Package action tracks action items detected during a meeting: creation,
// field merging across updates, and completeness scoring.
package action

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
)

// Completeness weights per the scoring formula: description clarity 0.4,
// owner presence 0.3, deadline presence 0.3.
const (
	weightClarity  = 0.4
	weightOwner    = 0.3
	weightDeadline = 0.3
)

// DefaultAlertThreshold is the completeness below which a segment-boundary
// review raises an alert.
const DefaultAlertThreshold = 0.7

// Handler owns the action map for one session. Mutations arrive from the
// router's dispatch path, tier callbacks never touch actions, and user
// feedback funnels through the same lock.
type Handler struct {
	sessionID string
	emit      func(insight.Event)

	mu      sync.Mutex
	actions map[string]*insight.Action
	order   []string
}

// NewHandler creates an action handler. emit receives every lifecycle event
// for broadcast and journaling.
func NewHandler(sessionID string, emit func(insight.Event)) *Handler {
	return &Handler{
		sessionID: sessionID,
		emit:      emit,
		actions:   make(map[string]*insight.Action),
	}
}

// OnDetected creates a new tracked action from a detection.
func (h *Handler) OnDetected(_ context.Context, det insight.DetectionObject) {
	now := time.Now().UTC()
	a := &insight.Action{
		ID:          det.ID,
		Description: det.Text,
		Owner:       det.Owner,
		Deadline:    det.Deadline,
		Status:      insight.ActionTracked,
		Sources:     []string{det.ID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	a.Completeness = Completeness(a.Description, a.Owner, a.Deadline)
	if a.Completeness >= 1.0 {
		a.Status = insight.ActionComplete
	}

	h.mu.Lock()
	if _, exists := h.actions[det.ID]; exists {
		// Duplicate detection for a known id is treated as an update.
		h.mu.Unlock()
		h.OnUpdated(context.Background(), det)
		return
	}
	h.actions[det.ID] = a
	h.order = append(h.order, det.ID)
	clone := a.Clone()
	h.mu.Unlock()

	h.emit(insight.NewEvent(insight.EventActionTracked, h.sessionID, clone))
}

// OnUpdated merges an action_update into the referenced action. New fields
// never overwrite a present value with an absent one, and the completeness
// score never decreases on a merge that only adds information.
func (h *Handler) OnUpdated(_ context.Context, det insight.DetectionObject) {
	h.mu.Lock()
	a, ok := h.actions[det.ID]
	if !ok {
		h.mu.Unlock()
		return
	}

	if det.Text != "" && len(det.Text) > len(a.Description) {
		// A longer description is taken as a clarification.
		a.Description = det.Text
	}
	if det.Owner != "" {
		a.Owner = det.Owner
	}
	if det.Deadline != "" {
		a.Deadline = det.Deadline
	}
	a.Sources = append(a.Sources, det.ID)
	a.UpdatedAt = time.Now().UTC()

	score := Completeness(a.Description, a.Owner, a.Deadline)
	if score > a.Completeness {
		a.Completeness = score
	}
	if a.Completeness >= 1.0 {
		a.Status = insight.ActionComplete
	}
	clone := a.Clone()
	h.mu.Unlock()

	h.emit(insight.NewEvent(insight.EventActionUpdated, h.sessionID, clone))
}

// AssignOwner applies a user-driven owner assignment.
func (h *Handler) AssignOwner(actionID, owner string) bool {
	if owner == "" {
		return false
	}
	h.mu.Lock()
	a, ok := h.actions[actionID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	a.Owner = owner
	a.UpdatedAt = time.Now().UTC()
	if score := Completeness(a.Description, a.Owner, a.Deadline); score > a.Completeness {
		a.Completeness = score
	}
	if a.Completeness >= 1.0 {
		a.Status = insight.ActionComplete
	}
	clone := a.Clone()
	h.mu.Unlock()

	h.emit(insight.NewEvent(insight.EventActionUpdated, h.sessionID, clone))
	return true
}

// ReviewIncomplete emits an alert for every tracked action below the
// threshold. Called on segment boundaries; alerts do not change status.
func (h *Handler) ReviewIncomplete(threshold float64) int {
	if threshold <= 0 {
		threshold = DefaultAlertThreshold
	}

	h.mu.Lock()
	var flagged []insight.Action
	for _, id := range h.order {
		a := h.actions[id]
		if a.Status == insight.ActionTracked && a.Completeness < threshold {
			flagged = append(flagged, a.Clone())
		}
	}
	h.mu.Unlock()

	for _, a := range flagged {
		h.emit(insight.NewEvent(insight.EventActionAlert, h.sessionID, insight.AlertPayload{
			Action:    a,
			Threshold: threshold,
		}))
	}
	return len(flagged)
}

// Snapshot returns clones of all actions in creation order.
func (h *Handler) Snapshot() []insight.Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]insight.Action, 0, len(h.order))
	for _, id := range h.order {
		out = append(out, h.actions[id].Clone())
	}
	return out
}

// Tracked returns clones of actions still in tracked status.
func (h *Handler) Tracked() []insight.Action {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []insight.Action
	for _, id := range h.order {
		if a := h.actions[id]; a.Status == insight.ActionTracked {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Completeness computes the weighted score for an action's fields. The score
// is exactly 1.0 only when a clear description, an owner, and a deadline are
// all present.
func Completeness(description, owner, deadline string) float64 {
	score := clarityScore(description)
	if owner != "" {
		score += weightOwner
	}
	if deadline != "" {
		score += weightDeadline
	}
	return score
}

// clarityScore grades the description: nothing for empty, partial credit for
// a fragment under three words, full weight otherwise.
func clarityScore(description string) float64 {
	words := strings.Fields(description)
	switch {
	case len(words) == 0:
		return 0
	case len(words) < 3:
		return weightClarity / 2
	default:
		return weightClarity
	}
}
