// Package router classifies detection records coming off the inference
// stream and dispatches each to the handler that owns its type. The router
// is deliberately thin: no business logic, just typed fan-out plus the id
// bookkeeping that lets an action_update find the record it amends.
package router

import (
	"context"
	"log"
	"sync"

	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
)

// QuestionSink receives question detections.
type QuestionSink interface {
	OnDetected(ctx context.Context, det insight.DetectionObject)
}

// ActionSink receives action detections and updates.
type ActionSink interface {
	OnDetected(ctx context.Context, det insight.DetectionObject)
	OnUpdated(ctx context.Context, det insight.DetectionObject)
}

// AnswerSink receives answer detections for live-conversation matching.
type AnswerSink interface {
	OnDetected(ctx context.Context, det insight.DetectionObject)
}

// Stats counts router outcomes for health reporting.
type Stats struct {
	Dispatched int64
	Dropped    int64
	Retargeted int64 // action_updates rerouted to OnDetected (unknown target)
}

// Router fans detection records out to the per-type handlers.
type Router struct {
	questions QuestionSink
	actions   ActionSink
	answers   AnswerSink

	mu    sync.Mutex
	seen  map[string]insight.DetectionType // id -> type that minted it
	stats Stats
}

// New builds a router over the three handler sinks.
func New(questions QuestionSink, actions ActionSink, answers AnswerSink) *Router {
	return &Router{
		questions: questions,
		actions:   actions,
		answers:   answers,
		seen:      make(map[string]insight.DetectionType),
	}
}

// Dispatch routes one detection record. Unknown types are dropped with a
// log line; the stream is never interrupted by an unroutable record.
func (r *Router) Dispatch(ctx context.Context, det insight.DetectionObject) {
	switch det.Type {
	case insight.DetectionQuestion:
		if !r.remember(det.ID, det.Type) {
			return // duplicate id from a replayed stream
		}
		r.questions.OnDetected(ctx, det)

	case insight.DetectionAction:
		if !r.remember(det.ID, det.Type) {
			// Same action re-detected; treat as an update so repeated
			// mentions enrich rather than duplicate.
			r.actions.OnUpdated(ctx, det)
			return
		}
		r.actions.OnDetected(ctx, det)

	case insight.DetectionActionUpdate:
		r.mu.Lock()
		kind, known := r.seen[det.ID]
		if !known {
			// Update for an action we never saw: promote it to a fresh
			// action so the information is not lost.
			r.seen[det.ID] = insight.DetectionAction
			r.stats.Retargeted++
			r.mu.Unlock()
			r.actions.OnDetected(ctx, det)
			return
		}
		r.mu.Unlock()
		if kind != insight.DetectionAction {
			// The id belongs to another record kind; honoring the update
			// would hijack that id's routing entry.
			log.Printf("router: dropping action_update %s aimed at a %s id", det.ID, kind)
			r.count(&r.stats.Dropped)
			return
		}
		r.count(&r.stats.Dispatched)
		r.actions.OnUpdated(ctx, det)
		return

	case insight.DetectionAnswer:
		r.count(&r.stats.Dispatched)
		r.answers.OnDetected(ctx, det)
		return

	default:
		log.Printf("router: dropping record with unknown type %q (id=%s)", det.Type, det.ID)
		r.count(&r.stats.Dropped)
		return
	}

	r.count(&r.stats.Dispatched)
}

// remember registers an id for its type; false when the id is already known.
func (r *Router) remember(id string, kind insight.DetectionType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.seen[id]; dup {
		return false
	}
	r.seen[id] = kind
	return true
}

func (r *Router) count(field *int64) {
	r.mu.Lock()
	*field++
	r.mu.Unlock()
}

// Stats returns a copy of the dispatch counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
