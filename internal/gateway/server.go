package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
	"github.com/Tell-Me-Mo/insight-engine/internal/session"
	"github.com/Tell-Me-Mo/insight-engine/internal/store"
)

const maxInboundMessageBytes int64 = 256 << 10

// inboundMessage is the envelope clients send over the websocket.
type inboundMessage struct {
	Type string `json:"type"`

	// transcript_chunk
	ChunkID   string    `json:"chunk_id,omitempty"`
	Text      string    `json:"text,omitempty"`
	Speaker   string    `json:"speaker,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Seq       int64     `json:"seq,omitempty"`

	// mark_answered / dismiss_question
	QuestionID string `json:"question_id,omitempty"`
	Answer     string `json:"answer,omitempty"`

	// assign_action
	ActionID string `json:"action_id,omitempty"`
	Owner    string `json:"owner,omitempty"`
}

type server struct {
	logger   *log.Logger
	hub      *Hub
	registry *session.Registry
	store    *store.Store
}

// NewServer builds the HTTP server: websocket attach per session plus the
// post-meeting query surface.
func NewServer(logger *log.Logger, addr string, hub *Hub, registry *session.Registry, st *store.Store) *http.Server {
	s := &server{logger: logger, hub: hub, registry: registry, store: st}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/sessions/{id}/ws", s.handleSessionWS)
	mux.HandleFunc("GET /v1/sessions/{id}/health", s.handleSessionHealth)
	mux.HandleFunc("POST /v1/sessions/{id}/finalize", s.handleFinalize)
	mux.HandleFunc("GET /v1/sessions/{id}/insights", s.handleSessionInsights)
	mux.HandleFunc("GET /v1/projects/{id}/insights", s.handleProjectInsights)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleSessionWS attaches one client to a meeting. The session is created
// on first attach; reconnecting clients receive a SYNC_STATE snapshot
// before any live events.
func (s *server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if strings.TrimSpace(sessionID) == "" {
		http.Error(w, "session id is required", http.StatusBadRequest)
		return
	}
	projectID := r.URL.Query().Get("project_id")
	orgID := r.URL.Query().Get("org_id")

	sess, err := s.registry.Open(sessionID, projectID, orgID)
	if err != nil {
		s.logger.Printf("gateway: failed to open session %s: %v", sessionID, err)
		http.Error(w, "failed to open session", http.StatusInternalServerError)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("gateway: ws upgrade failed for session %s: %v", sessionID, err)
		return
	}
	conn.SetReadLimit(maxInboundMessageBytes)

	c := &client{sessionID: sessionID, conn: conn, send: make(chan insight.Event, sendQueueSize)}
	s.hub.register(c)
	go c.writePump()

	// State snapshot first, so a reconnecting client rebuilds its view
	// before live events resume.
	c.send <- insight.NewEvent(insight.EventSyncState, sessionID, sess.Snapshot())

	s.readPump(sess, c)
}

// readPump consumes client commands until the connection drops.
func (s *server) readPump(sess *session.Session, c *client) {
	defer s.hub.unregister(c)
	defer c.conn.Close()

	for {
		var msg inboundMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Printf("gateway: session %s client error: %v", c.sessionID, err)
			}
			return
		}
		if err := s.handleCommand(sess, c, msg); err != nil {
			s.sendError(c, msg.Type, err)
		}
	}
}

func (s *server) handleCommand(sess *session.Session, c *client, msg inboundMessage) error {
	switch msg.Type {
	case "transcript_chunk":
		if strings.TrimSpace(msg.ChunkID) == "" || strings.TrimSpace(msg.Text) == "" {
			return fmt.Errorf("chunk_id and text are required")
		}
		at := msg.Timestamp
		if at.IsZero() {
			at = time.Now().UTC()
		}
		return sess.Ingest(msg.ChunkID, msg.Text, msg.Speaker, at, msg.Seq)

	case "mark_answered":
		if !sess.MarkAnswered(msg.QuestionID, msg.Answer) {
			return fmt.Errorf("question %s not found or already resolved", msg.QuestionID)
		}
		return nil

	case "dismiss_question":
		if !sess.DismissQuestion(msg.QuestionID) {
			return fmt.Errorf("question %s not found or already resolved", msg.QuestionID)
		}
		return nil

	case "assign_action":
		if !sess.AssignAction(msg.ActionID, msg.Owner) {
			return fmt.Errorf("action %s not found", msg.ActionID)
		}
		return nil

	case "pause":
		return sess.Pause()

	case "resume":
		return sess.Resume()

	case "sync":
		select {
		case c.send <- insight.NewEvent(insight.EventSyncState, c.sessionID, sess.Snapshot()):
		default:
		}
		return nil

	default:
		return fmt.Errorf("unsupported message type %q", msg.Type)
	}
}

// sendError reports a command failure to the one client that issued it.
func (s *server) sendError(c *client, op string, err error) {
	evt := insight.NewEvent(insight.EventError, c.sessionID, insight.ErrorPayload{
		Op:      op,
		Message: err.Error(),
	})
	select {
	case c.send <- evt:
	default:
	}
}

func (s *server) handleSessionHealth(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.registry.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sess.Health())
}

func (s *server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Finalize(r.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrUnknownSession) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"finalized": true, "session_id": id})
}

func (s *server) handleSessionInsights(w http.ResponseWriter, r *http.Request) {
	s.queryInsights(w, r, func(q store.Query) ([]store.Record, error) {
		return s.store.QueryBySession(r.Context(), r.PathValue("id"), q)
	})
}

func (s *server) handleProjectInsights(w http.ResponseWriter, r *http.Request) {
	s.queryInsights(w, r, func(q store.Query) ([]store.Record, error) {
		return s.store.QueryByProject(r.Context(), r.PathValue("id"), q)
	})
}

func (s *server) queryInsights(w http.ResponseWriter, r *http.Request, run func(store.Query) ([]store.Record, error)) {
	if s.store == nil {
		http.Error(w, "persistence not configured", http.StatusNotImplemented)
		return
	}

	q := store.Query{
		Kind:     store.InsightKind(r.URL.Query().Get("kind")),
		Priority: store.Priority(r.URL.Query().Get("priority")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
		q.Offset = n
	}

	records, err := run(q)
	if err != nil {
		s.logger.Printf("gateway: insight query failed: %v", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": records})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("gateway: failed to encode response: %v", err)
	}
}
