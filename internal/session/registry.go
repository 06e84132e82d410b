package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// DefaultIdleTimeout is how long a session may go without chunks or user
// activity before the registry finalizes it.
const DefaultIdleTimeout = 30 * time.Minute

// ErrUnknownSession is returned by Finalize for ids the registry does not
// hold. Callers distinguish it from a finalize failure of a real session.
var ErrUnknownSession = errors.New("unknown session")

// Registry tracks live sessions and reaps the ones that go idle.
type Registry struct {
	cfg         Config
	deps        Deps
	idleTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewRegistry builds a registry that assembles sessions from the shared
// dependencies. idleTimeout <= 0 uses the default.
func NewRegistry(cfg Config, deps Deps, idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Registry{
		cfg:         cfg,
		deps:        deps,
		idleTimeout: idleTimeout,
		sessions:    make(map[string]*Session),
		stop:        make(chan struct{}),
	}
}

// Start launches the idle reaper.
func (r *Registry) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.reapIdle()
			}
		}
	}()
}

// Open returns the session with the given id, creating and starting it on
// first use.
func (r *Registry) Open(id, projectID, orgID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return s, nil
	}

	s, err := New(id, projectID, orgID, r.cfg, r.deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create session %s: %w", id, err)
	}
	s.Start()
	r.sessions[id] = s
	return s, nil
}

// Get returns an existing session, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Finalize ends one session and removes it from the registry.
func (r *Registry) Finalize(ctx context.Context, id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	if _, err := s.Finalize(ctx); err != nil {
		return err
	}
	return nil
}

// reapIdle finalizes sessions past the idle timeout.
func (r *Registry) reapIdle() {
	cutoff := time.Now().Add(-r.idleTimeout)

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := s.Finalize(ctx); err != nil {
			log.Printf("registry: failed to finalize idle session %s: %v", s.ID, err)
		} else {
			log.Printf("registry: finalized idle session %s", s.ID)
		}
		cancel()
	}
}

// Shutdown stops the reaper and finalizes every remaining session.
func (r *Registry) Shutdown(ctx context.Context) {
	select {
	case <-r.stop:
	default:
		close(r.stop)
	}
	r.wg.Wait()

	r.mu.Lock()
	remaining := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		remaining = append(remaining, s)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, s := range remaining {
		if _, err := s.Finalize(ctx); err != nil {
			log.Printf("registry: failed to finalize session %s on shutdown: %v", s.ID, err)
		}
	}
}
