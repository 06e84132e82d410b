package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Tell-Me-Mo/insight-engine/internal/insight"
)

// DetectionStream is a lazy sequence of detection objects parsed from one
// streaming inference request. Records are yielded as soon as each logical
// line boundary is seen. Malformed lines are discarded, not raised. After
// Next returns false, Err reports nil for a clean end or the terminal error
// marker when every retry was exhausted.
type DetectionStream struct {
	ch chan insight.DetectionObject

	mu        sync.Mutex
	err       error
	discarded int
	repaired  int
}

func newDetectionStream() *DetectionStream {
	return &DetectionStream{ch: make(chan insight.DetectionObject, 16)}
}

// Next blocks for the next detection. ok is false once the stream ends.
func (s *DetectionStream) Next() (det insight.DetectionObject, ok bool) {
	det, ok = <-s.ch
	return det, ok
}

// Err returns the terminal error, if any. Valid after Next returned false.
func (s *DetectionStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Discarded counts malformed lines dropped from this stream.
func (s *DetectionStream) Discarded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discarded
}

// Repaired counts identifier substitutions performed on this stream.
func (s *DetectionStream) Repaired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repaired
}

func (s *DetectionStream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.ch)
}

// run drives the request, retrying the identical context on mid-stream
// failure with exponential backoff. Records already emitted are tracked so a
// retry replaying the same response never duplicates them downstream.
func (s *DetectionStream) run(ctx context.Context, llm LLMClient, req CompletionRequest, opts Options) {
	emitted := make(map[string]bool)
	backoff := opts.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				s.finish(ctx.Err())
				return
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err := s.consumeOnce(ctx, llm, req, emitted)
		if err == nil {
			s.finish(nil)
			return
		}
		if ctx.Err() != nil {
			s.finish(ctx.Err())
			return
		}
		lastErr = err
		log.Printf("inference: detection stream attempt %d/%d failed: %v", attempt+1, opts.MaxRetries+1, err)
	}

	s.finish(fmt.Errorf("detection stream failed after %d attempts: %w", opts.MaxRetries+1, lastErr))
}

// consumeOnce issues one streaming request and parses records out of the
// delta stream. Returns nil on clean end-of-stream.
func (s *DetectionStream) consumeOnce(ctx context.Context, llm LLMClient, req CompletionRequest, emitted map[string]bool) error {
	deltaCh, errCh := llm.StreamCompletion(ctx, req)

	var buf strings.Builder
	for {
		select {
		case delta, ok := <-deltaCh:
			if !ok {
				deltaCh = nil
				if errCh == nil {
					s.flushRemainder(ctx, buf.String(), emitted)
					return nil
				}
				continue
			}
			buf.WriteString(delta)
			rest := s.emitCompleteLines(ctx, buf.String(), emitted)
			buf.Reset()
			buf.WriteString(rest)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				if deltaCh == nil {
					s.flushRemainder(ctx, buf.String(), emitted)
					return nil
				}
				continue
			}
			if err != nil {
				return err
			}
			errCh = nil
		case <-ctx.Done():
			return ctx.Err()
		}
		if deltaCh == nil && errCh == nil {
			s.flushRemainder(ctx, buf.String(), emitted)
			return nil
		}
	}
}

// emitCompleteLines parses every newline-terminated record in pending and
// returns the unterminated remainder.
func (s *DetectionStream) emitCompleteLines(ctx context.Context, pending string, emitted map[string]bool) string {
	for {
		idx := strings.IndexByte(pending, '\n')
		if idx < 0 {
			return pending
		}
		line := strings.TrimSpace(pending[:idx])
		pending = pending[idx+1:]
		if line == "" {
			continue
		}
		s.emitLine(ctx, line, emitted)
	}
}

// flushRemainder handles a final record the model did not newline-terminate.
func (s *DetectionStream) flushRemainder(ctx context.Context, pending string, emitted map[string]bool) {
	line := strings.TrimSpace(pending)
	if line == "" {
		return
	}
	s.emitLine(ctx, line, emitted)
}

// emitLine validates, repairs, and yields one record. Failures only bump the
// discard counter; a bad line never fails the stream.
func (s *DetectionStream) emitLine(ctx context.Context, line string, emitted map[string]bool) {
	det, ok := s.parseLine(line)
	if !ok {
		return
	}
	if det.ID != "" && emitted[det.ID] {
		// Replay after a retry, or the model repeating itself.
		return
	}
	select {
	case s.ch <- det:
		if det.ID != "" {
			emitted[det.ID] = true
		}
	case <-ctx.Done():
	}
}

func (s *DetectionStream) parseLine(line string) (insight.DetectionObject, bool) {
	if err := validateDetection([]byte(line)); err != nil {
		s.discard(line, err)
		return insight.DetectionObject{}, false
	}

	var det insight.DetectionObject
	if err := json.Unmarshal([]byte(line), &det); err != nil {
		s.discard(line, err)
		return insight.DetectionObject{}, false
	}

	// Repair the record's own identifier. Answer detections carry no
	// identifier of their own, only an optional question reference.
	if prefix := insight.PrefixFor(det.Type); prefix != "" {
		fixed, replaced := insight.RepairID(prefix, det.ID)
		if replaced {
			log.Printf("inference: minted %s in place of malformed id %q", fixed, det.ID)
			s.bumpRepaired()
		}
		det.ID = fixed
	}

	// A malformed question reference on an answer cannot be usefully
	// re-minted; clearing it routes the answer through similarity matching.
	if det.Type == insight.DetectionAnswer && det.QuestionID != "" {
		if !insight.ValidID(insight.QuestionIDPrefix, det.QuestionID) {
			log.Printf("inference: dropped malformed question reference %q on answer", det.QuestionID)
			det.QuestionID = ""
			s.bumpRepaired()
		}
	}

	return det, true
}

func (s *DetectionStream) discard(line string, err error) {
	s.mu.Lock()
	s.discarded++
	s.mu.Unlock()
	if len(line) > 120 {
		line = line[:120] + "..."
	}
	log.Printf("inference: discarded malformed record %q: %v", line, err)
}

func (s *DetectionStream) bumpRepaired() {
	s.mu.Lock()
	s.repaired++
	s.mu.Unlock()
}
