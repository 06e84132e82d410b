// Package search provides the tiered answer-discovery collaborators: the
// document knowledge index (tier 1), the per-session meeting index (tier 2),
// and the AI fallback generator (tier 4). Tier 3 is a live-conversation wait
// owned by the question handler and does not search anything.
package search

import "context"

// DocHit is one ranked knowledge-base result.
type DocHit struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
}

// DocumentSearcher is the tier-1 collaborator contract. Implementations
// declare themselves unavailable rather than hang; callers bound Search with
// a deadline context and treat timeouts as "no result".
type DocumentSearcher interface {
	Available() bool
	Search(ctx context.Context, tenant, query string, k int) ([]DocHit, error)
}

// MeetingHit is one in-meeting semantic search result.
type MeetingHit struct {
	ChunkID string  `json:"chunk_id"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
	Score   float64 `json:"score"`
}

// MeetingSearcher is the tier-2 collaborator contract, scoped to one
// session's transcript.
type MeetingSearcher interface {
	Index(chunkID, text, speaker string) error
	Search(ctx context.Context, query string, k int) ([]MeetingHit, error)
	Close() error
}

// GeneratedAnswer is the tier-4 result with self-reported confidence.
type GeneratedAnswer struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

// AnswerGenerator is the tier-4 collaborator contract.
type AnswerGenerator interface {
	Generate(ctx context.Context, question, meetingContext string) (GeneratedAnswer, error)
}

// squashScore maps an unbounded bleve relevance score into (0,1).
func squashScore(s float64) float64 {
	if s <= 0 {
		return 0
	}
	return s / (s + 1)
}
