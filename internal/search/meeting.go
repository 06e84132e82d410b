package search

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// MeetingIndex is the tier-2 backend: an in-memory bleve index over one
// session's transcript chunks. It lives and dies with its session.
type MeetingIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewMeetingIndex creates a fresh in-memory index.
func NewMeetingIndex() (*MeetingIndex, error) {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = true
	textField.Index = true
	docMapping.AddFieldMappingsAt("text", textField)

	speakerField := bleve.NewTextFieldMapping()
	speakerField.Analyzer = keyword.Name
	speakerField.Store = true
	speakerField.Index = true
	docMapping.AddFieldMappingsAt("speaker", speakerField)

	indexMapping.DefaultMapping = docMapping

	index, err := bleve.NewMemOnly(indexMapping)
	if err != nil {
		return nil, fmt.Errorf("failed to create meeting index: %w", err)
	}
	return &MeetingIndex{index: index}, nil
}

// Index adds one transcript chunk. Indexing the same chunk id again
// overwrites in place, so replays are harmless.
func (m *MeetingIndex) Index(chunkID, text, speaker string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.index == nil {
		return fmt.Errorf("meeting index closed")
	}
	return m.index.Index(chunkID, map[string]interface{}{
		"text":    text,
		"speaker": speaker,
	})
}

// Search returns up to k chunks relevant to the query.
func (m *MeetingIndex) Search(ctx context.Context, query string, k int) ([]MeetingHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.index == nil {
		return nil, fmt.Errorf("meeting index closed")
	}
	if k <= 0 {
		k = 3
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("text")
	req := bleve.NewSearchRequest(match)
	req.Size = k
	req.Fields = []string{"text", "speaker"}

	result, err := m.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("meeting search failed: %w", err)
	}

	hits := make([]MeetingHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out := MeetingHit{ChunkID: hit.ID, Score: squashScore(hit.Score)}
		if text, ok := hit.Fields["text"].(string); ok {
			out.Text = text
		}
		if speaker, ok := hit.Fields["speaker"].(string); ok {
			out.Speaker = speaker
		}
		hits = append(hits, out)
	}
	return hits, nil
}

// Close releases the in-memory index.
func (m *MeetingIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == nil {
		return nil
	}
	err := m.index.Close()
	m.index = nil
	return err
}
