package search

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// KnowledgeIndex is the tier-1 document search backend: a bleve index over
// the organization's knowledge-base documents, tenant-scoped per query.
type KnowledgeIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

// NewKnowledgeIndex creates or opens the on-disk index. A corrupted index is
// deleted and recreated rather than failing startup.
func NewKnowledgeIndex(dbPath string) (*KnowledgeIndex, error) {
	indexPath := dbPath + ".bleve"

	index, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		index, err = bleve.New(indexPath, buildKnowledgeMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create knowledge index: %w", err)
		}
	} else if err != nil {
		log.Printf("knowledge index appears corrupted (%v), recreating", err)
		if index != nil {
			index.Close()
		}
		if err := os.RemoveAll(indexPath); err != nil {
			return nil, fmt.Errorf("failed to remove corrupted index: %w", err)
		}
		index, err = bleve.New(indexPath, buildKnowledgeMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to recreate knowledge index: %w", err)
		}
	}

	return &KnowledgeIndex{index: index, path: indexPath}, nil
}

func buildKnowledgeMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	tenantField := bleve.NewTextFieldMapping()
	tenantField.Analyzer = keyword.Name
	tenantField.Store = true
	tenantField.Index = true
	docMapping.AddFieldMappingsAt("tenant", tenantField)

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = keyword.Name
	pathField.Store = true
	pathField.Index = true
	docMapping.AddFieldMappingsAt("path", pathField)

	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = standard.Name
	contentField.Store = true
	contentField.Index = true
	docMapping.AddFieldMappingsAt("content", contentField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

// IndexDocument adds or replaces one document under the given tenant scope.
func (k *KnowledgeIndex) IndexDocument(tenant, path, content string) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.index == nil {
		return fmt.Errorf("knowledge index closed")
	}
	doc := map[string]interface{}{
		"tenant":  tenant,
		"path":    path,
		"content": content,
	}
	return k.index.Index(tenant+"/"+path, doc)
}

// RemoveDocument deletes one document from the index.
func (k *KnowledgeIndex) RemoveDocument(tenant, path string) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.index == nil {
		return fmt.Errorf("knowledge index closed")
	}
	return k.index.Delete(tenant + "/" + path)
}

// Available reports whether the index can serve queries.
func (k *KnowledgeIndex) Available() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.index != nil
}

// Search returns up to k ranked hits for the query within the tenant scope.
func (k *KnowledgeIndex) Search(ctx context.Context, tenant, query string, size int) ([]DocHit, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.index == nil {
		return nil, fmt.Errorf("knowledge index closed")
	}
	if size <= 0 {
		size = 5
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("content")
	tenantQuery := bleve.NewTermQuery(tenant)
	tenantQuery.SetField("tenant")
	combined := bleve.NewConjunctionQuery(match, tenantQuery)

	req := bleve.NewSearchRequest(combined)
	req.Size = size
	req.Fields = []string{"content", "path"}

	result, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("knowledge search failed: %w", err)
	}

	hits := make([]DocHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out := DocHit{Score: squashScore(hit.Score)}
		if content, ok := hit.Fields["content"].(string); ok {
			out.Content = content
		}
		if path, ok := hit.Fields["path"].(string); ok {
			out.Source = path
		}
		hits = append(hits, out)
	}
	return hits, nil
}

// Close releases the index. Further calls report unavailable.
func (k *KnowledgeIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.index == nil {
		return nil
	}
	err := k.index.Close()
	k.index = nil
	return err
}
