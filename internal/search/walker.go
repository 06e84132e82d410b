package search

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DocFile is one knowledge-base document discovered on disk. Tenant is the
// first path segment under the knowledge root: documents are laid out as
// <root>/<tenant>/<path-to-doc>.
type DocFile struct {
	Tenant  string
	Path    string // relative to the tenant directory
	AbsPath string
}

// docExtensions are the file types treated as knowledge documents.
var docExtensions = map[string]bool{
	".md":   true,
	".txt":  true,
	".rst":  true,
	".adoc": true,
}

// ignoreFileName is an optional gitignore-style file at the knowledge root
// excluding documents from indexing.
const ignoreFileName = ".kbignore"

// WalkDocs discovers all knowledge documents under root, honoring .kbignore
// patterns. Unreadable entries are skipped, not fatal.
func WalkDocs(root string) ([]DocFile, error) {
	matcher := loadIgnoreMatcher(root)

	var docs []DocFile
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !docExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
		if len(parts) < 2 {
			// Top-level files have no tenant scope; skip them.
			return nil
		}
		docs = append(docs, DocFile{Tenant: parts[0], Path: parts[1], AbsPath: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk knowledge root: %w", err)
	}
	return docs, nil
}

// IndexTree walks root and indexes every discovered document. Returns the
// number of documents indexed; per-file failures are counted and skipped.
func IndexTree(index *KnowledgeIndex, root string) (int, error) {
	docs, err := WalkDocs(root)
	if err != nil {
		return 0, err
	}
	indexed := 0
	for _, doc := range docs {
		data, err := os.ReadFile(doc.AbsPath)
		if err != nil {
			continue
		}
		if err := index.IndexDocument(doc.Tenant, doc.Path, string(data)); err != nil {
			continue
		}
		indexed++
	}
	return indexed, nil
}

func loadIgnoreMatcher(root string) *gitignore.GitIgnore {
	ignorePath := filepath.Join(root, ignoreFileName)
	matcher, err := gitignore.CompileIgnoreFile(ignorePath)
	if err != nil {
		return nil // no ignore file, nothing excluded
	}
	return matcher
}
