package search

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// KnowledgeWatcher keeps the knowledge index in sync with the documents
// directory: file writes reindex the document, removals delete it. Events
// are debounced so editors that write in bursts trigger one reindex.
type KnowledgeWatcher struct {
	root    string
	index   *KnowledgeIndex
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]bool

	debounce time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewKnowledgeWatcher creates a watcher over the knowledge root.
func NewKnowledgeWatcher(root string, index *KnowledgeIndex) (*KnowledgeWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &KnowledgeWatcher{
		root:     root,
		index:    index,
		watcher:  watcher,
		pending:  make(map[string]bool),
		debounce: 500 * time.Millisecond,
		stop:     make(chan struct{}),
	}, nil
}

// Start registers all directories under the root and begins watching.
func (w *KnowledgeWatcher) Start() error {
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && !strings.HasPrefix(d.Name(), ".") {
			if err := w.watcher.Add(path); err != nil {
				log.Printf("knowledge watcher: cannot watch %s: %v", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("register watch dirs: %w", err)
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop halts the watcher and waits for the event loop to exit.
func (w *KnowledgeWatcher) Stop() {
	select {
	case <-w.stop:
	default:
		close(w.stop)
	}
	w.watcher.Close()
	w.wg.Wait()
}

func (w *KnowledgeWatcher) loop() {
	defer w.wg.Done()
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !docExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				// New directories need to be watched for future docs.
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						_ = w.watcher.Add(event.Name)
					}
				}
				continue
			}
			w.mu.Lock()
			w.pending[event.Name] = true
			w.mu.Unlock()
			timer.Reset(w.debounce)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("knowledge watcher: %v", err)
		case <-timer.C:
			w.flush()
		}
	}
}

// flush reindexes all pending paths.
func (w *KnowledgeWatcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()

	for _, path := range paths {
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			continue
		}
		parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
		if len(parts) < 2 {
			continue
		}
		tenant, docPath := parts[0], parts[1]

		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			if err := w.index.RemoveDocument(tenant, docPath); err != nil {
				log.Printf("knowledge watcher: remove %s: %v", rel, err)
			}
			continue
		}
		if err != nil {
			log.Printf("knowledge watcher: read %s: %v", rel, err)
			continue
		}
		if err := w.index.IndexDocument(tenant, docPath, string(data)); err != nil {
			log.Printf("knowledge watcher: index %s: %v", rel, err)
		}
	}
}
