package config

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"emotive.arpa/agent/topics"
)

const pollInterval = 30 * time.Second

// TopicsFile is the layout of a topics file.
//
//	emotions:
//	  - name: happiness
//	    topics: [love, peace, food]
type TopicsFile struct {
	Emotions []topics.Entry `json:"emotions" yaml:"emotions"`
}

// LoadTopics reads the emotion entries from a YAML or JSON topics file.
func LoadTopics(filePath string) ([]topics.Entry, error) {
	var file TopicsFile
	if err := ReadConfig(filePath, &file); err != nil {
		return nil, err
	}
	if len(file.Emotions) == 0 {
		return nil, fmt.Errorf("no emotions in %s", filePath)
	}
	return file.Emotions, nil
}

// TopicsWatcher reloads a topics file when it changes and hands the entries
// to registered callbacks.
type TopicsWatcher struct {
	log           *zap.Logger
	filePath      string
	lastModTime   time.Time
	watcher       *fsnotify.Watcher
	pollingTicker *time.Ticker
	stopOnce      sync.Once
	stopCh        chan struct{}
	done          chan struct{}
	mu            sync.RWMutex
	callbacks     map[string]func([]topics.Entry)
	entries       []topics.Entry
}

func NewTopicsWatcher(log *zap.Logger, filePath string) (*TopicsWatcher, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("get absolute path: %w", err)
	}

	fileInfo, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat topics file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	return &TopicsWatcher{
		log:         log,
		filePath:    absPath,
		lastModTime: fileInfo.ModTime(),
		watcher:     watcher,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		callbacks:   make(map[string]func([]topics.Entry)),
	}, nil
}

// Start loads the file and watches it until ctx is done or Stop is called.
func (w *TopicsWatcher) Start(ctx context.Context) error {
	if err := w.load(); err != nil {
		return fmt.Errorf("load topics: %w", err)
	}

	// Editors that replace the file break the inotify watch; the directory sees the rename.
	if err := w.watcher.Add(filepath.Dir(w.filePath)); err != nil {
		w.log.Warn("Could not watch topics file, falling back to polling only.",
			zap.String("file", w.filePath),
			zap.Error(err),
		)
	}
	w.pollingTicker = time.NewTicker(pollInterval)

	go w.watch(ctx)
	w.log.Debug("Topics watcher started.", zap.String("file", w.filePath))
	return nil
}

// Stop ends the watch loop and waits for it to exit.
func (w *TopicsWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
		if w.pollingTicker != nil {
			w.pollingTicker.Stop()
			<-w.done
		}
	})
}

// AddCallback registers fn and calls it right away if the file is loaded.
func (w *TopicsWatcher) AddCallback(name string, fn func([]topics.Entry)) {
	w.mu.Lock()
	w.callbacks[name] = fn
	entries := w.entries
	w.mu.Unlock()

	if entries != nil {
		fn(entries)
	}
}

// Entries returns the most recently loaded entries.
func (w *TopicsWatcher) Entries() []topics.Entry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.entries
}

func (w *TopicsWatcher) load() error {
	entries, err := LoadTopics(w.filePath)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.entries = entries
	w.mu.Unlock()
	return nil
}

func (w *TopicsWatcher) watch(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-w.pollingTicker.C:
			w.checkFileModification()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.filePath {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) != 0 {
				w.checkFileModification()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("File watcher error.", zap.Error(err))
		}
	}
}

func (w *TopicsWatcher) checkFileModification() {
	fileInfo, err := os.Stat(w.filePath)
	if err != nil {
		w.log.Error("Failed to stat topics file.",
			zap.String("file", w.filePath),
			zap.Error(err),
		)
		return
	}
	if !fileInfo.ModTime().After(w.lastModTime) {
		return
	}
	w.log.Info("Topics file changed, reloading.", zap.String("file", w.filePath))

	// A failed load keeps the old modification time so the next event retries.
	if err := w.load(); err != nil {
		w.log.Error("Failed to reload topics.", zap.Error(err))
		return
	}
	w.lastModTime = fileInfo.ModTime()
	w.notifyCallbacks()
}

func (w *TopicsWatcher) notifyCallbacks() {
	w.mu.RLock()
	entries := w.entries
	callbacks := maps.Clone(w.callbacks)
	w.mu.RUnlock()

	for name, fn := range callbacks {
		w.log.Debug("Notifying topics callback.", zap.String("callback", name))
		fn(entries)
	}
}

// ReadConfig reads and parses a config file into the provided struct
func ReadConfig(filePath string, v any) error {
	ext := filepath.Ext(filePath)

	content, err := os.ReadFile(filePath) // #nosec G304 -- filePath is controlled by configuration
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(content, v); err != nil {
			return fmt.Errorf("unmarshal json: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, v); err != nil {
			return fmt.Errorf("unmarshal yaml: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return nil
}
