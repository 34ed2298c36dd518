package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefinitionLoader reads workflow definition YAML files from a directory,
// registers them with the orchestrator, and hot-reloads on file changes.
// Invalid files are logged and skipped; they never unregister a previously
// good definition.
type DefinitionLoader struct {
	dir          string
	orchestrator *Orchestrator
	logger       *zap.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewDefinitionLoader builds a loader for one directory.
func NewDefinitionLoader(dir string, o *Orchestrator, logger *zap.Logger) (*DefinitionLoader, error) {
	if dir == "" {
		return nil, fmt.Errorf("definitions directory cannot be empty")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &DefinitionLoader{
		dir:          dir,
		orchestrator: o,
		logger:       logger,
		watcher:      watcher,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start loads every definition file in the directory and begins watching for
// changes. Returns the count of definitions loaded.
func (l *DefinitionLoader) Start() (int, error) {
	loaded, err := l.LoadAll()
	if err != nil {
		return 0, err
	}

	if err := l.watcher.Add(l.dir); err != nil {
		return loaded, fmt.Errorf("watch %s: %w", l.dir, err)
	}
	l.wg.Add(1)
	go l.watch()
	return loaded, nil
}

// Close stops the watcher.
func (l *DefinitionLoader) Close() error {
	l.once.Do(func() { close(l.stopCh) })
	err := l.watcher.Close()
	l.wg.Wait()
	return err
}

// LoadAll scans the directory once and registers every parseable definition.
func (l *DefinitionLoader) LoadAll() (int, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, fmt.Errorf("read definitions dir %s: %w", l.dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !isDefinitionFile(entry.Name()) {
			continue
		}
		if err := l.loadFile(filepath.Join(l.dir, entry.Name())); err != nil {
			l.logger.Warn("Skipping workflow definition file",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		loaded++
	}
	return loaded, nil
}

func (l *DefinitionLoader) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var def WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if err := l.orchestrator.RegisterWorkflowTemplate(&def); err != nil {
		return fmt.Errorf("register %s: %w", path, err)
	}

	l.logger.Info("Workflow definition loaded",
		zap.String("file", filepath.Base(path)),
		zap.String("workflow_id", def.WorkflowID))
	return nil
}

func (l *DefinitionLoader) watch() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if !isDefinitionFile(filepath.Base(event.Name)) {
				continue
			}
			if err := l.loadFile(event.Name); err != nil {
				l.logger.Warn("Reload of workflow definition failed",
					zap.String("file", event.Name), zap.Error(err))
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("Definition watcher error", zap.Error(err))
		}
	}
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
