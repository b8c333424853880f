package maintenance

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads an Evaluator's rules when the rules file changes. A file
// that fails to parse leaves the previous rules in place.
type Watcher struct {
	path      string
	evaluator *Evaluator
	watcher   *fsnotify.Watcher
	logger    *log.Logger
	reloaded  chan struct{}
}

// NewWatcher loads path into evaluator and starts watching its directory
// (editors often replace files rather than write them in place).
func NewWatcher(path string, evaluator *Evaluator, logger *log.Logger) (*Watcher, error) {
	rules, err := LoadRules(path)
	if err != nil {
		return nil, err
	}
	evaluator.SetRules(rules)
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &Watcher{path: filepath.Clean(path), evaluator: evaluator, watcher: fw, logger: logger, reloaded: make(chan struct{}, 1)}, nil
}

// Reloaded signals after each successful reload. Tests use it to wait.
func (w *Watcher) Reloaded() <-chan struct{} { return w.reloaded }

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("maintenance: watch error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	rules, err := LoadRules(w.path)
	if err != nil {
		w.logger.Printf("maintenance: keeping previous rules: %v", err)
		return
	}
	w.evaluator.SetRules(rules)
	w.logger.Printf("maintenance: rules reloaded from %s (default interval %gh)", w.path, rules.DefaultIntervalHours)
	select {
	case w.reloaded <- struct{}{}:
	default:
	}
}
