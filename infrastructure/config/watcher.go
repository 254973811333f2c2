package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"north-backend/application/limits"
)

// LimitSet holds the current daily caps and can be swapped at runtime.
type LimitSet struct {
	caps atomic.Pointer[limits.Caps]
}

var _ limits.CapsSource = (*LimitSet)(nil)

// NewLimitSet creates a set holding caps.
func NewLimitSet(caps limits.Caps) *LimitSet {
	s := &LimitSet{}
	s.Store(caps)
	return s
}

// Caps returns the current snapshot.
func (s *LimitSet) Caps() limits.Caps { return *s.caps.Load() }

// Store replaces the snapshot.
func (s *LimitSet) Store(caps limits.Caps) { s.caps.Store(&caps) }

// readLimits reads the limits section of the YAML file at path. Keys absent
// from the file keep their value in base; LIMIT_* variables still win.
func readLimits(path string, base limits.Caps) (limits.Caps, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}
	doc := struct {
		Limits limits.Caps `yaml:"limits"`
	}{Limits: base}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return base, fmt.Errorf("parse config file: %w", err)
	}

	caps := doc.Limits
	caps.Decompose = getEnvInt("LIMIT_DECOMPOSE", caps.Decompose)
	caps.Refine = getEnvInt("LIMIT_REFINE", caps.Refine)
	caps.Research = getEnvInt("LIMIT_RESEARCH", caps.Research)
	if caps.Decompose < 0 || caps.Refine < 0 || caps.Research < 0 {
		return base, fmt.Errorf("limits must not be negative: %+v", caps)
	}
	return caps, nil
}

// Watcher reloads the limits section of the config file into a LimitSet
// whenever the file changes.
type Watcher struct {
	path     string
	limits   *LimitSet
	logger   *zap.Logger
	debounce time.Duration
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, set *LimitSet, logger *zap.Logger) *Watcher {
	return &Watcher{
		path:     path,
		limits:   set,
		logger:   logger,
		debounce: 100 * time.Millisecond,
	}
}

// Run watches until ctx is cancelled. The directory is watched as well so
// editors that save by rename are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.logger.Info("Config watcher started", zap.String("path", w.path))

	reload := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	current := w.limits.Caps()
	next, err := readLimits(w.path, current)
	if err != nil {
		w.logger.Error("Failed to reload limits, keeping current", zap.Error(err))
		return
	}
	if next == current {
		return
	}
	w.limits.Store(next)
	w.logger.Info("Daily limits reloaded",
		zap.Int("decompose", next.Decompose),
		zap.Int("refine", next.Refine),
		zap.Int("research", next.Research))
}
