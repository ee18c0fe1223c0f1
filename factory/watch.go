package factory

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/warp/billing-engine/generic"
)

// CatalogWatcher reloads a catalog file whenever it changes on disk and
// hands the parsed brackets to Apply.
type CatalogWatcher struct {
	Path     string
	Factory  *BracketFactory
	Apply    func(ctx context.Context, brackets []generic.Bracket) error
	Logger   logrus.FieldLogger
	Debounce time.Duration
}

// NewCatalogWatcher creates a watcher with a 250ms debounce.
func NewCatalogWatcher(path string, f *BracketFactory, apply func(context.Context, []generic.Bracket) error, logger logrus.FieldLogger) *CatalogWatcher {
	return &CatalogWatcher{
		Path:     path,
		Factory:  f,
		Apply:    apply,
		Logger:   logger,
		Debounce: 250 * time.Millisecond,
	}
}

// Reload parses the file once and applies it.
func (w *CatalogWatcher) Reload(ctx context.Context) (int, error) {
	brackets, err := w.Factory.LoadCatalogFile(w.Path)
	if err != nil {
		return 0, err
	}
	if err := w.Apply(ctx, brackets); err != nil {
		return 0, err
	}
	return len(brackets), nil
}

// Run watches the file's directory until ctx is cancelled. Editors often
// replace files by rename, so the directory is watched rather than the file.
// Run returns only after any pending reload has finished.
func (w *CatalogWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir, file := filepath.Split(w.Path)
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}
	target := filepath.Join(dir, file)

	var (
		timerMu  sync.Mutex
		timer    *time.Timer
		inflight sync.WaitGroup
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil && timer.Stop() {
			inflight.Done()
		}
		inflight.Add(1)
		timer = time.AfterFunc(w.Debounce, func() {
			defer inflight.Done()
			if ctx.Err() != nil {
				return
			}
			n, err := w.Reload(ctx)
			if err != nil {
				w.Logger.WithError(err).WithField("path", w.Path).Warn("[CatalogWatcher] reload failed, keeping previous catalog")
				return
			}
			w.Logger.WithFields(logrus.Fields{"path": w.Path, "brackets": n}).Info("[CatalogWatcher] catalog reloaded")
		})
	}
	// wait for a reload that already started
	defer func() {
		timerMu.Lock()
		if timer != nil && timer.Stop() {
			inflight.Done()
		}
		timerMu.Unlock()
		inflight.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == filepath.Clean(target) &&
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.WithError(err).Warn("[CatalogWatcher] watch error")
		}
	}
}
