// Package watch re-checks patch state whenever the extracted tree changes,
// which is how a regenerated build shows up during development: the chunk
// filenames rotate, discovery re-runs, and every patch reports its state
// against the new content.
package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"autopatch/internal/config"
	"autopatch/internal/patch"
	"autopatch/internal/pipeline"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ScanFunc runs one re-check of the tree. The default classifies every
// catalogue patch against current content.
type ScanFunc func(extracted string) error

type Watcher struct {
	cfg      *config.Config
	pipe     *pipeline.Pipeline
	out      io.Writer
	log      *zap.Logger
	debounce time.Duration
	scan     ScanFunc
}

func New(cfg *config.Config, pipe *pipeline.Pipeline, out io.Writer, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	if out == nil {
		out = os.Stdout
	}
	w := &Watcher{cfg: cfg, pipe: pipe, out: out, log: log, debounce: 500 * time.Millisecond}
	w.scan = w.classifyScan
	return w
}

// SetScan overrides the scan action. Tests use this to observe triggers.
func (w *Watcher) SetScan(scan ScanFunc) { w.scan = scan }

// SetDebounce overrides the event coalescing window.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Run scans once, then re-scans after every burst of changes under the chunks
// directory or the agent factory. It blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, extracted string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init: %w", err)
	}
	defer fw.Close()

	dirs := []string{
		filepath.Join(extracted, filepath.FromSlash(w.cfg.Paths.ChunksDir)),
		filepath.Dir(filepath.Join(extracted, filepath.FromSlash(w.cfg.Paths.AgentFactory))),
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	if err := w.scan(extracted); err != nil {
		w.log.Warn("initial scan failed", zap.Error(err))
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-fw.Events:
			if !strings.HasSuffix(ev.Name, ".js") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.log.Debug("change detected", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if err := w.scan(extracted); err != nil {
					w.log.Warn("scan failed", zap.Error(err))
				}
			})
		case err := <-fw.Errors:
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

// classifyScan re-discovers the target files and prints the state of every
// patch. Discovery failure is expected mid-regeneration and only reported.
func (w *Watcher) classifyScan(extracted string) error {
	res, err := w.pipe.Resolve(extracted)
	if err != nil {
		fmt.Fprintf(w.out, "[%s] discovery failed: %v\n", time.Now().Format("15:04:05"), err)
		return nil
	}

	fmt.Fprintf(w.out, "[%s] patch states:\n", time.Now().Format("15:04:05"))
	counts := map[patch.State]int{}
	for _, s := range res.Specs {
		rel, ok := res.Paths[s.Role]
		if !ok {
			continue
		}
		content, err := res.Store.Read(rel)
		if err != nil {
			return err
		}
		state := patch.Classify(s, content)
		counts[state]++
		fmt.Fprintf(w.out, "  %-12s %s\n", state, s.Name)
	}
	w.log.Info("scan complete",
		zap.Int("applied", counts[patch.StateApplied]),
		zap.Int("not_applied", counts[patch.StateNotApplied]),
		zap.Int("conflict", counts[patch.StateConflict]))
	return nil
}
