// Package watch feeds files that appear in the input directory to the batch
// runner after the initial pass.
package watch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/vibe/internal/input"
	"github.com/msageha/vibe/internal/logging"
)

// DefaultDebounce applies when Options.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

var errWatcherClosed = errors.New("filesystem watcher closed")

// ProcessFunc handles one file. A non-nil error stops the watcher.
type ProcessFunc func(ctx context.Context, f input.File) error

type Options struct {
	Dir       string
	Debounce  time.Duration
	Sandboxed bool
	Process   ProcessFunc
	Logger    *logging.Logger

	// Known lists absolute paths already handled before Run. Every other file
	// present when watching starts is processed as if it had just appeared.
	Known []string
}

type Watcher struct {
	dir       string
	debounce  time.Duration
	sandboxed bool
	process   ProcessFunc
	logger    *logging.Logger
	known     map[string]bool
	ready     chan struct{}
}

func New(opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	known := make(map[string]bool, len(opts.Known))
	for _, p := range opts.Known {
		known[p] = true
	}
	return &Watcher{
		dir:       opts.Dir,
		debounce:  opts.Debounce,
		sandboxed: opts.Sandboxed,
		process:   opts.Process,
		logger:    logger.With("watch"),
		known:     known,
		ready:     make(chan struct{}),
	}
}

// Ready is closed once the directory is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run blocks until ctx is done (returning nil) or Process fails.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Infof("watching dir=%s debounce=%s", w.dir, w.debounce)

	// files created before Add produced no event
	missed, err := w.unhandled()
	if err != nil {
		return err
	}
	close(w.ready)

	names := make(chan string, 64)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.pump(gctx, fw, names) })
	g.Go(func() error { return w.drain(gctx, names, missed) })

	err = g.Wait()
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		return nil
	}
	return err
}

// unhandled lists the files in the directory that are not in Known.
func (w *Watcher) unhandled() ([]string, error) {
	files, err := input.List(w.dir, w.sandboxed)
	if err != nil {
		return nil, fmt.Errorf("rescan %s: %w", w.dir, err)
	}
	var out []string
	for _, f := range files {
		if !w.known[f.Path] {
			out = append(out, f.Path)
		}
	}
	if len(out) > 0 {
		w.logger.Infof("rescan found=%d", len(out))
	}
	return out, nil
}

// pump forwards create and write events to names.
func (w *Watcher) pump(ctx context.Context, fw *fsnotify.Watcher, names chan<- string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return errWatcherClosed
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			w.logger.Debugf("fsnotify event=%s file=%s", event.Op, event.Name)
			select {
			case names <- event.Name:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return errWatcherClosed
			}
			w.logger.Errorf("fsnotify error=%v", err)
		}
	}
}

// drain collects names until the debounce window passes quietly, then
// processes them sequentially in name order. seed starts the first window.
func (w *Watcher) drain(ctx context.Context, names <-chan string, seed []string) error {
	pending := map[string]struct{}{}
	var timer *time.Timer
	var fire <-chan time.Time
	if len(seed) > 0 {
		for _, p := range seed {
			pending[p] = struct{}{}
		}
		timer = time.NewTimer(w.debounce)
		fire = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case name := <-names:
			pending[name] = struct{}{}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			batch := make([]string, 0, len(pending))
			for p := range pending {
				batch = append(batch, p)
			}
			clear(pending)
			sort.Strings(batch)
			w.logger.Debugf("debounced batch=%d", len(batch))

			for _, p := range batch {
				f, ok := input.Stat(p, w.sandboxed)
				if !ok {
					continue
				}
				if err := w.process(ctx, f); err != nil {
					return err
				}
			}
		}
	}
}
