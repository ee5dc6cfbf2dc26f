// Package watch reloads a plugin directory when its contents change.
//
// Changes are debounced: a burst of writes, such as unpacking a plugin
// archive, causes a single load cycle once the directory has been quiet
// for the debounce delay. Plugins that are already loaded are ignored by
// the manager, so a running plugin is never reloaded; only new packages
// are picked up.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/dshills/hostkit/internal/plugin"
)

// DefaultDebounce is the quiet period before a reload.
const DefaultDebounce = 250 * time.Millisecond

// ErrClosed is returned when using a closed watcher.
var ErrClosed = errors.New("watcher is closed")

// DefaultIgnore lists base-name patterns that never trigger a reload.
var DefaultIgnore = []string{".*", "*~", "*.swp", "*.tmp"}

// Reloader runs a load cycle over a directory. *plugin.Manager satisfies it.
type Reloader interface {
	LoadPlugins(ctx context.Context, dir string) (*plugin.Report, error)
}

// Stats are watcher counters.
type Stats struct {
	Events    int64
	Reloads   int64
	Errors    int64
	StartedAt time.Time
}

// Watcher triggers reloads of one plugin directory.
type Watcher struct {
	dir    string
	target Reloader
	config config

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	closed bool

	events    atomic.Int64
	reloads   atomic.Int64
	errs      atomic.Int64
	startedAt time.Time
}

type config struct {
	delay    time.Duration
	logger   zerolog.Logger
	ignore   []string
	onReload func(*plugin.Report, error)
}

// Option configures a Watcher.
type Option func(*config)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithLogger sets the watcher logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.logger = l.With().Str("component", "watch").Logger()
	}
}

// WithIgnore replaces the ignored base-name patterns (filepath.Match syntax).
func WithIgnore(patterns ...string) Option {
	return func(c *config) {
		c.ignore = patterns
	}
}

// OnReload registers a callback run after every load cycle.
func OnReload(fn func(*plugin.Report, error)) Option {
	return func(c *config) {
		c.onReload = fn
	}
}

// New watches dir and its immediate subdirectories.
func New(dir string, target Reloader, opts ...Option) (*Watcher, error) {
	cfg := config{
		delay:  DefaultDebounce,
		logger: zerolog.Nop(),
		ignore: DefaultIgnore,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, plugin.ErrNotDirectory
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		dir:       abs,
		target:    target,
		config:    cfg,
		fsw:       fsw,
		startedAt: time.Now(),
	}
	if err := w.add(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() && !w.ignored(e.Name()) {
			if err := w.add(filepath.Join(abs, e.Name())); err != nil {
				w.config.logger.Warn().Err(err).Str("path", e.Name()).Msg("cannot watch package directory")
			}
		}
	}
	return w, nil
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Run processes file system events until ctx is done or the watcher is
// closed. Reloads run on the calling goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return ErrClosed
			}
			if !w.relevant(ev) {
				continue
			}
			w.events.Add(1)
			w.config.logger.Debug().Str("path", ev.Name).Str("op", ev.Op.String()).Msg("plugin directory changed")
			if timer == nil {
				timer = time.NewTimer(w.config.delay)
			} else {
				timer.Reset(w.config.delay)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrClosed
			}
			w.errs.Add(1)
			w.config.logger.Error().Err(err).Msg("watch error")

		case <-fire:
			fire = nil
			w.reload(ctx)
		}
	}
}

// relevant filters events and starts watching new package directories.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if w.ignored(filepath.Base(ev.Name)) {
		return false
	}
	if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == w.dir {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.add(ev.Name); err != nil {
				w.config.logger.Warn().Err(err).Str("path", ev.Name).Msg("cannot watch package directory")
			}
		}
	}
	return true
}

func (w *Watcher) ignored(name string) bool {
	for _, p := range w.config.ignore {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	return w.fsw.Add(path)
}

// reload runs one load cycle.
func (w *Watcher) reload(ctx context.Context) {
	w.reloads.Add(1)
	report, err := w.target.LoadPlugins(ctx, w.dir)

	log := w.config.logger.Info()
	if err != nil {
		log = w.config.logger.Error().Err(err)
	}
	if report != nil {
		log = log.Str("cycle", report.Cycle).
			Strs("loaded", report.Loaded).
			Int("skipped", len(report.Skipped))
	}
	log.Msg("plugin directory reloaded")

	if w.config.onReload != nil {
		w.config.onReload(report, err)
	}
}

// Stats returns the watcher counters.
func (w *Watcher) Stats() Stats {
	return Stats{
		Events:    w.events.Load(),
		Reloads:   w.reloads.Load(),
		Errors:    w.errs.Load(),
		StartedAt: w.startedAt,
	}
}

// Close stops the watcher. Run returns ErrClosed.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.fsw.Close()
}
