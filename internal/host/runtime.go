// Package host assembles the plugin runtime: the event bus, the service
// registry, the plugin manager with its loaders, and the metrics registry.
//
// Runtime is the single entry point the command line and the admin API
// use. A typical lifetime is New, Start, optionally Watch, then Shutdown.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/dshills/hostkit/internal/config"
	"github.com/dshills/hostkit/internal/event"
	"github.com/dshills/hostkit/internal/event/events"
	"github.com/dshills/hostkit/internal/logging"
	"github.com/dshills/hostkit/internal/plugin"
	"github.com/dshills/hostkit/internal/plugin/lua"
	"github.com/dshills/hostkit/internal/plugin/native"
	"github.com/dshills/hostkit/internal/plugin/watch"
	"github.com/dshills/hostkit/internal/service"
)

type runState int

const (
	stateNew runState = iota
	stateStarted
	stateStopped
)

// Runtime owns every host component.
type Runtime struct {
	cfg    config.Config
	logger zerolog.Logger

	metrics  *prometheus.Registry
	catalog  *event.Catalog
	bus      *event.Bus
	services *service.Registry
	manager  *plugin.Manager

	mu    sync.Mutex
	state runState
}

// New validates cfg and builds a runtime. No plugin is loaded until Start.
func New(cfg config.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	catalog, err := event.NewCatalog(append(events.All(), o.events...)...)
	if err != nil {
		return nil, fmt.Errorf("event catalog: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	bus := event.NewBus(
		event.WithLogger(o.logger),
		event.WithSlowFireThreshold(cfg.Events.SlowFire.Std()),
		event.WithMetrics(event.NewMetrics(reg)),
	)
	services := service.NewRegistry(service.WithLogger(o.logger))
	manager := plugin.NewManager(bus, services,
		plugin.WithLogger(o.logger),
		plugin.WithDataDir(cfg.Plugins.DataDir),
		plugin.WithDiscoveryWorkers(cfg.Plugins.DiscoveryWorkers),
		plugin.WithMetrics(plugin.NewMetrics(reg)),
	)

	natives := o.natives
	if natives == nil {
		natives = native.Default().Clone()
	}
	if _, ok := natives.Lookup(EventLogEntry); !ok {
		if err := natives.Register(EventLogEntry, eventLogFactory(o.eventLogSize)); err != nil {
			return nil, err
		}
	}

	luaLoader := lua.NewLoader(catalog, lua.WithScriptTimeout(cfg.Plugins.ScriptTimeout.Std()))
	if err := manager.RegisterLoader(lua.LoaderName, luaLoader); err != nil {
		return nil, err
	}
	if err := manager.RegisterLoader(native.LoaderName, native.NewLoader(natives)); err != nil {
		return nil, err
	}

	return &Runtime{
		cfg:      cfg,
		logger:   logging.Component(o.logger, "host"),
		metrics:  reg,
		catalog:  catalog,
		bus:      bus,
		services: services,
		manager:  manager,
	}, nil
}

// Start loads the configured plugin directory and fires HostStarted.
// Plugins that fail to load are reported, not fatal; a dependency cycle
// is returned as an error after the rest of the runtime is up.
func (r *Runtime) Start(ctx context.Context) (*plugin.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateStarted:
		return nil, ErrAlreadyStarted
	case stateStopped:
		return nil, ErrStopped
	}
	r.state = stateStarted

	report, err := r.manager.LoadPlugins(ctx, r.cfg.Plugins.Dir)
	if err != nil && !errors.Is(err, plugin.ErrCycleDetected) {
		r.logger.Error().Err(err).Str("dir", r.cfg.Plugins.Dir).Msg("plugin load failed")
	}

	if fireErr := r.bus.Fire(ctx, events.HostStarted{Plugins: r.manager.Count()}); fireErr != nil {
		r.logger.Warn().Err(fireErr).Msg("host.started handler failed")
	}
	r.logger.Info().
		Int("plugins", r.manager.Count()).
		Str("dir", r.cfg.Plugins.Dir).
		Msg("host started")
	return report, err
}

// Reload runs another load cycle over the plugin directory. Loaded
// plugins are kept; new packages are added.
func (r *Runtime) Reload(ctx context.Context) (*plugin.Report, error) {
	return r.LoadPlugins(ctx, r.cfg.Plugins.Dir)
}

// LoadPlugins runs a load cycle over dir. It implements watch.Reloader.
func (r *Runtime) LoadPlugins(ctx context.Context, dir string) (*plugin.Report, error) {
	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	if state != stateStarted {
		return nil, ErrNotStarted
	}
	return r.manager.LoadPlugins(ctx, dir)
}

// Watch reloads the plugin directory on change until ctx is done. It
// returns nil immediately when watching is disabled.
func (r *Runtime) Watch(ctx context.Context) error {
	if !r.cfg.Plugins.Watch {
		return nil
	}
	w, err := watch.New(r.cfg.Plugins.Dir, r,
		watch.WithDebounce(r.cfg.Plugins.WatchDebounce.Std()),
		watch.WithLogger(r.logger),
	)
	if err != nil {
		return fmt.Errorf("watch %s: %w", r.cfg.Plugins.Dir, err)
	}
	defer w.Close()

	err = w.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, watch.ErrClosed) {
		return nil
	}
	return err
}

// Shutdown fires HostStopping and disables every plugin in reverse load
// order. It is safe to call more than once.
func (r *Runtime) Shutdown(ctx context.Context, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == stateStopped {
		return nil
	}
	r.state = stateStopped

	r.logger.Info().Str("reason", reason).Int("plugins", r.manager.Count()).Msg("host stopping")
	if err := r.bus.Fire(ctx, events.HostStopping{Reason: reason}); err != nil {
		r.logger.Warn().Err(err).Msg("host.stopping handler failed")
	}
	return r.manager.Shutdown(ctx)
}

// Config returns the runtime configuration.
func (r *Runtime) Config() config.Config { return r.cfg }

// Bus returns the event bus.
func (r *Runtime) Bus() *event.Bus { return r.bus }

// Services returns the service registry.
func (r *Runtime) Services() *service.Registry { return r.services }

// Manager returns the plugin manager.
func (r *Runtime) Manager() *plugin.Manager { return r.manager }

// Catalog returns the event names scripts may subscribe to.
func (r *Runtime) Catalog() *event.Catalog { return r.catalog }

// Metrics returns the runtime's Prometheus registry.
func (r *Runtime) Metrics() prometheus.Gatherer { return r.metrics }

// Logger returns the host logger.
func (r *Runtime) Logger() zerolog.Logger { return r.logger }
