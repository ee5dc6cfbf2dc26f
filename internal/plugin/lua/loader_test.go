package lua

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/hostkit/internal/event"
	"github.com/dshills/hostkit/internal/event/events"
	"github.com/dshills/hostkit/internal/plugin"
	"github.com/dshills/hostkit/internal/service"
)

// writePackage creates dir/name with a plugin.toml and the given files.
func writePackage(t *testing.T, dir, name, manifest string, files map[string]string) string {
	t.Helper()
	pkg := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(pkg, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(pkg, "plugin.toml"), []byte(manifest), 0o644))
	for f, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(pkg, f), []byte(body), 0o644))
	}
	return pkg
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	catalog, err := event.NewCatalog(events.All()...)
	require.NoError(t, err)
	return NewLoader(catalog)
}

// instantiate decodes and starts the package at pkg.
func instantiate(t *testing.T, l *Loader, pkg string, logger zerolog.Logger) (*Plugin, error) {
	t.Helper()
	d, err := l.Decode(context.Background(), pkg)
	require.NoError(t, err)
	inst, err := l.Instantiate(context.Background(), plugin.InitContext{
		Descriptor: d,
		Logger:     logger,
		DataDir:    filepath.Join("data", d.ID),
	})
	if err != nil {
		return nil, err
	}
	p, ok := inst.(*Plugin)
	require.True(t, ok)
	t.Cleanup(func() { _ = p.Close() })
	return p, nil
}

func global(t *testing.T, p *Plugin, name string) any {
	t.Helper()
	var v any
	require.NoError(t, p.state.Do(func(L *lua.LState) error {
		v = ToGo(L.GetGlobal(name))
		return nil
	}))
	return v
}

const basicManifest = `
id = "greeter"
name = "Greeter"
version = "1.0.0"
`

func TestLoaderMatches(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)

	pkg := writePackage(t, dir, "greeter", basicManifest, map[string]string{"init.lua": ""})
	assert.True(t, l.Matches(pkg))

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(empty, 0o755))
	assert.False(t, l.Matches(empty))

	file := filepath.Join(dir, "plugin.toml")
	require.NoError(t, os.WriteFile(file, []byte(basicManifest), 0o644))
	assert.False(t, l.Matches(file))
	assert.False(t, l.Matches(filepath.Join(dir, "missing")))
}

func TestLoaderDecode(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)
	pkg := writePackage(t, dir, "greeter", basicManifest, map[string]string{"init.lua": ""})

	d, err := l.Decode(context.Background(), pkg)
	require.NoError(t, err)
	assert.Equal(t, "greeter", d.ID)
	assert.Equal(t, "Greeter", d.Name)
	assert.Equal(t, DefaultEntry, d.EntryPoint)
	assert.Equal(t, pkg, d.Path)
	assert.Same(t, l, d.Loader)
	assert.Equal(t, LoaderName, d.LoaderName())
}

func TestLoaderDecodeErrors(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)
	ctx := context.Background()

	t.Run("missing entry", func(t *testing.T) {
		pkg := writePackage(t, dir, "noentry", basicManifest, nil)
		_, err := l.Decode(ctx, pkg)
		assert.ErrorIs(t, err, ErrBadEntry)
	})

	t.Run("entry escapes package", func(t *testing.T) {
		pkg := writePackage(t, dir, "escape", basicManifest+`entry = "../evil.lua"`+"\n", nil)
		_, err := l.Decode(ctx, pkg)
		assert.ErrorIs(t, err, ErrBadEntry)
	})

	t.Run("no descriptor", func(t *testing.T) {
		_, err := l.Decode(ctx, t.TempDir())
		assert.ErrorIs(t, err, ErrNoManifest)
	})

	t.Run("invalid descriptor", func(t *testing.T) {
		pkg := writePackage(t, dir, "bad", `name = "no id"`, map[string]string{"init.lua": ""})
		_, err := l.Decode(ctx, pkg)
		assert.Error(t, err)
	})
}

func TestInstantiateRegistersHandlers(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)
	pkg := writePackage(t, dir, "greeter", basicManifest+`entry = "main.lua"`+"\n", map[string]string{
		"main.lua": `
			seen = {}
			enabled = false
			me = hostkit.plugin.id .. "@" .. hostkit.plugin.version
			data = hostkit.plugin.data_dir

			hostkit.on("plugin.enabled", function(ev)
				table.insert(seen, ev.id .. ":" .. ev.event_name)
			end, "high")
			hostkit.on("plugins.loaded", function(ev) end, hostkit.priority.monitor)

			function enable() enabled = true end
		`,
	})

	p, err := instantiate(t, l, pkg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "greeter", p.ID())
	assert.Equal(t, "lua:greeter", p.String())
	assert.Equal(t, true, global(t, p, "enabled"))
	assert.Equal(t, "greeter@1.0.0", global(t, p, "me"))
	assert.Equal(t, filepath.Join("data", "greeter"), global(t, p, "data"))

	handlers := p.Handlers()
	require.Len(t, handlers, 2)
	assert.Equal(t, event.PriorityHigh, handlers[0].Priority())
	assert.Equal(t, "lua:greeter/plugin.enabled#1", handlers[0].Name())
	assert.Equal(t, event.PriorityMonitor, handlers[1].Priority())

	bus := event.NewBus()
	require.NoError(t, bus.RegisterListeners(p, p))
	require.NoError(t, bus.Fire(context.Background(), events.PluginEnabled{ID: "other"}))
	require.NoError(t, bus.Fire(context.Background(), events.PluginDisabled{ID: "ignored"}))

	assert.Equal(t, []any{"other:plugin.enabled"}, global(t, p, "seen"))
}

func TestInstantiateUnknownEvent(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)
	pkg := writePackage(t, dir, "greeter", basicManifest, map[string]string{
		"init.lua": `hostkit.on("no.such.event", function() end)`,
	})

	_, err := instantiate(t, l, pkg, zerolog.Nop())
	require.ErrorIs(t, err, event.ErrUnknownEvent)
}

func TestInstantiateScriptErrors(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)

	cases := map[string]struct {
		script string
		fn     string
	}{
		"load error":     {script: `error("broken")`, fn: "init.lua"},
		"enable error":   {script: `function enable() error("refused") end`, fn: "enable"},
		"bad priority":   {script: `hostkit.on("plugin.enabled", function() end, "urgent")`, fn: "init.lua"},
		"sandbox escape": {script: `dofile("/etc/passwd")`, fn: "init.lua"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			pkg := writePackage(t, dir, filepath.Base(t.Name()), basicManifest, map[string]string{
				"init.lua": tc.script,
			})
			_, err := instantiate(t, l, pkg, zerolog.Nop())
			var se *ScriptError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "greeter", se.Plugin)
			assert.Equal(t, tc.fn, se.Func)
		})
	}
}

func TestHandlerErrors(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)
	pkg := writePackage(t, dir, "greeter", basicManifest, map[string]string{
		"init.lua": `
			hostkit.on("plugin.enabled", function(ev) error("handler failed") end)
			hostkit.on("plugin.disabled", function(ev)
				hostkit.on("plugin.enabled", function() end)
			end)
			hostkit.on("plugin.skipped", function(ev) return nil, "soft failure" end)
		`,
	})
	p, err := instantiate(t, l, pkg, zerolog.Nop())
	require.NoError(t, err)

	bus := event.NewBus()
	require.NoError(t, bus.RegisterListeners(p, p))
	ctx := context.Background()

	err = bus.Fire(ctx, events.PluginEnabled{ID: "x"})
	require.ErrorIs(t, err, event.ErrDispatch)
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "handler failed")

	err = bus.Fire(ctx, events.PluginDisabled{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrLateSubscription.Error())

	err = bus.Fire(ctx, events.PluginSkipped{ID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soft failure")
}

func TestSlowHandlerRunsToCompletion(t *testing.T) {
	dir := t.TempDir()
	catalog, err := event.NewCatalog(events.All()...)
	require.NoError(t, err)
	l := NewLoader(catalog, WithScriptTimeout(20*time.Millisecond))

	pkg := writePackage(t, dir, "slow", basicManifest, map[string]string{
		"init.lua": `
			done = false
			hostkit.on("host.started", function(ev)
				pause()
				done = true
			end)
		`,
	})
	p, err := instantiate(t, l, pkg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, p.state.Do(func(L *lua.LState) error {
		L.SetGlobal("pause", L.NewFunction(func(*lua.LState) int {
			time.Sleep(80 * time.Millisecond)
			return 0
		}))
		return nil
	}))

	bus := event.NewBus()
	require.NoError(t, bus.RegisterListeners(p, p))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, bus.Fire(ctx, events.HostStarted{Plugins: 1}))
	assert.Equal(t, true, global(t, p, "done"))
}

func TestEnableIsBoundedByScriptTimeout(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(nil, WithScriptTimeout(50*time.Millisecond))
	pkg := writePackage(t, dir, "spin", basicManifest, map[string]string{
		"init.lua": `function enable() while true do end end`,
	})

	_, err := instantiate(t, l, pkg, zerolog.Nop())
	var se *ScriptError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "enable", se.Func)
	assert.ErrorIs(t, err, ErrCallAborted)
}

func TestInstantiateIgnoresCancelledContext(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)
	pkg := writePackage(t, dir, "greeter", basicManifest, map[string]string{
		"init.lua": `loaded = true`,
	})
	d, err := l.Decode(context.Background(), pkg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	inst, err := l.Instantiate(ctx, plugin.InitContext{Descriptor: d, Logger: zerolog.Nop()})
	require.NoError(t, err)
	p := inst.(*Plugin)
	t.Cleanup(func() { _ = p.Close() })
	assert.Equal(t, true, global(t, p, "loaded"))
}

func TestScriptLogging(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)
	pkg := writePackage(t, dir, "greeter", basicManifest, map[string]string{
		"init.lua": `
			hostkit.log("warn", "careful", {attempts = 2})
			print("hello", 42)
			function disable() hostkit.log("info", "goodbye") end
		`,
	})

	var buf bytes.Buffer
	p, err := instantiate(t, l, pkg, zerolog.New(&buf))
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"attempts":2`)
	assert.Contains(t, out, `"message":"careful"`)
	assert.Contains(t, out, `"message":"hello\t42"`)

	require.NoError(t, p.Close())
	assert.Contains(t, buf.String(), `"message":"goodbye"`)
	assert.True(t, p.state.Closed())
	require.NoError(t, p.Close())
}

func TestScriptLogRejectsUnknownLevel(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)
	pkg := writePackage(t, dir, "greeter", basicManifest, map[string]string{
		"init.lua": `hostkit.log("shout", "x")`,
	})
	_, err := instantiate(t, l, pkg, zerolog.Nop())
	require.Error(t, err)
}

func TestCloseReportsDisableError(t *testing.T) {
	dir := t.TempDir()
	l := newTestLoader(t)
	pkg := writePackage(t, dir, "greeter", basicManifest, map[string]string{
		"init.lua": `function disable() error("stuck") end`,
	})
	p, err := instantiate(t, l, pkg, zerolog.Nop())
	require.NoError(t, err)

	err = p.Close()
	var se *ScriptError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "disable", se.Func)
	assert.True(t, p.state.Closed())
}

func TestManagerLoadsLuaPlugins(t *testing.T) {
	dir := t.TempDir()
	// "alpha" depends on "zeta" and is discovered first.
	writePackage(t, dir, "alpha", `
id = "alpha"
version = "1.0"
[[dependencies]]
id = "zeta"
version = "2.0"
`, map[string]string{"init.lua": `function disable() hostkit.log("info", "alpha down") end`})
	writePackage(t, dir, "zeta", `
id = "zeta"
version = "2.0"
`, map[string]string{"init.lua": `
		enabled = {}
		hostkit.on("plugin.enabled", function(ev) table.insert(enabled, ev.id) end)
	`})

	var buf bytes.Buffer
	bus := event.NewBus()
	m := plugin.NewManager(bus, service.NewRegistry(), plugin.WithLogger(zerolog.New(&buf)))
	require.NoError(t, m.RegisterLoader(LoaderName, newTestLoader(t)))

	report, err := m.LoadPlugins(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha"}, report.Loaded)
	assert.Empty(t, report.Skipped)

	c, ok := m.Plugin("zeta")
	require.True(t, ok)
	zeta := c.Instance().(*Plugin)
	assert.Equal(t, []any{"zeta", "alpha"}, global(t, zeta, "enabled"))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "alpha down")
	assert.True(t, zeta.state.Closed())
	assert.Equal(t, 0, bus.ListenerCount())
}
