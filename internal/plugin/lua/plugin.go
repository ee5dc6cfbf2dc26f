package lua

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/hostkit/internal/event"
	"github.com/dshills/hostkit/internal/plugin"
)

// Plugin is the live instance of a Lua plugin. It listens on the event bus
// with the handlers its script registered through hostkit.on.
type Plugin struct {
	id     string
	state  *State
	logger zerolog.Logger

	// loading is true while the entry script runs. It is only touched
	// with the state lock held.
	loading bool
	subs    []subscription

	handlers []event.Handler
}

type subscription struct {
	event    string
	priority event.Priority
	fn       *lua.LFunction
}

// ID returns the plugin ID.
func (p *Plugin) ID() string {
	return p.id
}

// String implements fmt.Stringer.
func (p *Plugin) String() string {
	return "lua:" + p.id
}

// Handlers implements event.Listener.
func (p *Plugin) Handlers() []event.Handler {
	return p.handlers
}

// Close calls the script's disable function, if any, and releases the
// state.
func (p *Plugin) Close() error {
	if p.state.Closed() {
		return nil
	}
	var errs []error
	if _, err := p.state.CallGlobal(context.Background(), "disable"); err != nil {
		errs = append(errs, &ScriptError{Plugin: p.id, Func: "disable", Err: err})
	}
	errs = append(errs, p.state.Close())
	return errors.Join(errs...)
}

// resolve turns the script's subscriptions into bus handlers.
func (p *Plugin) resolve(catalog *event.Catalog) error {
	handlers := make([]event.Handler, 0, len(p.subs))
	for i, sub := range p.subs {
		t, err := catalog.Lookup(sub.event)
		if err != nil {
			return fmt.Errorf("hostkit.on #%d: %w", i+1, err)
		}
		label := fmt.Sprintf("lua:%s/%s#%d", p.id, sub.event, i+1)
		fn := sub.fn
		handlers = append(handlers, event.OnType(label, sub.priority, t, func(_ context.Context, ev event.Event) error {
			return p.dispatch(label, fn, ev)
		}))
	}
	p.handlers = handlers
	p.subs = nil
	return nil
}

// dispatch runs one script handler with the event as a table. Handlers
// run to completion; the bus only warns about slow ones.
func (p *Plugin) dispatch(label string, fn *lua.LFunction, ev event.Event) error {
	_, err := p.state.Invoke(fn, func(L *lua.LState) []lua.LValue {
		return []lua.LValue{eventTable(L, ev)}
	})
	if err != nil {
		return &ScriptError{Plugin: p.id, Func: label, Err: err}
	}
	return nil
}

// eventTable converts ev to a table and adds its name under "event_name".
func eventTable(L *lua.LState, ev event.Event) lua.LValue {
	lv := ToLua(L, ev)
	t, ok := lv.(*lua.LTable)
	if !ok {
		t = L.NewTable()
		t.RawSetString("value", lv)
	}
	t.RawSetString("event_name", lua.LString(ev.EventName()))
	return t
}

var _ plugin.Closer = (*Plugin)(nil)
