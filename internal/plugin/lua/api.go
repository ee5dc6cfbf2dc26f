package lua

import (
	"strings"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/hostkit/internal/event"
	"github.com/dshills/hostkit/internal/plugin"
)

// ModuleName is the global table scripts use to talk to the host.
const ModuleName = "hostkit"

// installAPI publishes the hostkit table and redirects print to the
// plugin logger.
func installAPI(L *lua.LState, p *Plugin, init plugin.InitContext) {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"on":  p.luaOn,
		"log": p.luaLog,
	})

	info := L.NewTable()
	d := init.Descriptor
	info.RawSetString("id", lua.LString(d.ID))
	info.RawSetString("name", lua.LString(d.Name))
	info.RawSetString("version", lua.LString(d.Version))
	info.RawSetString("data_dir", lua.LString(init.DataDir))
	mod.RawSetString("plugin", info)

	prio := L.NewTable()
	for _, pr := range []event.Priority{
		event.PriorityCritical,
		event.PriorityHigh,
		event.PriorityNormal,
		event.PriorityLow,
		event.PriorityMonitor,
	} {
		prio.RawSetString(pr.String(), lua.LNumber(pr))
	}
	mod.RawSetString("priority", prio)

	L.SetGlobal(ModuleName, mod)
	L.SetGlobal("print", L.NewFunction(p.luaPrint))
}

// luaOn implements hostkit.on(event_name, fn[, priority]).
func (p *Plugin) luaOn(L *lua.LState) int {
	name := L.CheckString(1)
	fn := L.CheckFunction(2)

	priority := event.PriorityNormal
	switch v := L.Get(3).(type) {
	case *lua.LNilType:
	case lua.LNumber:
		priority = event.Priority(int(v))
	case lua.LString:
		pr, ok := event.ParsePriority(string(v))
		if !ok {
			L.ArgError(3, "unknown priority "+string(v))
			return 0
		}
		priority = pr
	default:
		L.ArgError(3, "priority must be a number or name")
		return 0
	}

	if !p.loading {
		L.RaiseError("%s", ErrLateSubscription.Error())
		return 0
	}
	p.subs = append(p.subs, subscription{event: name, priority: priority, fn: fn})
	return 0
}

// luaLog implements hostkit.log(level, msg[, fields]).
func (p *Plugin) luaLog(L *lua.LState) int {
	level, err := zerolog.ParseLevel(strings.ToLower(L.CheckString(1)))
	if err != nil || level == zerolog.NoLevel {
		L.ArgError(1, "unknown log level")
		return 0
	}
	msg := L.CheckString(2)

	e := p.logger.WithLevel(level)
	if t, ok := L.Get(3).(*lua.LTable); ok {
		if fields, ok := ToGo(t).(map[string]any); ok {
			e = e.Fields(fields)
		}
	}
	e.Msg(msg)
	return 0
}

// luaPrint logs its arguments at info level.
func (p *Plugin) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, n)
	for i := 1; i <= n; i++ {
		parts[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	p.logger.Info().Str("source", "print").Msg(strings.Join(parts, "\t"))
	return 0
}
