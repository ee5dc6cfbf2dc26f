// Package lua loads plugins written in Lua.
//
// A Lua package is a directory holding a descriptor file (plugin.toml,
// plugin.yaml, plugin.yml or plugin.json) and an entry script, init.lua
// unless the descriptor names another:
//
//	greeter/
//	    plugin.toml
//	    init.lua
//
// Scripts run in a sandboxed gopher-lua state with only the base, table,
// string and math libraries. They talk to the host through the hostkit
// table:
//
//	hostkit.on("plugin.enabled", function(ev)
//	    hostkit.log("info", "saw " .. ev.id, {loader = ev.loader})
//	end, "high")
//
//	function enable() end   -- called once the script has loaded
//	function disable() end  -- called at shutdown
//
// hostkit.on may only be called while the entry script runs. Event names
// are resolved through an event.Catalog when the plugin is instantiated,
// so a typo fails the load instead of silently never firing. Events reach
// handlers as tables keyed by snake_case field names plus event_name.
//
// A handler that raises an error, or returns nil and a message, fails the
// dispatch with a *ScriptError. Every script call runs under a deadline
// (DefaultCallTimeout unless WithScriptTimeout says otherwise).
package lua
