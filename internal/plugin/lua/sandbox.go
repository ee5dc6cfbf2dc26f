package lua

import (
	lua "github.com/yuin/gopher-lua"
)

// blockedGlobals are removed from every state. The loaders would read
// arbitrary files or compile code outside the plugin's entry script.
var blockedGlobals = []string{
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"require",
	"module",
	"_printregs",
}

// installSandbox strips the globals that escape the sandbox.
func installSandbox(L *lua.LState) {
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
}

// Blocked reports whether name is removed by the sandbox.
func Blocked(name string) bool {
	for _, b := range blockedGlobals {
		if b == name {
			return true
		}
	}
	return false
}
