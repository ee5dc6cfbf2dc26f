// Package native loads plugins compiled into the host binary.
//
// A native package is a single descriptor file named
// <name>.plugin.toml (or .yaml, .yml, .json) in the plugin directory. Its
// entry field names a Factory registered with Register, typically from an
// init function; without an entry the <name> part of the file name is used.
//
//	func init() {
//	    native.Register("audit", func(ctx context.Context, init plugin.InitContext) (any, error) {
//	        return newAudit(init.Logger, init.DataDir), nil
//	    })
//	}
//
// Dropping or renaming the descriptor file is how an operator turns a
// built-in plugin on or off.
package native
