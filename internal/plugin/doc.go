// Package plugin loads independently packaged plugins into a host.
//
// A Manager owns a list of Loaders. Each call to LoadPlugins runs one load
// cycle over a directory:
//
//	DISCOVER     every loader claims and decodes the entries it recognizes
//	SORT         the new descriptors are ordered by their dependencies
//	VALIDATE     each dependency must be loaded at exactly the declared version
//	INSTANTIATE  the originating loader creates the live instance
//	REGISTER     the instance is indexed and its listeners join the event bus
//
// A failure in one plugin only skips that plugin. A dependency cycle skips
// the whole directory.
//
// # Packaging
//
// Two loaders ship with the host. The lua loader runs script packages:
//
//	plugins/greeter/
//	├── plugin.toml   # descriptor
//	└── init.lua      # entry point
//
// The native loader instantiates factories compiled into the host binary,
// described by a sidecar file such as plugins/metrics.plugin.yaml.
//
// # Descriptor
//
//	id = "greeter"
//	name = "Greeter"
//	version = "1.0"
//	entry = "init.lua"
//
//	[[dependencies]]
//	id = "core"
//	version = "2.1"
//
// Versions are compared as exact strings.
package plugin
