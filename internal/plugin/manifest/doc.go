// Package manifest reads plugin descriptor files.
//
// A descriptor is a small TOML, YAML or JSON document, chosen by file
// extension, validated against an embedded JSON Schema:
//
//	id = "greeter"
//	name = "Greeter"
//	version = "1.0"
//	authors = ["ann"]
//	entry = "init.lua"
//
//	[[dependencies]]
//	id = "core"
//	version = "2.1"
//	optional = false
//
// Versions are opaque strings to the plugin manager. Lint reports versions
// that are not semantic versions, but they are still accepted.
package manifest
