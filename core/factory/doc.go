// Package factory is a small generic registry used to build pluggable
// modules (metrics sinks, event publishers, audit stores) from
// configuration. A module is a type name plus a map of raw settings that the
// factory decodes with json tags.
package factory
