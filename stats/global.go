package stats

import "sync/atomic"

var global atomic.Pointer[Registry]

// SetGlobal makes r the process-wide registry. It is meant to be called once at startup.
func SetGlobal(r *Registry) {
	global.Store(r)
}

// Global returns the process-wide registry, or nil if SetGlobal was not called.
// Components should take a *Registry where they can and leave this to entry points.
func Global() *Registry {
	return global.Load()
}
