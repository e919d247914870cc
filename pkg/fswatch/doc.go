// Package fswatch implements a backend-agnostic, cross-platform filesystem
// change notification engine. It models filesystem activity as a stream of
// flagged Events, applies a chain of path and event-type Filters, and
// dispatches the result through a pluggable Monitor abstraction with four
// concrete backends: a portable polling monitor, a Linux inotify monitor, a
// BSD/Darwin kqueue monitor, and a Darwin FSEvents coalescing-stream monitor.
//
// The design is adapted from libfswatch, expressed in idiomatic Go rather
// than as a C++/cgo port: monitors are plain Go values satisfying the
// Monitor interface, configured with functional-ish setters, and driven by
// one loop goroutine per running monitor.
package fswatch
