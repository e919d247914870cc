//go:build !(darwin && cgo)

package fswatch

// No coalescing-stream implementation is registered on this platform;
// CreateDefault and CreateByType(StreamType, ...) simply skip it. FSEvents
// is only available as a native directory-level coalesced change stream on
// Darwin, and only through cgo.
