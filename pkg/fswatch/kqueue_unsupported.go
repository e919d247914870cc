//go:build !(darwin || freebsd || netbsd || openbsd || dragonfly)

package fswatch

// No kqueue implementation is registered on this platform; CreateDefault
// and CreateByType(KqueueType, ...) simply skip it.
