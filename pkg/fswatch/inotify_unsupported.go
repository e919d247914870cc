//go:build !linux

package fswatch

// No inotify implementation is registered on this platform; CreateDefault
// and CreateByType(InotifyType, ...) simply skip it.
