//go:build darwin

package fswatch

import "golang.org/x/sys/unix"

// kqueueOpenWatch opens path with "event-only, follow=no" semantics, using
// Darwin's O_EVTONLY|O_SYMLINK, matching the spec's preferred form.
func kqueueOpenWatch(path string) (int, error) {
	return unix.Open(path, unix.O_EVTONLY|unix.O_SYMLINK, 0)
}
