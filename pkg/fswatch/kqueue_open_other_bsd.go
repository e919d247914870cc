//go:build freebsd || netbsd || openbsd || dragonfly

package fswatch

import "golang.org/x/sys/unix"

// kqueueOpenWatch opens path with "event-only, follow=no" semantics. These
// BSDs don't expose Darwin's O_EVTONLY/O_SYMLINK, so the spec's documented
// fallback form is used: O_RDONLY|O_NOFOLLOW.
func kqueueOpenWatch(path string) (int, error) {
	return unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW, 0)
}
