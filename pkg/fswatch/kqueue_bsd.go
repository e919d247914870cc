//go:build darwin || freebsd || netbsd || openbsd || dragonfly

package fswatch

import (
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/golang/groupcache/lru"

	"github.com/emcrisostomo/fswatch/pkg/logging"
)

func init() {
	Register("kqueue_monitor", KqueueType, func(config Config) (Monitor, error) {
		return NewKqueueMonitor(config)
	})
}

// kqueueRequestedFflags are the NOTE_* bits requested for every tracked
// vnode, matching the spec's fflags list.
const kqueueRequestedFflags = unix.NOTE_DELETE | unix.NOTE_EXTEND | unix.NOTE_RENAME |
	unix.NOTE_WRITE | unix.NOTE_ATTRIB | unix.NOTE_LINK | unix.NOTE_REVOKE

// maxKqueueWatches bounds the number of per-path file descriptors this
// monitor keeps open at once. Open descriptors are a scarcer resource than
// inotify watch descriptors (they count against the process's file
// descriptor ulimit, not just a kernel watch table), so the cap here is
// tighter than maxInotifyWatches.
const maxKqueueWatches = 4096

// KqueueMonitor detects changes via per-file descriptors registered against
// an EVFILT_VNODE kqueue filter. It is grounded on fsnotify's
// backend_kqueue.go for the kevent register/read pattern, with an
// LRU-bounded descriptor table in the same style as InotifyMonitor.
type KqueueMonitor struct {
	*Base

	kq int

	watches  *lru.Cache // path -> int fd
	fdToPath map[int]string
	fdToMode map[int]os.FileMode

	toRemove map[int]struct{}
	toRescan map[string]struct{}
}

// NewKqueueMonitor constructs a kqueue monitor from config.
func NewKqueueMonitor(config Config) (*KqueueMonitor, error) {
	m := &KqueueMonitor{
		fdToPath: make(map[int]string),
		fdToMode: make(map[int]os.FileMode),
		toRemove: make(map[int]struct{}),
		toRescan: make(map[string]struct{}),
	}
	m.watches = lru.New(maxKqueueWatches)
	m.watches.OnEvicted = func(key lru.Key, value interface{}) {
		fd := value.(int)
		unix.Close(fd)
		delete(m.fdToPath, fd)
		delete(m.fdToMode, fd)
	}

	base, err := NewBase(config, m)
	if err != nil {
		return nil, err
	}
	m.Base = base
	return m, nil
}

func (m *KqueueMonitor) onStop() {}

// run implements implementation.run.
func (m *KqueueMonitor) run(b *Base) error {
	logger := b.Logger()

	kq, err := unix.Kqueue()
	if err != nil {
		return err
	}
	m.kq = kq
	defer unix.Close(m.kq)

	for {
		// Step 1: should_stop check (the base's Stop sets ShouldStop; we
		// observe it here and at the bottom of the loop).
		if b.ShouldStop() {
			return nil
		}

		// Step 2: process pending removals. Removing from the LRU triggers
		// OnEvicted, which closes the descriptor.
		for fd := range m.toRemove {
			if path, ok := m.fdToPath[fd]; ok {
				m.watches.Remove(path)
			} else {
				unix.Close(fd)
			}
		}
		m.toRemove = make(map[int]struct{})

		// Step 3: process pending rescans.
		for path := range m.toRescan {
			m.watches.Remove(path)
			m.scan(path, true, logger)
		}
		m.toRescan = make(map[string]struct{})

		// Step 4: scan every root not already watched.
		for _, root := range b.Config().Paths {
			if _, watched := m.watches.Get(root); !watched {
				m.scan(root, true, logger)
			}
		}

		// Step 5: build the changes list.
		changes := make([]unix.Kevent_t, 0, len(m.fdToPath))
		for fd := range m.fdToPath {
			var kev unix.Kevent_t
			unix.SetKevent(&kev, fd, unix.EVFILT_VNODE, unix.EV_ADD|unix.EV_ENABLE|unix.EV_CLEAR)
			kev.Fflags = kqueueRequestedFflags
			changes = append(changes, kev)
		}

		if len(changes) == 0 {
			latency := b.Config().Latency
			if latency < minPollLatency {
				latency = minPollLatency
			}
			time.Sleep(latency)
			continue
		}

		// Step 6/7: register changes and wait up to latency for events.
		timeout := unix.NsecToTimespec(b.Config().Latency.Nanoseconds())
		eventBuffer := make([]unix.Kevent_t, len(changes))
		n, err := unix.Kevent(m.kq, changes, eventBuffer, &timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		when := time.Now()
		var events []Event
		for _, kev := range eventBuffer[:n] {
			if kev.Flags&unix.EV_ERROR != 0 {
				logger.Debugf("kevent error flag set for fd %d", kev.Ident)
				continue
			}

			fd := int(kev.Ident)
			path, known := m.fdToPath[fd]
			if !known {
				continue
			}

			fflags := uint32(kev.Fflags)

			if fflags&unix.NOTE_DELETE != 0 {
				m.toRemove[fd] = struct{}{}
			} else if fflags&unix.NOTE_RENAME != 0 || fflags&unix.NOTE_REVOKE != 0 ||
				(fflags&unix.NOTE_WRITE != 0 && m.fdToMode[fd].IsDir()) {
				m.toRescan[path] = struct{}{}
			}

			var flags []Flag
			if fflags&unix.NOTE_DELETE != 0 {
				flags = append(flags, Removed)
			}
			if fflags&unix.NOTE_WRITE != 0 {
				flags = append(flags, Updated)
			}
			if fflags&unix.NOTE_EXTEND != 0 {
				flags = append(flags, PlatformSpecific)
			}
			if fflags&unix.NOTE_ATTRIB != 0 {
				flags = append(flags, AttributeModified)
			}
			if fflags&unix.NOTE_LINK != 0 {
				flags = append(flags, Link)
			}
			if fflags&unix.NOTE_RENAME != 0 {
				flags = append(flags, Renamed)
			}
			if fflags&unix.NOTE_REVOKE != 0 {
				flags = append(flags, PlatformSpecific)
			}

			if len(flags) > 0 {
				events = append(events, NewEvent(path, when, flags...))
			}
		}

		b.Notify(events)

		if b.ShouldStop() {
			return nil
		}
	}
}

// scan implements the kqueue watch-placement algorithm: symlink-aware stat,
// directory_only/filter enforcement, opening an event-only non-following
// descriptor, and recursive enumeration.
func (m *KqueueMonitor) scan(path string, isRoot bool, logger *logging.Logger) {
	config := m.Config()

	statTarget := path
	info, ok := StatPath(path, false, logger)
	if !ok {
		return
	}

	if config.FollowSymlinks && info.Mode&os.ModeSymlink != 0 {
		resolved := ResolveSymlink(path, logger)
		if resolved != path {
			m.scan(resolved, isRoot, logger)
			return
		}
	}

	isDir := info.Mode.IsDir()
	if config.DirectoryOnly && !isDir && !isRoot {
		return
	}
	if !m.filters.Accept(statTarget) {
		return
	}

	fd, err := kqueueOpenWatch(statTarget)
	if err != nil {
		logger.Warnf("unable to open '%s' for watching: %s", statTarget, err.Error())
		return
	}

	if old, ok := m.watches.Get(statTarget); ok {
		oldFd := old.(int)
		delete(m.fdToPath, oldFd)
		delete(m.fdToMode, oldFd)
	}
	m.fdToPath[fd] = statTarget
	m.fdToMode[fd] = info.Mode
	m.watches.Add(statTarget, fd)

	if config.Recursive && isDir {
		var names []string
		if config.DirectoryOnly {
			names = ListSubdirectories(statTarget, logger)
		} else {
			names = ListDirectoryEntries(statTarget, logger)
		}
		for _, name := range names {
			m.scan(filepath.Join(statTarget, name), false, logger)
		}
	}
}
