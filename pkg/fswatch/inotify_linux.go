//go:build linux

package fswatch

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/golang/groupcache/lru"

	"github.com/emcrisostomo/fswatch/pkg/logging"
	"github.com/emcrisostomo/fswatch/pkg/must"
)

func init() {
	Register("inotify_monitor", InotifyType, func(config Config) (Monitor, error) {
		return NewInotifyMonitor(config)
	})
}

// inotifyBaseWatchMask is the set of native inotify bits requested for
// every watch regardless of configuration. IN_ACCESS is added on top of
// this only when WatchAccess is set; see watchMask.
const inotifyBaseWatchMask = unix.IN_MODIFY | unix.IN_ATTRIB |
	unix.IN_CLOSE_WRITE | unix.IN_MOVED_FROM | unix.IN_MOVED_TO |
	unix.IN_CREATE | unix.IN_DELETE | unix.IN_DELETE_SELF | unix.IN_MOVE_SELF

// watchMask returns the native inotify bits to request for a watch, adding
// IN_ACCESS only when the monitor's WatchAccess configuration is set.
func (m *InotifyMonitor) watchMask() uint32 {
	mask := uint32(inotifyBaseWatchMask)
	if m.Config().WatchAccess {
		mask |= unix.IN_ACCESS
	}
	return mask
}

// inotifyReadBufferSize is sized for a large batch of raw events, matching
// the buffer sizing fsnotify uses for its inotify backend.
const inotifyReadBufferSize = unix.SizeofInotifyEvent * 4096

// maxInotifyWatches bounds the number of live watch descriptors this
// monitor holds at once. A single inotify instance is subject to the
// kernel's per-user max_user_watches limit; bounding our own usage with an
// LRU means a very large recursive tree degrades by losing coverage of its
// least-recently-active corners rather than by exhausting the instance and
// failing outright.
const maxInotifyWatches = 8192

// InotifyMonitor detects changes via a Linux inotify file descriptor. It is
// grounded on fsnotify's backend_inotify.go for the raw event-buffer parsing
// loop and on watch_non_recursive_linux.go's LRU-bounded watch-lifecycle
// idiom.
type InotifyMonitor struct {
	*Base

	fd   int
	file *os.File

	watches  *lru.Cache // path -> int32 wd
	wdToPath map[int32]string

	toRemoveDescriptors map[int32]struct{}
	toRemoveWatches     map[string]struct{}
}

// NewInotifyMonitor constructs an inotify monitor from config.
func NewInotifyMonitor(config Config) (*InotifyMonitor, error) {
	m := &InotifyMonitor{
		wdToPath:            make(map[int32]string),
		toRemoveDescriptors: make(map[int32]struct{}),
		toRemoveWatches:     make(map[string]struct{}),
	}
	m.watches = lru.New(maxInotifyWatches)
	m.watches.OnEvicted = func(key lru.Key, value interface{}) {
		path := key.(string)
		wd := value.(int32)
		if _, err := unix.InotifyRmWatch(m.fd, uint32(wd)); err != nil {
			m.Logger().Debugf("inotify_rm_watch failed for evicted watch on '%s': %s", path, err.Error())
		}
		delete(m.wdToPath, wd)
	}

	base, err := NewBase(config, m)
	if err != nil {
		return nil, err
	}
	m.Base = base
	return m, nil
}

func (m *InotifyMonitor) onStop() {}

// run implements implementation.run.
func (m *InotifyMonitor) run(b *Base) error {
	logger := b.Logger()

	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return err
	}
	m.fd = fd
	m.file = os.NewFile(uintptr(fd), "inotify")
	defer must.Close(m.file, logger)

	latency := b.Config().Latency

	for {
		// Step 1: process pending removals. Removing from the LRU triggers
		// OnEvicted, which issues the actual inotify_rm_watch call.
		for wd := range m.toRemoveDescriptors {
			if path, ok := m.wdToPath[wd]; ok {
				m.watches.Remove(path)
			} else if _, err := unix.InotifyRmWatch(m.fd, uint32(wd)); err != nil {
				logger.Debugf("inotify_rm_watch failed for wd %d: %s", wd, err.Error())
			}
		}
		m.toRemoveDescriptors = make(map[int32]struct{})

		for path := range m.toRemoveWatches {
			m.watches.Remove(path)
		}
		m.toRemoveWatches = make(map[string]struct{})

		// Step 2: scan every root not already watched.
		for _, root := range b.Config().Paths {
			if _, watched := m.watches.Get(root); !watched {
				m.scan(root, true, logger)
			}
		}

		if b.ShouldStop() {
			return nil
		}

		// Step 3: if there are no watches, just sleep.
		if len(m.wdToPath) == 0 {
			time.Sleep(latency)
			continue
		}

		// Step 4: bounded wait on the fd.
		if err := m.file.SetReadDeadline(time.Now().Add(latency)); err != nil {
			return err
		}

		buf := make([]byte, inotifyReadBufferSize)
		n, err := m.file.Read(buf)
		if err != nil {
			if os.IsTimeout(err) {
				if b.ShouldStop() {
					return nil
				}
				continue
			}
			return err
		}

		when := time.Now()
		events, overflowed := m.parse(buf[:n], when, logger)
		if overflowed {
			if handleErr := b.HandleOverflow(); handleErr != nil {
				return handleErr
			}
		}

		b.Notify(events)

		if b.ShouldStop() {
			return nil
		}
	}
}

// scan implements the watch-placement algorithm: lstat the path, recurse
// into a followed symlink target, honor directory_only and the filter
// chain, register a kernel watch, and recurse into children when Recursive
// is set and the path is a directory.
func (m *InotifyMonitor) scan(path string, isRoot bool, logger *logging.Logger) {
	config := m.Config()

	info, err := os.Lstat(path)
	if err != nil {
		return
	}

	if config.FollowSymlinks && info.Mode()&os.ModeSymlink != 0 {
		resolved := ResolveSymlink(path, logger)
		if resolved != path {
			m.scan(resolved, isRoot, logger)
			return
		}
	}

	isDir := info.IsDir()
	if config.DirectoryOnly && !isDir && !isRoot {
		return
	}
	if !isDir && !m.filters.Accept(path) {
		return
	}

	wd, err := unix.InotifyAddWatch(m.fd, path, m.watchMask())
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("unable to watch '%s': %s", path, err.Error())
		}
		return
	}
	if old, ok := m.watches.Get(path); ok {
		delete(m.wdToPath, old.(int32))
	}
	m.wdToPath[int32(wd)] = path
	m.watches.Add(path, int32(wd))

	if config.Recursive && isDir {
		for _, name := range ListDirectoryEntries(path, logger) {
			m.scan(filepath.Join(path, name), false, logger)
		}
	}
}

// parse implements record-by-record parsing of a raw inotify read buffer,
// synthesizing directory and child events per the spec's bit-mapping
// table. It returns the produced events and whether a queue-overflow bit
// was observed.
func (m *InotifyMonitor) parse(buf []byte, when time.Time, logger *logging.Logger) ([]Event, bool) {
	var events []Event
	var overflowed bool

	var offset uint32
	n := uint32(len(buf))
	for offset <= n-unix.SizeofInotifyEvent {
		raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
		mask := raw.Mask
		nameLen := raw.Len
		wd := raw.Wd

		if mask&unix.IN_Q_OVERFLOW != 0 {
			overflowed = true
		}

		watchPath, known := m.wdToPath[wd]

		var name string
		if nameLen > 0 {
			nameBytes := buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen]
			name = strings.TrimRight(string(nameBytes), "\x00")
		}

		if known {
			// Directory synthesis.
			var dirFlags []Flag
			if mask&unix.IN_ISDIR != 0 {
				dirFlags = append(dirFlags, IsDir)
			}
			if mask&unix.IN_MOVE_SELF != 0 {
				dirFlags = append(dirFlags, Updated)
			}
			if mask&unix.IN_UNMOUNT != 0 {
				dirFlags = append(dirFlags, PlatformSpecific)
			}
			if mask&unix.IN_DELETE_SELF != 0 {
				dirFlags = append(dirFlags, Removed)
			}
			if len(dirFlags) > 0 {
				events = append(events, NewEvent(watchPath, when, dirFlags...))
			}

			// Child synthesis.
			if name != "" {
				childPath := filepath.Join(watchPath, name)
				var childFlags []Flag
				switch {
				case mask&unix.IN_ACCESS != 0:
					childFlags = append(childFlags, PlatformSpecific)
				case mask&unix.IN_ATTRIB != 0:
					childFlags = append(childFlags, AttributeModified)
				case mask&unix.IN_CLOSE_WRITE != 0:
					childFlags = append(childFlags, Updated, CloseWrite)
				case mask&unix.IN_CREATE != 0:
					childFlags = append(childFlags, Created)
				case mask&unix.IN_DELETE != 0:
					childFlags = append(childFlags, Removed)
				case mask&unix.IN_MODIFY != 0:
					childFlags = append(childFlags, Updated)
				case mask&unix.IN_MOVED_FROM != 0:
					childFlags = append(childFlags, Removed, MovedFrom)
				case mask&unix.IN_MOVED_TO != 0:
					childFlags = append(childFlags, Created, MovedTo)
				}
				if len(childFlags) > 0 && m.filters.Accept(childPath) {
					events = append(events, NewEvent(childPath, when, childFlags...))
				}
			}

			if mask&unix.IN_IGNORED != 0 {
				m.toRemoveDescriptors[wd] = struct{}{}
			}
			if mask&unix.IN_MOVE_SELF != 0 {
				m.toRemoveWatches[watchPath] = struct{}{}
				m.toRemoveDescriptors[wd] = struct{}{}
			}
			if mask&unix.IN_DELETE_SELF != 0 {
				m.toRemoveDescriptors[wd] = struct{}{}
			}
		} else {
			logger.Debugf("received inotify event for unknown watch descriptor %d", wd)
		}

		offset += unix.SizeofInotifyEvent + nameLen
	}

	return events, overflowed
}
