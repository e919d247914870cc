package fswatch

import (
	"os"
	"path/filepath"
	"time"

	"github.com/emcrisostomo/fswatch/pkg/logging"
)

func init() {
	Register("poll_monitor", PollType, func(config Config) (Monitor, error) {
		return NewPollMonitor(config)
	})
}

// minPollLatency is the minimum interval between scans regardless of the
// configured latency, matching libfswatch's MIN_POLL_LATENCY.
const minPollLatency = time.Second

// fileGeneration records the stat fields the poll monitor diffs between
// scans.
type fileGeneration struct {
	mtime time.Time
	ctime time.Time
}

// PollMonitor detects changes via periodic full rescans, diffing two
// generations of {mtime, ctime} per path. It is grounded on libfswatch's
// poll_monitor.cpp and is the only monitor with no platform restriction.
type PollMonitor struct {
	*Base

	previous map[string]fileGeneration
	current  map[string]fileGeneration
}

// NewPollMonitor constructs a poll monitor from config.
func NewPollMonitor(config Config) (*PollMonitor, error) {
	m := &PollMonitor{previous: make(map[string]fileGeneration)}
	base, err := NewBase(config, m)
	if err != nil {
		return nil, err
	}
	m.Base = base
	return m, nil
}

// onStop implements implementation.onStop: the poll loop is cooperatively
// stoppable purely by polling ShouldStop between sleeps, so this is a no-op.
func (m *PollMonitor) onStop() {}

// run implements implementation.run.
func (m *PollMonitor) run(b *Base) error {
	logger := b.Logger()

	// Initial scan: populate `previous` without emitting any events.
	for _, root := range b.Config().Paths {
		m.scan(root, m.previous, logger)
	}

	latency := b.Config().Latency
	if latency < minPollLatency {
		latency = minPollLatency
	}

	for {
		time.Sleep(latency)
		if b.ShouldStop() {
			return nil
		}

		now := time.Now()
		m.current = make(map[string]fileGeneration)

		var events []Event
		for _, root := range b.Config().Paths {
			events = append(events, m.scanDiff(root, now, logger)...)
		}

		// Anything left in `previous` was not seen during this scan and is
		// therefore gone.
		for path := range m.previous {
			events = append(events, NewEvent(path, now, Removed))
		}

		m.previous, m.current = m.current, nil

		b.Notify(events)

		if b.ShouldStop() {
			return nil
		}
	}
}

// scan walks root (recursively, if configured) and records {mtime, ctime}
// for every path that passes filtering into generation, without emitting
// events. It is used only for the initial scan.
func (m *PollMonitor) scan(root string, generation map[string]fileGeneration, logger *logging.Logger) {
	m.walk(root, logger, func(path string, info StatInfo) {
		generation[path] = fileGeneration{mtime: info.Mtime, ctime: info.Ctime}
	})
}

// scanDiff walks root, populating m.current and comparing each visited path
// against m.previous per the steady-state loop algorithm, returning the
// events produced.
func (m *PollMonitor) scanDiff(root string, when time.Time, logger *logging.Logger) []Event {
	var events []Event
	m.walk(root, logger, func(path string, info StatInfo) {
		gen := fileGeneration{mtime: info.Mtime, ctime: info.Ctime}
		m.current[path] = gen

		prev, seen := m.previous[path]
		if !seen {
			events = append(events, NewEvent(path, when, Created))
			return
		}

		var flags []Flag
		if gen.mtime.After(prev.mtime) {
			flags = append(flags, Updated)
		}
		if gen.ctime.After(prev.ctime) {
			flags = append(flags, AttributeModified)
		}
		if len(flags) > 0 {
			events = append(events, NewEvent(path, when, flags...))
		}

		delete(m.previous, path)
	})
	return events
}

// walk performs a depth-first traversal of root, invoking visit for every
// path that passes the monitor's filter chain and whose directory_only
// constraint is satisfied. Symlinks are followed when FollowSymlinks is
// set (recording the resolved path) and recorded as-is otherwise. Unreadable
// paths are logged and skipped, per the "edge cases" rule of the poll
// monitor.
func (m *PollMonitor) walk(root string, logger *logging.Logger, visit func(path string, info StatInfo)) {
	config := m.Config()

	var recurse func(path string)
	recurse = func(path string) {
		if !m.filters.Accept(path) {
			return
		}

		statTarget := path
		if config.FollowSymlinks {
			statTarget = ResolveSymlink(path, logger)
		}

		info, ok := StatPath(statTarget, false, logger)
		if !ok {
			return
		}

		isDir := info.Mode.IsDir()
		if !config.DirectoryOnly || isDir {
			visit(statTarget, info)
		}

		if isDir && (path == root || config.Recursive) {
			entries := ListDirectoryEntries(path, logger)
			for _, name := range entries {
				recurse(filepath.Join(path, name))
			}
		}
	}

	if _, err := os.Lstat(root); err != nil {
		logger.Warnf("unable to stat watch root '%s': %s", root, err.Error())
		return
	}
	recurse(root)
}
