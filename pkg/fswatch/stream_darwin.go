//go:build darwin && cgo

package fswatch

import (
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/mutagen-io/fsevents"
	"github.com/pkg/errors"

	"github.com/emcrisostomo/fswatch/pkg/logging"
)

func init() {
	Register("fsevents_monitor", StreamType, func(config Config) (Monitor, error) {
		return NewStreamMonitor(config)
	})
}

// streamEventsBufferSize is the capacity of the internal FSEvents channel.
const streamEventsBufferSize = 50

// StreamMonitor detects changes via a native, coalesced, directory-level
// change stream. It is grounded on the teacher's FSEvents-based recursive
// watcher, generalized from a single-target path-forwarder into a full
// flag-decoding Monitor backend per the spec's stream monitor component.
type StreamMonitor struct {
	*Base

	stream *fsevents.EventStream
}

// NewStreamMonitor constructs a stream monitor from config.
func NewStreamMonitor(config Config) (*StreamMonitor, error) {
	m := &StreamMonitor{}
	base, err := NewBase(config, m)
	if err != nil {
		return nil, err
	}
	m.Base = base
	return m, nil
}

// noDeferMode resolves the stream.no_defer property: "true"/"false" force a
// value, "auto" (or unset) selects no-defer when the process's stdout is
// not a terminal, deferred otherwise.
func noDeferMode(properties map[string]string) bool {
	switch properties["stream.no_defer"] {
	case "true":
		return true
	case "false":
		return false
	default:
		return !isatty.IsTerminal(os.Stdout.Fd())
	}
}

func (m *StreamMonitor) onStop() {
	if m.stream != nil {
		m.stream.Stop()
	}
}

// run implements implementation.run: dispatch-queue mode, sleeping the loop
// goroutine in latency-sized intervals and checking ShouldStop each cycle,
// per the spec's "Execution model" for platforms (like Darwin's FSEvents
// dispatch-queue API) that support attaching the stream to a worker queue.
func (m *StreamMonitor) run(b *Base) error {
	logger := b.Logger()
	config := b.Config()

	flags := fsevents.WatchRoot | fsevents.FileEvents
	if noDeferMode(config.Properties) {
		flags |= fsevents.NoDefer
	}
	useExtendedData := config.Properties["stream.use_extended_data"] == "true"

	rawEvents := make(chan []fsevents.Event, streamEventsBufferSize)
	m.stream = &fsevents.EventStream{
		Events:  rawEvents,
		Paths:   config.Paths,
		Latency: config.Latency,
		Flags:   flags,
	}
	m.stream.Start()
	defer func() {
		if m.stream != nil {
			m.stream.Stop()
		}
	}()

	latency := config.Latency
	if latency <= 0 {
		latency = time.Second
	}

	for {
		select {
		case eventSet, ok := <-rawEvents:
			if !ok {
				return errors.New("fsevents stream closed unexpectedly")
			}

			when := time.Now()
			var events []Event
			var overflowed bool
			for _, e := range eventSet {
				translated, isOverflow := translateStreamFlags(e.Flags)
				if isOverflow {
					overflowed = true
				}
				if len(translated) == 0 {
					continue
				}
				event := NewEvent(canonicalStreamPath(e.Path, logger), when, translated...)
				if useExtendedData {
					logger.Debugf("stream.use_extended_data requested but the underlying FSEvents binding does not surface per-item inode data")
				}
				events = append(events, event)
			}

			if overflowed {
				if err := b.HandleOverflow(); err != nil {
					return err
				}
			}

			b.Notify(events)
		case <-time.After(latency):
		}

		if b.ShouldStop() {
			return nil
		}
	}
}

// canonicalStreamPath resolves symlinks in path to match the canonical form
// FSEvents itself reports paths in.
func canonicalStreamPath(path string, logger *logging.Logger) string {
	return ResolveSymlink(path, logger)
}

// translateStreamFlags maps a native FSEvents flag bitmask to the portable
// flag set per the spec's stream monitor flag-mapping table, also reporting
// whether the MustScanSubDirs overflow bit was observed.
func translateStreamFlags(native fsevents.EventFlags) ([]Flag, bool) {
	var flags []Flag

	if native&fsevents.ItemCreated != 0 {
		flags = append(flags, Created)
	}
	if native&fsevents.ItemRemoved != 0 {
		flags = append(flags, Removed)
	}
	if native&fsevents.ItemModified != 0 {
		flags = append(flags, Updated)
	}
	if native&fsevents.ItemRenamed != 0 {
		flags = append(flags, Renamed)
	}
	if native&fsevents.ItemChangeOwner != 0 {
		flags = append(flags, OwnerModified)
	}
	if native&fsevents.ItemXattrMod != 0 || native&fsevents.ItemInodeMetaMod != 0 {
		flags = append(flags, AttributeModified)
	}
	if native&fsevents.ItemFinderInfoMod != 0 {
		flags = append(flags, AttributeModified, PlatformSpecific)
	}
	if native&fsevents.ItemIsFile != 0 {
		flags = append(flags, IsFile)
	}
	if native&fsevents.ItemIsDir != 0 {
		flags = append(flags, IsDir)
	}
	if native&fsevents.ItemIsSymlink != 0 {
		flags = append(flags, IsSymLink)
	}
	if native&fsevents.ItemIsHardlink != 0 || native&fsevents.ItemIsLastHardlink != 0 {
		flags = append(flags, Link)
	}

	overflowed := native&fsevents.MustScanSubDirs != 0

	const platformBits = fsevents.EventFlags(0) |
		fsevents.OwnEvent | fsevents.MustScanSubDirs | fsevents.UserDropped |
		fsevents.KernelDropped | fsevents.EventIDsWrapped | fsevents.HistoryDone |
		fsevents.RootChanged | fsevents.Mount | fsevents.Unmount
	if native&platformBits != 0 {
		flags = append(flags, PlatformSpecific)
	}

	return flags, overflowed
}
