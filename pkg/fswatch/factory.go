package fswatch

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Type is a coarse type tag identifying a monitor implementation strategy,
// independent of its registered name.
type Type int

const (
	// PollType identifies the portable polling monitor.
	PollType Type = iota
	// InotifyType identifies the Linux inotify monitor.
	InotifyType
	// KqueueType identifies the BSD/Darwin kqueue monitor.
	KqueueType
	// StreamType identifies the Darwin FSEvents coalescing-stream monitor.
	StreamType
)

// Constructor builds a Monitor from a Config. Concrete backends register a
// Constructor against a name and Type via Register.
type Constructor func(Config) (Monitor, error)

// ErrUnknownMonitor indicates that Create or CreateByType was asked for a
// name or Type with no registered constructor.
var ErrUnknownMonitor = errors.New("unknown monitor")

type registration struct {
	name string
	typ  Type
	ctor Constructor
}

var (
	registryMutex sync.Mutex
	registrations []registration

	// defaultPriority lists Types in the order CreateDefault prefers them:
	// stream (FSEvents) first, then kqueue, then inotify, then poll, mirroring
	// libfswatch's monitor_factory::create_default_monitor preference.
	defaultPriority = []Type{StreamType, KqueueType, InotifyType, PollType}
)

// Register adds a named constructor to the global monitor registry. It is
// called from each backend's platform-gated init() function, which removes
// the load-order ambiguity the original C++ static-registrant pattern
// carried: Go guarantees package init() order by import-graph topological
// sort, so registration is deterministic without an explicit
// "init_library" entry point.
func Register(name string, typ Type, ctor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registrations = append(registrations, registration{name: name, typ: typ, ctor: ctor})
}

// Create constructs the monitor registered under name.
func Create(name string, config Config) (Monitor, error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	for _, r := range registrations {
		if r.name == name {
			return r.ctor(config)
		}
	}
	return nil, errors.Wrapf(ErrUnknownMonitor, "name %q", name)
}

// CreateByType constructs the first monitor registered under typ.
func CreateByType(typ Type, config Config) (Monitor, error) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	for _, r := range registrations {
		if r.typ == typ {
			return r.ctor(config)
		}
	}
	return nil, errors.Wrapf(ErrUnknownMonitor, "type %d", typ)
}

// CreateDefault constructs the highest-priority monitor available on the
// running platform: stream, then kqueue, then inotify, then poll.
func CreateDefault(config Config) (Monitor, error) {
	registryMutex.Lock()
	byType := make(map[Type]Constructor, len(registrations))
	for _, r := range registrations {
		if _, ok := byType[r.typ]; !ok {
			byType[r.typ] = r.ctor
		}
	}
	registryMutex.Unlock()

	for _, typ := range defaultPriority {
		if ctor, ok := byType[typ]; ok {
			return ctor(config)
		}
	}
	return nil, errors.Wrap(ErrUnknownMonitor, "no monitor implementation available on this platform")
}

// RegisteredNames returns the names of every registered monitor
// constructor, sorted for deterministic output.
func RegisteredNames() []string {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	names := make([]string, len(registrations))
	for i, r := range registrations {
		names[i] = r.name
	}
	sort.Strings(names)
	return names
}
