package fswatch

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// StatusCode mirrors the subset of libfswatch's C-style status code space
// that has a meaningful Go realization. It lets callers that want the
// original ABI's integer codes recover one from a Go error via
// StatusCodeOf, without this package exposing a cgo boundary itself (the
// thin C-style session wrapper remains out of scope).
type StatusCode int

const (
	StatusOk StatusCode = iota
	StatusUnknownError
	StatusSessionUnknown
	StatusUnknownMonitorType
	StatusCallbackNotSet
	StatusPathsNotSet
	StatusInvalidPath
	StatusInvalidLatency
	StatusInvalidRegex
	StatusMonitorAlreadyRunning
	StatusUnknownValue
	StatusInvalidProperty
)

// ErrSessionUnknown indicates that a SessionHandle does not correspond to
// any session created by this Facade.
var ErrSessionUnknown = errors.New("unknown session")

// ErrPathsNotSet indicates that StartMonitor was called on a session with
// no root paths added.
var ErrPathsNotSet = errors.New("no paths set")

// SessionHandle is an opaque identifier for a monitor session, handed out
// by OpenSession and used by every other Facade method. It realizes the
// spec's "opaque integer" handle as an idiomatic Go value.
type SessionHandle uuid.UUID

func (h SessionHandle) String() string {
	return uuid.UUID(h).String()
}

// session holds the mutable configuration accumulated for a handle before
// the underlying Monitor is constructed, plus the constructed Monitor once
// StartMonitor has been called at least once.
type session struct {
	monitorType Type
	useDefault  bool

	config  Config
	filters []Filter
	events  []Flag

	monitor Monitor
}

// Facade is the public, idiomatic-Go realization of libfswatch's C-style
// session API (§6): opaque session handles, path/callback/latency/filter
// mutators, and start/stop. It is safe for concurrent use by multiple
// goroutines manipulating distinct sessions; a single session's mutators
// must not be called concurrently with each other (matching the "monitor
// configuration is not thread-safe against modification" invariant).
type Facade struct {
	mutex    sync.Mutex
	sessions map[SessionHandle]*session
}

// NewFacade constructs an empty Facade. There is no separate "init_library"
// step: Go's init()-time monitor registration (see factory.go) already
// performs the idempotent global initialization the C API names. There is
// also no separate "last_error()" call: every Facade method returns its
// error directly, which is the idiomatic Go substitute for a per-thread
// last-status slot.
func NewFacade() *Facade {
	return &Facade{sessions: make(map[SessionHandle]*session)}
}

// OpenSession registers a new session on f and returns its handle. If
// useDefault is true, typ is ignored and StartMonitor selects the
// platform's default backend.
func (f *Facade) OpenSession(typ Type, useDefault bool) SessionHandle {
	handle := SessionHandle(uuid.New())

	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.sessions[handle] = &session{
		monitorType: typ,
		useDefault:  useDefault,
		config: Config{
			Properties: make(map[string]string),
		},
	}
	return handle
}

func (f *Facade) get(handle SessionHandle) (*session, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	s, ok := f.sessions[handle]
	if !ok {
		return nil, ErrSessionUnknown
	}
	return s, nil
}

// AddPath appends path to the session's root paths.
func (f *Facade) AddPath(handle SessionHandle, path string) error {
	s, err := f.get(handle)
	if err != nil {
		return err
	}
	if path == "" {
		return errors.New("path must be non-empty")
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	s.config.Paths = append(s.config.Paths, path)
	return nil
}

// SetCallback installs the event callback for the session.
func (f *Facade) SetCallback(handle SessionHandle, callback Callback) error {
	s, err := f.get(handle)
	if err != nil {
		return err
	}
	if callback == nil {
		return ErrCallbackNotSet
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	s.config.Callback = callback
	return nil
}

// SetLatency sets the session's latency.
func (f *Facade) SetLatency(handle SessionHandle, latency time.Duration) error {
	s, err := f.get(handle)
	if err != nil {
		return err
	}
	if latency < 0 {
		return ErrInvalidLatency
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	s.config.Latency = latency
	return nil
}

// SetRecursive sets the session's recursive flag.
func (f *Facade) SetRecursive(handle SessionHandle, recursive bool) error {
	return f.setBool(handle, func(c *Config) { c.Recursive = recursive })
}

// SetFollowSymlinks sets the session's follow-symlinks flag.
func (f *Facade) SetFollowSymlinks(handle SessionHandle, follow bool) error {
	return f.setBool(handle, func(c *Config) { c.FollowSymlinks = follow })
}

// SetDirectoryOnly sets the session's directory-only flag.
func (f *Facade) SetDirectoryOnly(handle SessionHandle, directoryOnly bool) error {
	return f.setBool(handle, func(c *Config) { c.DirectoryOnly = directoryOnly })
}

// SetAllowOverflow sets the session's overflow policy.
func (f *Facade) SetAllowOverflow(handle SessionHandle, allow bool) error {
	return f.setBool(handle, func(c *Config) { c.AllowOverflow = allow })
}

// SetWatchAccess sets the session's watch-access flag.
func (f *Facade) SetWatchAccess(handle SessionHandle, watchAccess bool) error {
	return f.setBool(handle, func(c *Config) { c.WatchAccess = watchAccess })
}

// SetFireIdleEvent sets the session's idle-event flag.
func (f *Facade) SetFireIdleEvent(handle SessionHandle, fire bool) error {
	return f.setBool(handle, func(c *Config) { c.FireIdleEvent = fire })
}

// SetBubbleEvents sets the session's event-bubbling flag.
func (f *Facade) SetBubbleEvents(handle SessionHandle, bubble bool) error {
	return f.setBool(handle, func(c *Config) { c.BubbleEvents = bubble })
}

func (f *Facade) setBool(handle SessionHandle, apply func(c *Config)) error {
	s, err := f.get(handle)
	if err != nil {
		return err
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	apply(&s.config)
	return nil
}

// AddFilter compiles and appends a path filter to the session.
func (f *Facade) AddFilter(handle SessionHandle, pattern string, kind FilterKind, caseSensitive, extended bool) error {
	s, err := f.get(handle)
	if err != nil {
		return err
	}
	filter, err := NewFilter(pattern, kind, caseSensitive, extended)
	if err != nil {
		return err
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	s.filters = append(s.filters, filter)
	return nil
}

// AddEventTypeFilter appends a permitted event type to the session.
func (f *Facade) AddEventTypeFilter(handle SessionHandle, flag Flag) error {
	s, err := f.get(handle)
	if err != nil {
		return err
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	s.events = append(s.events, flag)
	return nil
}

// SetProperty sets a backend-specific property (e.g. "stream.no_defer").
func (f *Facade) SetProperty(handle SessionHandle, name, value string) error {
	s, err := f.get(handle)
	if err != nil {
		return err
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if s.config.Properties == nil {
		s.config.Properties = make(map[string]string)
	}
	s.config.Properties[name] = value
	return nil
}

// StartMonitor constructs (on first call) the session's underlying Monitor
// and blocks until it stops. A second call while already running returns
// ErrMonitorAlreadyRunning.
func (f *Facade) StartMonitor(handle SessionHandle) error {
	s, err := f.get(handle)
	if err != nil {
		return err
	}

	if len(s.config.Paths) == 0 {
		return ErrPathsNotSet
	}

	f.mutex.Lock()
	if s.monitor == nil {
		monitor, buildErr := f.build(s)
		if buildErr != nil {
			f.mutex.Unlock()
			return buildErr
		}
		s.monitor = monitor
	}
	monitor := s.monitor
	f.mutex.Unlock()

	return monitor.Start()
}

// build constructs the concrete Monitor for a session, wiring its
// accumulated filters and event-type filters.
func (f *Facade) build(s *session) (Monitor, error) {
	var (
		monitor Monitor
		err     error
	)
	if s.useDefault {
		monitor, err = CreateDefault(s.config)
	} else {
		monitor, err = CreateByType(s.monitorType, s.config)
	}
	if err != nil {
		return nil, err
	}
	for _, filter := range s.filters {
		monitor.AddFilter(filter)
	}
	for _, flag := range s.events {
		monitor.AddEventTypeFilter(flag)
	}
	return monitor, nil
}

// StopMonitor cooperatively stops the session's monitor, returning
// immediately.
func (f *Facade) StopMonitor(handle SessionHandle) error {
	s, err := f.get(handle)
	if err != nil {
		return err
	}
	f.mutex.Lock()
	monitor := s.monitor
	f.mutex.Unlock()
	if monitor == nil {
		return nil
	}
	return monitor.Stop()
}

// DestroySession removes the session and releases its monitor. Behavior is
// undefined if the monitor is still running, matching the original C API's
// contract.
func (f *Facade) DestroySession(handle SessionHandle) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if _, ok := f.sessions[handle]; !ok {
		return ErrSessionUnknown
	}
	delete(f.sessions, handle)
	return nil
}

// StatusCodeOf maps an error returned by this package to the corresponding
// StatusCode, for callers that want the original C API's integer code
// space. Unrecognized errors map to StatusUnknownError.
func StatusCodeOf(err error) StatusCode {
	switch {
	case err == nil:
		return StatusOk
	case errors.Is(err, ErrSessionUnknown):
		return StatusSessionUnknown
	case errors.Is(err, ErrUnknownMonitor):
		return StatusUnknownMonitorType
	case errors.Is(err, ErrCallbackNotSet):
		return StatusCallbackNotSet
	case errors.Is(err, ErrPathsNotSet):
		return StatusPathsNotSet
	case errors.Is(err, ErrInvalidLatency):
		return StatusInvalidLatency
	case errors.Is(err, ErrInvalidRegex):
		return StatusInvalidRegex
	case errors.Is(err, ErrMonitorAlreadyRunning):
		return StatusMonitorAlreadyRunning
	default:
		var unknownFlag *ErrUnknownFlag
		if errors.As(err, &unknownFlag) {
			return StatusUnknownValue
		}
		return StatusUnknownError
	}
}
