package fswatch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/emcrisostomo/fswatch/pkg/logging"
)

// Errors returned by the monitor base's configuration setters and lifecycle
// methods. Callers branch on these by identity via errors.Is.
var (
	// ErrCallbackNotSet indicates that a monitor was constructed without a
	// callback.
	ErrCallbackNotSet = errors.New("callback not set")
	// ErrInvalidLatency indicates that SetLatency was called with a
	// negative value.
	ErrInvalidLatency = errors.New("invalid latency")
	// ErrMonitorAlreadyRunning indicates that Start was called on an
	// instance that is already running.
	ErrMonitorAlreadyRunning = errors.New("monitor already running")
	// ErrOverflow is raised as a fatal run() error when the backend detects
	// a queue overflow and AllowOverflow is false.
	ErrOverflow = errors.New("event queue overflow")
)

// Callback receives a batch of events produced by a single monitor
// iteration. It executes synchronously on the monitor's loop goroutine,
// except for idle NoOp events, which the idle waiter delivers from its own
// goroutine; the monitor guards invocation with its notify-mutex so
// callbacks for the same monitor never interleave.
type Callback func(events []Event)

// Config holds every configurable field of a monitor, corresponding to the
// "Monitor configuration" record of the data model. Latency defaults to
// 1.0 seconds, matching libfswatch.
type Config struct {
	// Paths is the set of root paths to watch. Root paths are used as
	// given: the monitors do not realpath-canonicalize them, and the poll,
	// inotify and kqueue monitors resolve a symlinked root only when
	// FollowSymlinks is set.
	Paths []string
	// Callback receives every emitted event batch. Required.
	Callback Callback
	// Latency bounds how long the loop thread may block in its single
	// kernel wait per iteration, except that the poll monitor (and the
	// kqueue monitor while it has nothing to watch) sleeps at least one
	// second. Must be >= 0.
	Latency time.Duration
	// Recursive indicates whether directories should be watched
	// recursively.
	Recursive bool
	// FollowSymlinks indicates whether symbolic links should be resolved
	// rather than watched as links.
	FollowSymlinks bool
	// DirectoryOnly restricts watching to directory entries.
	DirectoryOnly bool
	// WatchAccess additionally reports read/access events, where the
	// backend supports it.
	WatchAccess bool
	// AllowOverflow controls overflow policy: if true, an Overflow event is
	// emitted and the loop continues; if false, ErrOverflow is returned
	// from the loop as a fatal error.
	AllowOverflow bool
	// FireIdleEvent enables the idle waiter: a synthetic NoOp event with an
	// empty path is emitted after 110% of Latency elapses with no events.
	FireIdleEvent bool
	// BubbleEvents merges contiguous events sharing (time, path) within a
	// batch by unioning their flags.
	BubbleEvents bool
	// Properties is an open string-to-string bag for backend-specific
	// tuning (e.g. "stream.no_defer").
	Properties map[string]string
	// Logger receives transient diagnostics. If nil, logging.RootLogger is
	// used (itself nil-safe).
	Logger *logging.Logger
}

// Monitor is the interface satisfied by every concrete backend (poll,
// inotify, kqueue, stream). Implementations embed *Base and supply run/onStop.
type Monitor interface {
	// Start begins the monitor's loop on the calling goroutine. It blocks
	// until Stop is called or a fatal error occurs.
	Start() error
	// Stop requests that the loop exit at its next iteration boundary.
	Stop() error
	// IsRunning reports whether the loop is currently active.
	IsRunning() bool
	// AddFilter appends a path filter to the monitor's filter chain.
	AddFilter(filter Filter)
	// AddEventTypeFilter appends a permitted event type.
	AddEventTypeFilter(flag Flag)
}

// implementation is the hook set a concrete monitor backend supplies to
// Base. run performs one backend-specific loop, emitting batches via
// Notify, and returning when should_stop is observed or a fatal error
// occurs. onStop is invoked (under the run-mutex) for backends whose loop
// is not cooperatively stoppable purely by polling ShouldStop; it may be a
// no-op.
type implementation interface {
	run(b *Base) error
	onStop()
}

// Base implements the configuration, lifecycle, filtering, idle-detection,
// and bubbling logic shared by every concrete monitor. It corresponds to
// the "Monitor base" component; concrete backends embed it and provide the
// implementation interface via NewBase.
type Base struct {
	config Config

	filters     FilterChain
	typeFilters EventTypeFilter

	runMutex    sync.Mutex
	running     bool
	shouldStop  bool
	notifyMutex sync.Mutex

	lastNotification atomic.Int64 // unix nanoseconds

	idleDone chan struct{}
	idleStop chan struct{}

	impl implementation
}

// NewBase validates config and constructs a Base. It returns
// ErrCallbackNotSet or ErrInvalidLatency if config is invalid.
func NewBase(config Config, impl implementation) (*Base, error) {
	if config.Callback == nil {
		return nil, ErrCallbackNotSet
	}
	if config.Latency < 0 {
		return nil, ErrInvalidLatency
	}
	if config.Logger == nil {
		config.Logger = logging.RootLogger
	}
	if config.Latency == 0 {
		config.Latency = time.Second
	}
	return &Base{config: config, impl: impl}, nil
}

// Config returns a copy of the monitor's current configuration.
func (b *Base) Config() Config {
	return b.config
}

// Logger returns the monitor's configured logger.
func (b *Base) Logger() *logging.Logger {
	return b.config.Logger
}

// SetLatency updates the monitor's latency. It may be called while running;
// per the data model's invariant, the new value takes effect at the next
// internal iteration rather than interrupting one in progress.
func (b *Base) SetLatency(latency time.Duration) error {
	if latency < 0 {
		return ErrInvalidLatency
	}
	b.runMutex.Lock()
	defer b.runMutex.Unlock()
	b.config.Latency = latency
	return nil
}

// AddFilter implements Monitor.AddFilter.
func (b *Base) AddFilter(filter Filter) {
	b.filters.Add(filter)
}

// AddEventTypeFilter implements Monitor.AddEventTypeFilter.
func (b *Base) AddEventTypeFilter(flag Flag) {
	b.typeFilters.Add(flag)
}

// IsRunning implements Monitor.IsRunning.
func (b *Base) IsRunning() bool {
	b.runMutex.Lock()
	defer b.runMutex.Unlock()
	return b.running
}

// ShouldStop reports whether a stop has been requested. Concrete backends
// poll this at loop-iteration boundaries.
func (b *Base) ShouldStop() bool {
	b.runMutex.Lock()
	defer b.runMutex.Unlock()
	return b.shouldStop
}

// Start implements Monitor.Start: it marks the monitor running, invokes the
// backend's run loop, and unmarks it on return, starting and stopping the
// idle waiter (if configured) around the call.
func (b *Base) Start() error {
	b.runMutex.Lock()
	if b.running {
		b.runMutex.Unlock()
		return ErrMonitorAlreadyRunning
	}
	b.running = true
	b.shouldStop = false
	b.runMutex.Unlock()

	b.lastNotification.Store(time.Now().UnixNano())

	if b.config.FireIdleEvent {
		b.idleDone = make(chan struct{})
		b.idleStop = make(chan struct{})
		go b.idleWaiter()
	}

	err := b.impl.run(b)

	if b.idleStop != nil {
		close(b.idleStop)
		<-b.idleDone
	}

	b.runMutex.Lock()
	b.running = false
	b.runMutex.Unlock()

	return err
}

// Stop implements Monitor.Stop.
func (b *Base) Stop() error {
	b.runMutex.Lock()
	b.shouldStop = true
	b.runMutex.Unlock()
	b.impl.onStop()
	return nil
}

// idleWaiter periodically compares wall-clock time against the
// last-notification timestamp and emits a synthetic NoOp event when at
// least 110% of Latency has elapsed with no events.
func (b *Base) idleWaiter() {
	defer close(b.idleDone)

	threshold := time.Duration(float64(b.config.Latency) * 1.10)
	ticker := time.NewTicker(b.config.Latency)
	defer ticker.Stop()

	for {
		select {
		case <-b.idleStop:
			return
		case <-ticker.C:
			last := time.Unix(0, b.lastNotification.Load())
			if time.Since(last) >= threshold {
				b.deliver([]Event{NewEvent("", time.Now(), NoOp)})
			}
		}
	}
}

// Notify implements the "Event dispatch" algorithm of notify_events: each
// event's path is filtered, flags are intersected with event-type filters,
// and (if BubbleEvents is set) contiguous events sharing (time, path) are
// merged by unioning flags. The surviving batch is delivered to Callback
// under the notify-mutex, and the last-notification timestamp is updated.
func (b *Base) Notify(events []Event) {
	filtered := make([]Event, 0, len(events))
	for _, e := range events {
		if !b.filters.Accept(e.Path) {
			continue
		}
		if !b.typeFilters.Permits(e.Flags) {
			continue
		}
		filtered = append(filtered, e)
	}

	if b.config.BubbleEvents {
		filtered = bubble(filtered)
	}

	if len(filtered) == 0 {
		return
	}

	b.deliver(filtered)
}

// deliver invokes the configured callback under the notify-mutex and
// updates the last-notification timestamp.
func (b *Base) deliver(events []Event) {
	b.notifyMutex.Lock()
	defer b.notifyMutex.Unlock()

	b.lastNotification.Store(time.Now().UnixNano())
	b.config.Callback(events)
}

// bubble merges contiguous events that share (time, path) by unioning their
// flags, preserving the order of first occurrence.
func bubble(events []Event) []Event {
	if len(events) < 2 {
		return events
	}
	merged := make([]Event, 0, len(events))
	for _, e := range events {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.Path == e.Path && last.Time.Equal(e.Time) {
				last.Flags = last.Flags.Union(e.Flags)
				continue
			}
		}
		merged = append(merged, e)
	}
	return merged
}

// HandleOverflow implements the overflow policy: if AllowOverflow is set, it
// delivers a single Overflow event and returns nil so the caller's loop
// continues; otherwise it returns ErrOverflow as a fatal error.
func (b *Base) HandleOverflow() error {
	if b.config.AllowOverflow {
		b.deliver([]Event{NewEvent("", time.Now(), Overflow)})
		return nil
	}
	return ErrOverflow
}
