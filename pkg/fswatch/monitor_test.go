package fswatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopImplementation struct {
	runFunc func(b *Base) error
	stopped bool
}

func (n *noopImplementation) run(b *Base) error {
	if n.runFunc != nil {
		return n.runFunc(b)
	}
	return nil
}

func (n *noopImplementation) onStop() {
	n.stopped = true
}

func TestNewBaseRequiresCallback(t *testing.T) {
	_, err := NewBase(Config{}, &noopImplementation{})
	require.ErrorIs(t, err, ErrCallbackNotSet)
}

func TestNewBaseRejectsNegativeLatency(t *testing.T) {
	_, err := NewBase(Config{Callback: func([]Event) {}, Latency: -1}, &noopImplementation{})
	require.ErrorIs(t, err, ErrInvalidLatency)
}

func TestNewBaseDefaultsLatency(t *testing.T) {
	base, err := NewBase(Config{Callback: func([]Event) {}}, &noopImplementation{})
	require.NoError(t, err)
	assert.Equal(t, time.Second, base.Config().Latency)
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	impl := &noopImplementation{runFunc: func(b *Base) error {
		close(started)
		<-release
		return nil
	}}
	base, err := NewBase(Config{Callback: func([]Event) {}}, impl)
	require.NoError(t, err)

	go base.Start()
	<-started

	err = base.Start()
	require.ErrorIs(t, err, ErrMonitorAlreadyRunning)

	close(release)
}

func TestNotifyFiltersAndDelivers(t *testing.T) {
	var delivered []Event
	base, err := NewBase(Config{Callback: func(events []Event) {
		delivered = append(delivered, events...)
	}}, &noopImplementation{})
	require.NoError(t, err)

	exclude, err := NewFilter(`^/skip`, Exclude, true, false)
	require.NoError(t, err)
	base.AddFilter(exclude)
	base.AddEventTypeFilter(Created)

	when := time.Now()
	base.Notify([]Event{
		NewEvent("/skip/a", when, Created),
		NewEvent("/keep/b", when, Removed),
		NewEvent("/keep/c", when, Created),
	})

	require.Len(t, delivered, 1)
	assert.Equal(t, "/keep/c", delivered[0].Path)
}

func TestNotifyBubblesSamePathAndTime(t *testing.T) {
	var delivered []Event
	base, err := NewBase(Config{
		Callback:     func(events []Event) { delivered = events },
		BubbleEvents: true,
	}, &noopImplementation{})
	require.NoError(t, err)

	when := time.Now()
	base.Notify([]Event{
		NewEvent("/a", when, Created),
		NewEvent("/a", when, Updated),
		NewEvent("/b", when, Created),
	})

	require.Len(t, delivered, 2)
	assert.True(t, delivered[0].Flags.Has(Created))
	assert.True(t, delivered[0].Flags.Has(Updated))
	assert.Equal(t, "/b", delivered[1].Path)
}

func TestHandleOverflowPolicy(t *testing.T) {
	var delivered []Event
	base, err := NewBase(Config{
		Callback:      func(events []Event) { delivered = events },
		AllowOverflow: true,
	}, &noopImplementation{})
	require.NoError(t, err)

	require.NoError(t, base.HandleOverflow())
	require.Len(t, delivered, 1)
	assert.True(t, delivered[0].Flags.Has(Overflow))

	base.config.AllowOverflow = false
	err = base.HandleOverflow()
	require.ErrorIs(t, err, ErrOverflow)
}

func TestIdleEventFiresAfterInactivity(t *testing.T) {
	events := make(chan []Event, 4)
	base, err := NewBase(Config{
		Callback:      func(e []Event) { events <- e },
		Latency:       20 * time.Millisecond,
		FireIdleEvent: true,
	}, &noopImplementation{runFunc: func(b *Base) error {
		time.Sleep(150 * time.Millisecond)
		return nil
	}})
	require.NoError(t, err)

	require.NoError(t, base.Start())

	select {
	case e := <-events:
		require.Len(t, e, 1)
		assert.True(t, e[0].Flags.Has(NoOp))
		assert.Equal(t, "", e[0].Path)
	default:
		t.Fatal("expected at least one idle event to have been delivered")
	}
}
