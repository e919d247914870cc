//go:build linux

package fswatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestInotifyMonitorRenameProducesMovedEvents(t *testing.T) {
	directory := t.TempDir()
	oldPath := filepath.Join(directory, "old")
	newPath := filepath.Join(directory, "new")
	require.NoError(t, os.WriteFile(oldPath, []byte("x"), 0644))

	events := make(chan Event, 64)
	monitor, err := NewInotifyMonitor(Config{
		Paths:     []string{directory},
		Latency:   100 * time.Millisecond,
		Recursive: true,
		Callback: func(batch []Event) {
			for _, e := range batch {
				select {
				case events <- e:
				default:
				}
			}
		},
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- monitor.Start() }()

	// Give the watcher a moment to establish its initial watches.
	time.Sleep(150 * time.Millisecond)

	require.NoError(t, os.Rename(oldPath, newPath))

	var sawMovedFrom, sawMovedTo bool
	deadline := time.NewTimer(5 * time.Second)
	defer deadline.Stop()
	for !(sawMovedFrom && sawMovedTo) {
		select {
		case e := <-events:
			if e.Path == oldPath && e.Flags.Has(MovedFrom) {
				sawMovedFrom = true
			}
			if e.Path == newPath && e.Flags.Has(MovedTo) {
				sawMovedTo = true
			}
		case <-deadline.C:
			t.Fatal("did not observe rename events in time")
		}
	}

	require.NoError(t, monitor.Stop())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop in time")
	}
}

func TestInotifyWatchMaskHonorsWatchAccess(t *testing.T) {
	withoutAccess, err := NewInotifyMonitor(Config{
		Callback: func([]Event) {},
	})
	require.NoError(t, err)
	require.Zero(t, withoutAccess.watchMask()&unix.IN_ACCESS)

	withAccess, err := NewInotifyMonitor(Config{
		Callback:    func([]Event) {},
		WatchAccess: true,
	})
	require.NoError(t, err)
	require.NotZero(t, withAccess.watchMask()&unix.IN_ACCESS)
}
