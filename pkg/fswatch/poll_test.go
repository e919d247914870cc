package fswatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestPollMonitorCycle exercises create detection with a real temporary
// directory, mirroring the teacher's temp-dir-plus-deadline integration test
// style (watch_recursive_test.go).
func TestPollMonitorCycle(t *testing.T) {
	directory := t.TempDir()

	events := make(chan Event, 64)
	callback := func(batch []Event) {
		for _, e := range batch {
			select {
			case events <- e:
			default:
			}
		}
	}

	monitor, err := NewPollMonitor(Config{
		Paths:     []string{directory},
		Callback:  callback,
		Latency:   minPollLatency,
		Recursive: true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- monitor.Start() }()

	// Give the initial scan a moment to record the empty directory, so the
	// new file is reported as created rather than as already present.
	time.Sleep(150 * time.Millisecond)

	testFile := filepath.Join(directory, "a")
	require.NoError(t, os.WriteFile(testFile, []byte("x"), 0644))

	deadline := time.NewTimer(5 * time.Second)
	defer deadline.Stop()

	var sawCreated bool
Wait:
	for !sawCreated {
		select {
		case e := <-events:
			if e.Path == testFile && e.Flags.Has(Created) {
				sawCreated = true
				break Wait
			}
		case <-deadline.C:
			t.Fatal("did not observe creation event in time")
		case <-ctx.Done():
			break Wait
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

func TestPollMonitorWalkSkipsFilteredPaths(t *testing.T) {
	directory := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(directory, "keep.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(directory, "skip.log"), []byte("x"), 0644))

	monitor, err := NewPollMonitor(Config{
		Paths:    []string{directory},
		Callback: func([]Event) {},
	})
	require.NoError(t, err)

	exclude, err := NewFilter(`\.log$`, Exclude, true, false)
	require.NoError(t, err)
	monitor.AddFilter(exclude)

	var visited []string
	monitor.walk(directory, monitor.Logger(), func(path string, info StatInfo) {
		visited = append(visited, path)
	})

	for _, path := range visited {
		require.NotContains(t, path, "skip.log")
	}
}
