//go:build darwin && cgo

package fswatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStreamMonitorCoalescedModify(t *testing.T) {
	directory := t.TempDir()
	path := filepath.Join(directory, "c.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	events := make(chan Event, 64)
	monitor, err := NewStreamMonitor(Config{
		Paths:     []string{directory},
		Latency:   250 * time.Millisecond,
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

	time.Sleep(150 * time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("data"), 0644))
		time.Sleep(20 * time.Millisecond)
	}

	deadline := time.NewTimer(5 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case e := <-events:
			if filepath.Base(e.Path) == "c.txt" && e.Flags.Has(Updated) {
				require.NoError(t, monitor.Stop())
				<-done
				return
			}
		case <-deadline.C:
			t.Fatal("did not observe coalesced modify event in time")
		}
	}
}
