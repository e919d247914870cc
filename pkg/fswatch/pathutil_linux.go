//go:build linux

package fswatch

import (
	"os"
	"syscall"
	"time"
)

// statCtime extracts the inode change time from the Stat_t embedded in the
// os.FileInfo's Sys() value, falling back to the modification time if it
// isn't available.
func statCtime(info os.FileInfo) time.Time {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return time.Unix(st.Ctim.Sec, st.Ctim.Nsec)
	}
	return info.ModTime()
}
