package fswatch

import (
	"os"
	"path/filepath"
	"time"

	"github.com/emcrisostomo/fswatch/pkg/logging"
)

// ListDirectoryEntries returns the names of the direct children of path
// (files and directories alike, not full paths). Errors are logged via
// logger and reported back as a nil slice, matching the "errors are logged
// and reported to caller" convention used throughout the path utilities.
func ListDirectoryEntries(path string, logger *logging.Logger) []string {
	entries, err := os.ReadDir(path)
	if err != nil {
		logger.Warnf("unable to read directory '%s': %s", path, err.Error())
		return nil
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

// ListSubdirectories returns the names of the direct children of path that
// are themselves directories.
func ListSubdirectories(path string, logger *logging.Logger) []string {
	entries, err := os.ReadDir(path)
	if err != nil {
		logger.Warnf("unable to read directory '%s': %s", path, err.Error())
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

// ResolveSymlink returns the canonical absolute form of path. If path (or
// any component) does not exist, the original path is returned unchanged,
// matching libfswatch's fallback-on-ENOENT behavior; other errors are
// logged and also fall back to the original path.
func ResolveSymlink(path string, logger *logging.Logger) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("unable to resolve symbolic links for '%s': %s", path, err.Error())
		}
		return path
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	return resolved
}

// StatInfo is the subset of file metadata the monitor backends need from a
// stat/lstat call.
type StatInfo struct {
	Mode  os.FileMode
	Mtime time.Time
	Ctime time.Time
}

// StatPath stats path, following symlinks if follow is true (lstat
// otherwise). It reports success via the boolean return; a failure is
// logged and reported to the caller as false.
func StatPath(path string, follow bool, logger *logging.Logger) (StatInfo, bool) {
	var (
		info os.FileInfo
		err  error
	)
	if follow {
		info, err = os.Stat(path)
	} else {
		info, err = os.Lstat(path)
	}
	if err != nil {
		logger.Warnf("unable to stat '%s': %s", path, err.Error())
		return StatInfo{}, false
	}
	return StatInfo{
		Mode:  info.Mode(),
		Mtime: info.ModTime(),
		Ctime: statCtime(info),
	}, true
}
