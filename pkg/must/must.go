// Package must provides small helpers for performing cleanup operations that
// can fail but whose failure shouldn't interrupt control flow. Each helper
// performs the operation and logs any resulting error as a warning rather
// than propagating it, which is appropriate for best-effort teardown paths
// such as releasing watch descriptors or closing kernel queues.
package must

import (
	"io"

	"github.com/emcrisostomo/fswatch/pkg/logging"
)

// Close closes c, logging any error as a warning. It is used for best-effort
// teardown paths, such as releasing an inotify file descriptor on monitor
// exit, where a close failure shouldn't interrupt the caller's own error
// return.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err.Error())
	}
}
