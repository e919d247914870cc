package must

import (
	"errors"
	"testing"
)

type failingCloser struct{}

func (failingCloser) Close() error { return errors.New("close failed") }

func TestCloseDoesNotPanicOnError(t *testing.T) {
	// Close logs the error rather than propagating it; this just verifies
	// it doesn't panic with a nil logger.
	Close(failingCloser{}, nil)
}
