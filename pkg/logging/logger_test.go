package logging

import "testing"

// TestNilLoggerIsSilent verifies that every Logger method tolerates a nil
// receiver, since callers throughout fswatch pass a possibly-nil
// *logging.Logger without checking.
func TestNilLoggerIsSilent(t *testing.T) {
	var logger *Logger

	logger.Print("test")
	logger.Printf("test %d", 1)
	logger.Println("test")
	logger.Debug("test")
	logger.Debugf("test %d", 1)
	logger.Debugln("test")
	logger.Warn(nil)
	logger.Error(nil)
	logger.Warnf("test %d", 1)
	logger.Errorf("test %d", 1)

	if logger.Sublogger("child") != nil {
		t.Fatal("sublogger of nil logger should be nil")
	}
}

func TestSubloggerPrefixNesting(t *testing.T) {
	root := &Logger{}
	child := root.Sublogger("child")
	if child.prefix != "child" {
		t.Fatal("unexpected child prefix:", child.prefix)
	}

	grandchild := child.Sublogger("grandchild")
	if grandchild.prefix != "child.grandchild" {
		t.Fatal("unexpected grandchild prefix:", grandchild.prefix)
	}
}

func TestWriterSplitsLines(t *testing.T) {
	var lines []string
	w := &writer{callback: func(s string) { lines = append(lines, s) }}

	if _, err := w.Write([]byte("first\nsecond\nthi")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("rd\n")); err != nil {
		t.Fatal(err)
	}

	if len(lines) != 3 || lines[0] != "first" || lines[1] != "second" || lines[2] != "third" {
		t.Fatal("unexpected split lines:", lines)
	}
}
