package utils

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "info")

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %q", buf.String())
	}

	l.SetLevel("debug")
	l.Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("debug not written after SetLevel: %q", buf.String())
	}

	buf.Reset()
	l.SetLevel("loud")
	l.Debug("still shown")
	if !strings.Contains(buf.String(), "still shown") {
		t.Error("an unknown level should leave the current level alone")
	}
}
