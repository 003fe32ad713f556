package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel(" Debug ")
	if err != nil {
		t.Fatal(err)
	}
	if level != Debug {
		t.Fatalf("expected Debug level; got %d", level)
	}

	if _, err = ParseLevel("chatty"); err == nil {
		t.Fatal("expected an error for an unknown level name")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(new(bytes.Buffer))

	logger := New("test")
	SetLevel(Warning)
	logger.Infof("hidden %d", 1)
	logger.Warningf("visible %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden 1") {
		t.Fatalf("expected info message to be filtered; got %q", out)
	}
	if !strings.Contains(out, "visible 2") || !strings.Contains(out, "[test]") {
		t.Fatalf("expected warning message with module name; got %q", out)
	}
}

func TestSetSinkKeepsLevel(t *testing.T) {
	SetLevel(Error)
	defer SetLevel(Notice)

	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(new(bytes.Buffer))

	New("sink").Warningf("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected warning to be filtered after switching sinks; got %q", buf.String())
	}
}
