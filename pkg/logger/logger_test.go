package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestFileLoggerLevels(t *testing.T) {
	buf := &bufferCloser{}
	l := newWriterLogger(buf, LogInfo)
	l.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	l.Debugf("hidden %d", 1)
	l.Infof("loaded %s", "fixed")
	l.Errorf("failed: %v", "boom")

	got := buf.String()
	if strings.Contains(got, "hidden") {
		t.Errorf("Debug line should be filtered at info level: %q", got)
	}
	if !strings.Contains(got, "2024/01/02 03:04:05 INFO loaded fixed\n") {
		t.Errorf("Missing info line: %q", got)
	}
	if !strings.Contains(got, "ERROR failed: boom") {
		t.Errorf("Missing error line: %q", got)
	}

	if err := l.Close(); err != nil || !buf.closed {
		t.Errorf("Expected writer to be closed, err=%v", err)
	}
}

func TestNewPicksFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "volfusion.log")
	l := New(FileConfig{Filename: path, MaxSize: 1, MaxAge: 1}, true)
	fl, ok := l.(*FileLogger)
	if !ok {
		t.Fatalf("Expected *FileLogger, got %T", l)
	}
	fl.Debugf("debug enabled")
	if err := fl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "DEBUG debug enabled") {
		t.Errorf("Expected debug line in log file, got %q", data)
	}

	if _, ok := New(FileConfig{}, false).(*StdOutLogger); !ok {
		t.Error("Expected stdout logger without filename")
	}
}

func TestLevelString(t *testing.T) {
	if LogError.String() != "ERROR" || LogLevel(42).String() != "UNKNOWN" {
		t.Error("Unexpected level names")
	}
}
