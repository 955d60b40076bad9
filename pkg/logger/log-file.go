package logger

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
)

// FileConfig describes a rotating log file.
type FileConfig struct {
	Filename string
	MaxSize  int // megabytes
	MaxAge   int // days
}

// FileLogger writes log lines to a rotating file.
type FileLogger struct {
	mu       sync.Mutex
	out      io.WriteCloser
	logLevel LogLevel
	now      func() time.Time
}

// NewFileLogger creates a logger backed by a lumberjack rotating file.
func NewFileLogger(cfg FileConfig, level LogLevel) *FileLogger {
	return newWriterLogger(&lumberjack.Logger{
		Filename: cfg.Filename,
		MaxSize:  cfg.MaxSize,
		MaxAge:   cfg.MaxAge,
	}, level)
}

func newWriterLogger(w io.WriteCloser, level LogLevel) *FileLogger {
	return &FileLogger{out: w, logLevel: level, now: time.Now}
}

func (l *FileLogger) Printf(level LogLevel, format string, a ...interface{}) {
	if level < l.logLevel {
		return
	}
	line := fmt.Sprintf("%s %s %s\n", l.now().Format("2006/01/02 15:04:05"), logLevelPrefix[level], fmt.Sprintf(format, a...))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write([]byte(line))
}
func (l *FileLogger) Debugf(format string, a ...interface{}) {
	l.Printf(LogDebug, format, a...)
}
func (l *FileLogger) Infof(format string, a ...interface{}) {
	l.Printf(LogInfo, format, a...)
}
func (l *FileLogger) Errorf(format string, a ...interface{}) {
	l.Printf(LogError, format, a...)
}

// Close flushes and closes the underlying file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}

// New picks a file logger when a filename is configured, stdout otherwise.
func New(cfg FileConfig, verbose bool) ILogger {
	level := LogInfo
	if verbose {
		level = LogDebug
	}
	if cfg.Filename == "" {
		return NewStdOutLogger(level)
	}
	return NewFileLogger(cfg, level)
}
