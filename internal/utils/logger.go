package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger writes INFO/WARN/ERROR prefixed lines to stderr or an append-only file.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
}

// NewLogger logs to filePath, or to stderr when filePath is empty.
func NewLogger(filePath string) (*Logger, error) {
	if filePath == "" {
		return NewWriterLogger(os.Stderr), nil
	}
	file, err := openLogFile(filePath)
	if err != nil {
		return nil, err
	}
	return &Logger{
		file:   file,
		logger: log.New(file, "", log.LstdFlags),
	}, nil
}

// NewWriterLogger logs to w. Close and Reopen are no-ops.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{logger: log.New(w, "", log.LstdFlags)}
}

func openLogFile(filePath string) (*os.File, error) {
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

func (l *Logger) write(prefix, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.SetPrefix(prefix)
	l.logger.Println(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.write("INFO: ", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.write("WARN: ", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.write("ERROR: ", msg)
}

func (l *Logger) Infof(format string, args ...any) {
	l.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...any) {
	l.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}

// Reopen closes and reopens the log file so an external rotator can move it away.
func (l *Logger) Reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	name := l.file.Name()
	l.file.Close()
	file, err := openLogFile(name)
	if err != nil {
		return err
	}
	l.file = file
	l.logger.SetOutput(file)
	return nil
}

// Close closes the log file
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
}
