package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultMaxSizeMB  = 100
	defaultMaxAgeDays = 30
	defaultMaxBackups = 10
)

// FileConfig configures the rotated JSON-lines event log.
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// FileReporter appends one JSON line per event to a rotated log file.
type FileReporter struct {
	writer *lumberjack.Logger
	logger *zap.Logger
}

// NewFileReporter creates the parent directory if needed and opens the
// rotated log file described by cfg.
func NewFileReporter(cfg FileConfig, logger *zap.Logger) (*FileReporter, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("events: failed to create log directory %s: %w", dir, err)
	}

	maxSize := cfg.MaxSizeMB
	if maxSize == 0 {
		maxSize = defaultMaxSizeMB
	}
	maxAge := cfg.MaxAgeDays
	if maxAge == 0 {
		maxAge = defaultMaxAgeDays
	}
	maxBackups := cfg.MaxBackups
	if maxBackups == 0 {
		maxBackups = defaultMaxBackups
	}

	return &FileReporter{
		writer: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize,
			MaxAge:     maxAge,
			MaxBackups: maxBackups,
			Compress:   cfg.Compress,
		},
		logger: logger,
	}, nil
}

// Report serializes event as one JSON line. Fire-and-forget: errors are
// logged, never returned or panicked.
func (f *FileReporter) Report(event Event) {
	line, err := json.Marshal(event)
	if err != nil {
		f.logger.Warn("events: failed to marshal event", zap.Error(err))
		return
	}
	line = append(line, '\n')
	if _, err := f.writer.Write(line); err != nil {
		f.logger.Warn("events: failed to write event to log file",
			zap.Error(err),
			zap.String("request_id", event.RequestID))
	}
}

func (f *FileReporter) Close() error {
	return f.writer.Close()
}
