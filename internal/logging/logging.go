// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/lumberjack"
	log "github.com/sirupsen/logrus"
)

// Options select level, format and an optional rotating log file.
type Options struct {
	Level  string
	Format string
	File   string
}

// Setup configures logger. With a File set, output goes to stderr and to a
// rotating file. The returned closer releases the file.
func Setup(logger *log.Logger, opts Options) (io.Closer, error) {
	level, err := log.ParseLevel(opts.Level)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)

	if opts.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if opts.File == "" {
		logger.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    10, // megabytes
		MaxBackups: 7,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
