// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alnah/go-speechscreen/internal/config"
)

// Rotation limits for the log file.
const (
	maxSizeMB  = 20
	maxBackups = 3
	maxAgeDays = 30
)

// Configure returns a logrus logger writing to a rotated file at
// cfg.Paths.LogPath, and also to stdout when cfg.Logging.Stdout is set.
// An empty log path logs to stderr only.
func Configure(cfg *config.Config) (*logrus.Logger, error) {
	return configure(cfg, os.Stdout, os.Stderr)
}

func configure(cfg *config.Config, stdout, stderr io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	switch strings.ToLower(cfg.Logging.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(strings.ToLower(cfg.Logging.Level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(lvl)

	if cfg.Paths.LogPath == "" {
		logger.SetOutput(stderr)
		return logger, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.LogPath), 0o750); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.Paths.LogPath,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	if cfg.Logging.Stdout {
		logger.SetOutput(io.MultiWriter(stdout, rotator))
	} else {
		logger.SetOutput(rotator)
	}
	return logger, nil
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
