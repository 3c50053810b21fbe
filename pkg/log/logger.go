package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/devseo/siteaudit/pkg/config"
)

// New builds the application logger. Output always goes to stdout; when a
// file is configured it is additionally written through a size-based rotator.
// An unknown level falls back to warn rather than failing startup.
func New(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.WarnLevel
		fmt.Fprintf(os.Stderr, "Invalid log level %q, defaulting to 'warn'\n", cfg.Level)
	}
	logger.SetLevel(level)

	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "." {
			if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
				logger.WithError(mkErr).WithField("path", dir).
					Error("Cannot create log directory, file logging disabled")
				return logger
			}
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   config.GetEffectiveLogCompress(cfg),
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}

	return logger
}
