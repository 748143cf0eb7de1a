package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the service logger. Output always reaches stderr; a
// rotating file copy lands under dir so a crash near wake time leaves
// a trail to read in the morning.
func New(env, dir string) *log.Logger {
	level := log.InfoLevel
	if env == "development" {
		level = log.DebugLevel
	}

	writer := io.Writer(os.Stderr)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			writer = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename:   filepath.Join(dir, "startsmart.log"),
				MaxSize:    10, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			})
		}
	}

	return log.NewWithOptions(writer, log.Options{
		ReportCaller:    env == "development",
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "startsmart",
	})
}
