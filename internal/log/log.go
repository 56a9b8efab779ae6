package log

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/inkdust2021/promptveil/internal/config"
)

// Setup initializes the default logger. Logs always go to stderr; when file
// is non-empty they are mirrored to it as well.
func Setup(level, file string) error {
	var w io.Writer = os.Stderr

	if file != "" {
		file = config.ExpandPath(file)
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return err
		}
		logFile, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		w = io.MultiWriter(os.Stderr, logFile)
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
	return nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
