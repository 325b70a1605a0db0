package logger

import (
	"log/slog"
	"os"
)

// Init installs a JSON slog handler as the process-wide default logger.
func Init() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

// Fatal logs at error level and terminates the process. Reserved for
// startup failures; request paths must return errors instead.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}
