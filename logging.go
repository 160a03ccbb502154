package luxsession

import (
	"io"
	"log/slog"
)

// nopLogger keeps the library silent unless a logger is configured.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
