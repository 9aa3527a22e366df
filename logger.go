package dap

import (
	"log/slog"
	"os"
)

// Log is the package-wide structured logger. Callers embedding dap can
// replace it (e.g. to attach a different handler) before starting the
// proxy; it defaults to a text handler on stderr at Info level.
var Log = slog.New(slog.NewTextHandler(os.Stderr, nil))

// SetLogLevel rebuilds Log with the given minimum level, used by the CLI's
// --log-level flag.
func SetLogLevel(level slog.Level) {
	Log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// queryLogger returns a Log handle annotated with the query name and client
// address, mirroring the per-query contextual logging used throughout this
// corpus's resolver and listener implementations.
func queryLogger(component string, name string, client string) *slog.Logger {
	return Log.With(slog.String("component", component), slog.String("qname", name), slog.String("client", client))
}
