// internal/runtime/runtime.go
package runtime

import (
	"log/slog"
	"os"

	"golang.org/x/oauth2"
)

// TokenSource is re-exported so callers wiring clients don't need to import
// oauth2 directly.
type TokenSource = oauth2.TokenSource

func DefaultLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
