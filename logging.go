// Ambient structured logging for root and collection lifecycle events.
package zds

import (
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// NewLogger builds a tinted console logger writing to w. When w is a
// terminal-backed file, output is colorized; otherwise colors are
// disabled automatically.
func NewLogger(w io.Writer) *slog.Logger {
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
		w = colorable.NewColorable(f)
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	}))
}

// discardLogger is used when no *slog.Logger is supplied to RootOptions.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
