package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
)

const (
	ansiReset     = "\033[0m"
	ansiRed       = "\033[31m"
	ansiGreen     = "\033[32m"
	ansiYellow    = "\033[33m"
	ansiCyan      = "\033[36m"
	ansiGray      = "\033[90m"
	ansiUnderline = "\033[4m"
)

//nolint:gochecknoglobals
var levelColors = map[slog.Level]string{
	slog.LevelDebug: ansiCyan,
	slog.LevelInfo:  ansiGreen,
	slog.LevelWarn:  ansiYellow,
	slog.LevelError: ansiRed,
}

// ConsoleHandler implements slog.Handler with colored, human-readable output
// for interactive use. Records are filtered per logger name using PkgLevels.
type ConsoleHandler struct {
	// Output is the destination for log output
	Output io.Writer
	// Level is the minimum level for log records to be processed
	Level slog.Leveler
	// PkgLevels maps logger names (or dotted prefixes of them) to minimum levels
	PkgLevels map[string]slog.Level
	// Mu serializes writes to Output; shared between derived handlers
	Mu *sync.Mutex

	attrs  []slog.Attr
	groups []string
}

var _ slog.Handler = (*ConsoleHandler)(nil)

// Handle implements slog.Handler.
func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, 0, r.NumAttrs()+len(h.attrs))
	attrs = append(attrs, h.attrs...)

	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)

		return true
	})

	if !h.pkgEnabled(attrs, r.Level) {
		return nil
	}

	var b strings.Builder

	b.WriteString(ansiGray + r.Time.Format("15:04:05.000000") + ansiReset)
	b.WriteString(" " + levelColors[r.Level] + "[" + r.Level.String() + "]" + ansiReset)
	b.WriteString(" " + r.Message)

	if len(attrs) > 0 {
		var prefix string
		if len(h.groups) > 0 {
			prefix = strings.Join(h.groups, ".") + "."
		}

		b.WriteString(" " + ansiGray + "|" + ansiReset)
		renderAttrs(&b, prefix, attrs)
	}

	if r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		fn := strings.Split(frame.Function, string(os.PathSeparator))

		b.WriteString("\n-> " + ansiGray + fn[len(fn)-1] + "()")
		b.WriteString(" in " + ansiUnderline + frame.File + ":" + strconv.Itoa(frame.Line) + ansiReset)
	}

	b.WriteByte('\n')

	if h.Mu != nil {
		h.Mu.Lock()
		defer h.Mu.Unlock()
	}

	_, err := io.WriteString(h.Output, b.String())

	//nolint:wrapcheck
	return err
}

// pkgEnabled applies the most specific PkgLevels entry matching the logger
// name, walking "svc.chatsvc.line_transport" -> "svc.chatsvc" -> "svc".
func (h *ConsoleHandler) pkgEnabled(attrs []slog.Attr, level slog.Level) bool {
	if len(h.PkgLevels) == 0 {
		return level >= h.Level.Level()
	}

	var name string

	for _, attr := range attrs {
		if attr.Key == "logger" {
			name = attr.Value.String()

			break
		}
	}

	for name != "" {
		if pkgLevel, ok := h.PkgLevels[name]; ok {
			return level >= pkgLevel
		}

		idx := strings.LastIndexByte(name, '.')
		if idx < 0 {
			break
		}

		name = name[:idx]
	}

	return level >= h.Level.Level()
}

func renderAttrs(b *strings.Builder, prefix string, attrs []slog.Attr) {
	for _, attr := range attrs {
		if attr.Value.Kind() == slog.KindGroup {
			renderAttrs(b, prefix+attr.Key+".", attr.Value.Group())

			continue
		}

		b.WriteString(" " + prefix + attr.Key)
		b.WriteString("=" + ansiGray + attr.Value.String() + ansiReset)
	}
}

// WithAttrs implements slog.Handler.WithAttrs.
func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)

	return &clone
}

// WithGroup implements slog.Handler.WithGroup.
func (h *ConsoleHandler) WithGroup(name string) Handler {
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)

	return &clone
}

// Enabled implements slog.Handler.Enabled.
func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := h.Level.Level()

	// package overrides may lower the threshold below the global level
	for _, pkgLevel := range h.PkgLevels {
		if pkgLevel < minLevel {
			minLevel = pkgLevel
		}
	}

	return minLevel <= level
}
