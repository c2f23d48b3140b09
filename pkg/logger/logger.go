// Package logger configures the process-wide slog logger.
//
// Third-party library logs are filtered out unless the level is debug, so
// interactive chat output stays readable while adapters and database clients
// remain fully observable during development.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const cogitoPackagePrefix = "github.com/cogitoproject/cogito"

// ParseLevel converts a string log level to slog.Level.
// Valid levels: debug, info, warn, error.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s' (expected debug, info, warn or error)", levelStr)
	}
}

// filteringHandler wraps a slog handler and suppresses records emitted from
// outside the cogito module unless the configured level is debug.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isCogitoPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{
		handler:  h.handler.WithAttrs(attrs),
		minLevel: h.minLevel,
	}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{
		handler:  h.handler.WithGroup(name),
		minLevel: h.minLevel,
	}
}

func (h *filteringHandler) isCogitoPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}

	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}

	fullName := fn.Name()
	file, _ := fn.FileLine(pc)

	return strings.Contains(fullName, cogitoPackagePrefix) ||
		strings.Contains(file, "cogito/")
}

func getLevelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "\033[31m"
	case level >= slog.LevelWarn:
		return "\033[33m"
	case level >= slog.LevelInfo:
		return "\033[36m"
	default:
		return "\033[90m"
	}
}

func isTerminal(file *os.File) bool {
	if fileInfo, err := file.Stat(); err == nil {
		return (fileInfo.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// coloredTextHandler renders "LEVEL message k=v" lines with ANSI colors when
// writing to a terminal.
type coloredTextHandler struct {
	handler  slog.Handler
	writer   io.Writer
	useColor bool
	simple   bool
}

func (h *coloredTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *coloredTextHandler) Handle(ctx context.Context, record slog.Record) error {
	if !h.useColor {
		return h.handler.Handle(ctx, record)
	}

	colorCode := getLevelColor(record.Level)
	resetCode := "\033[0m"

	var buf strings.Builder

	if !h.simple && !record.Time.IsZero() {
		buf.WriteString(record.Time.Format("2006/01/02 15:04:05 "))
	}

	levelStr := record.Level.String()
	if levelStr == "WARNING" {
		levelStr = "WARN"
	}
	buf.WriteString(colorCode)
	buf.WriteString(strings.ToUpper(levelStr))
	buf.WriteString(resetCode)
	buf.WriteString(" ")
	buf.WriteString(record.Message)

	record.Attrs(func(a slog.Attr) bool {
		buf.WriteString(" ")
		buf.WriteString(a.Key)
		buf.WriteString("=")
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")

	_, err := h.writer.Write([]byte(buf.String()))
	return err
}

func (h *coloredTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &coloredTextHandler{
		handler:  h.handler.WithAttrs(attrs),
		writer:   h.writer,
		useColor: h.useColor,
		simple:   h.simple,
	}
}

func (h *coloredTextHandler) WithGroup(name string) slog.Handler {
	return &coloredTextHandler{
		handler:  h.handler.WithGroup(name),
		writer:   h.writer,
		useColor: h.useColor,
		simple:   h.simple,
	}
}

// Init initializes the default logger with the specified level and format.
// format: "simple" (level + message only) or "verbose" (time + level +
// message + attributes). Any other value falls back to the plain slog
// TextHandler output.
func Init(level slog.Level, output *os.File, format string) {
	useColor := isTerminal(output)
	simple := format == "simple" || format == ""

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if a.Value.String() == "WARNING" {
					return slog.String("level", "WARN")
				}
			}
			if simple && (a.Key == slog.TimeKey || a.Key == slog.SourceKey) {
				return slog.Attr{}
			}
			return a
		},
	}

	var handler slog.Handler = slog.NewTextHandler(output, opts)
	if format == "simple" || format == "" || format == "verbose" {
		handler = &coloredTextHandler{
			handler:  handler,
			writer:   output,
			useColor: useColor,
			simple:   simple,
		}
	}

	handler = &filteringHandler{
		handler:  handler,
		minLevel: level,
	}

	slog.SetDefault(slog.New(handler))
}
