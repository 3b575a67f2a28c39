package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// ConsoleLogger is Tier 1: always-on terminal logging via log/slog, JSON or
// colored text.
type ConsoleLogger struct {
	handler slog.Handler
}

// NewConsoleLogger builds the console tier from Config.
func NewConsoleLogger(config *Config) *ConsoleLogger {
	opts := &slog.HandlerOptions{Level: slogLevel(config.Level)}

	var handler slog.Handler
	switch {
	case config.Console.Format == FormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	case config.Console.Color:
		handler = newColorTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &ConsoleLogger{handler: handler}
}

func (cl *ConsoleLogger) log(level Level, msg string, component Component, fields map[string]interface{}) {
	record := slog.NewRecord(time.Now(), slogLevel(level).Level(), msg, 0)
	if component != "" {
		record.AddAttrs(slog.String("component", string(component)))
	}
	for k, v := range fields {
		record.AddAttrs(slog.Any(k, v))
	}
	_ = cl.handler.Handle(context.Background(), record)
}

func slogLevel(level Level) slog.Leveler {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// colorTextHandler renders a record as a colored single-line JSON blob; good
// enough for a terminal, cheap to implement against slog.Handler.
type colorTextHandler struct {
	w    io.Writer
	opts *slog.HandlerOptions
	mu   sync.Mutex

	debugColor *color.Color
	infoColor  *color.Color
	warnColor  *color.Color
	errorColor *color.Color
}

func newColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *colorTextHandler {
	return &colorTextHandler{
		w:          w,
		opts:       opts,
		debugColor: color.New(color.FgCyan),
		infoColor:  color.New(color.FgGreen),
		warnColor:  color.New(color.FgYellow),
		errorColor: color.New(color.FgRed, color.Bold),
	}
}

func (h *colorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts != nil && h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *colorTextHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf := map[string]interface{}{
		"time": r.Time.Format(time.RFC3339),
		"msg":  r.Message,
	}
	switch r.Level {
	case slog.LevelDebug:
		buf["level"] = h.debugColor.Sprint("DEBUG")
	case slog.LevelInfo:
		buf["level"] = h.infoColor.Sprint("INFO")
	case slog.LevelWarn:
		buf["level"] = h.warnColor.Sprint("WARN")
	case slog.LevelError:
		buf["level"] = h.errorColor.Sprint("ERROR")
	}
	r.Attrs(func(a slog.Attr) bool {
		buf[a.Key] = a.Value.Any()
		return true
	})

	data, err := json.Marshal(buf)
	if err != nil {
		return err
	}
	_, err = h.w.Write(append(data, '\n'))
	return err
}

func (h *colorTextHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *colorTextHandler) WithGroup(_ string) slog.Handler      { return h }
