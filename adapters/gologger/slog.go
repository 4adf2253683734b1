package gologger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

const LevelTrace = slog.LevelDebug - 4

// SlogLogger is a glog.Logger that writes through log/slog.
type SlogLogger struct {
	logger *slog.Logger
	ctx    context.Context
	exit   func(int)
}

type SlogOptions struct {
	// Format is "text" or "json".
	Format string
	Level  string
	Output io.Writer
}

func NewSlogLogger(opts SlogOptions) *SlogLogger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return &SlogLogger{logger: slog.New(handler), exit: os.Exit}
}

// ParseLevel maps a level name to a slog level. Unknown names map to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *SlogLogger) Trace(msg string, args ...any) { l.log(LevelTrace, msg, args) }
func (l *SlogLogger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *SlogLogger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *SlogLogger) Fatal(msg string, args ...any) {
	l.log(slog.LevelError, msg, args)
	if l.exit != nil {
		l.exit(1)
	}
}

func (l *SlogLogger) WithContext(ctx context.Context) glog.Logger {
	if l == nil {
		return glog.Nop()
	}
	clone := *l
	clone.ctx = ctx
	return &clone
}

// Named returns a child logger tagged with a logger attribute.
func (l *SlogLogger) Named(name string) *SlogLogger {
	clone := *l
	clone.logger = l.logger.With("logger", name)
	return &clone
}

func (l *SlogLogger) log(level slog.Level, msg string, args []any) {
	if l == nil || l.logger == nil {
		return
	}
	ctx := l.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	l.logger.Log(ctx, level, msg, args...)
}

// SlogProvider hands out named SlogLogger children.
type SlogProvider struct {
	root *SlogLogger
}

func NewSlogProvider(root *SlogLogger) *SlogProvider {
	return &SlogProvider{root: root}
}

func (p *SlogProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.root == nil {
		return glog.Nop()
	}
	if strings.TrimSpace(name) == "" {
		return p.root
	}
	return p.root.Named(name)
}

var (
	_ glog.Logger         = (*SlogLogger)(nil)
	_ glog.LoggerProvider = (*SlogProvider)(nil)
)
