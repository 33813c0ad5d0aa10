package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	FormatPretty  = "pretty"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Logger is a zerolog logger bound to the service it was built for.
// Copies are cheap; the With* methods never mutate the receiver.
type Logger struct {
	zl      zerolog.Logger
	service string
}

// Init builds the global logger from cfg and registers its per-component
// level overrides.
func Init(cfg *Config) {
	cfg.ApplyDefaults()
	l := New(cfg, cfg.ServiceName)
	SetGlobalLogger(l)
	registerLevels(l, cfg.Components)
}

// New builds a logger from cfg. An unparseable level means info.
func New(cfg *Config, service string) *Logger {
	out := outputWriter(cfg.Output)
	var zl zerolog.Logger
	if f := strings.ToLower(cfg.Format); f == FormatConsole || f == FormatPretty {
		zl = zerolog.New(consoleWriter(out, service, cfg.NoColor))
	} else {
		zl = zerolog.New(out)
	}
	zl = zl.Level(parseLevel(cfg.Level))

	ctx := zl.With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	if isNamed(service) {
		ctx = ctx.Str(FieldService, service)
	}
	return &Logger{zl: ctx.Logger(), service: service}
}

// NewDefault is a console logger at info with timestamps.
func NewDefault(service string) *Logger {
	return New(&Config{Level: "info", Format: FormatConsole, Output: "stdout", Timestamp: true}, service)
}

// NewWithWriter writes JSON to w; tests capture output through it.
func NewWithWriter(w io.Writer, level string) *Logger {
	return &Logger{zl: zerolog.New(w).Level(parseLevel(level))}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

func (l *Logger) derive(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl, service: l.service}
}

// WithComponent tags every entry with the component name.
func (l *Logger) WithComponent(name string) *Logger {
	return l.derive(l.zl.With().Str(FieldComponent, name).Logger())
}

// WithLevel returns a copy filtering at level; an unknown level keeps l's.
func (l *Logger) WithLevel(level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return l
	}
	return l.derive(l.zl.Level(lvl))
}

// WithFields adds fields to every entry.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	return l.derive(l.zl.With().Fields(fields).Logger())
}

// WithError adds an error field to every entry.
func (l *Logger) WithError(err error) *Logger {
	return l.derive(l.zl.With().Err(err).Logger())
}

func (l *Logger) Debug(msg string, fields ...map[string]any) { emit(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...map[string]any)  { emit(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...map[string]any)  { emit(l.zl.Warn(), msg, fields) }
func (l *Logger) Error(msg string, fields ...map[string]any) { emit(l.zl.Error(), msg, fields) }

// emit is a no-op for a disabled level: zerolog hands back a nil event.
func emit(ev *zerolog.Event, msg string, fields []map[string]any) {
	for _, f := range fields {
		ev = ev.Fields(f)
	}
	ev.Msg(msg)
}

var global atomic.Pointer[Logger]

// SetGlobalLogger replaces the process-wide logger.
func SetGlobalLogger(l *Logger) { global.Store(l) }

// GetGlobalLogger returns the process-wide logger, installing a default
// console logger on first use.
func GetGlobalLogger() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	global.CompareAndSwap(nil, NewDefault("default"))
	return global.Load()
}

func Info(msg string, fields ...map[string]any) { GetGlobalLogger().Info(msg, fields...) }
func Warn(msg string, fields ...map[string]any) { GetGlobalLogger().Warn(msg, fields...) }

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

func isNamed(service string) bool { return service != "" && service != "default" }

func outputWriter(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

const reset = "\033[0m"

var levelStyles = map[string]struct{ tag, color string }{
	"trace": {"TRC", ""},
	"debug": {"DBG", "\033[36m"},
	"info":  {"INF", "\033[32m"},
	"warn":  {"WRN", "\033[33m"},
	"error": {"ERR", "\033[31m"},
	"fatal": {"FTL", "\033[35m"},
}

// consoleWriter prefixes each line with a three-letter service tag and a
// short level, e.g. [TRA][INF].
func consoleWriter(out io.Writer, service string, noColor bool) zerolog.ConsoleWriter {
	prefix := ""
	if isNamed(service) && len(service) >= 3 {
		prefix = "[" + strings.ToUpper(service[:3]) + "]"
		if !noColor {
			prefix = "\033[34m" + prefix + reset
		}
	}
	return zerolog.ConsoleWriter{
		Out:             out,
		TimeFormat:      "15:04:05",
		NoColor:         noColor,
		FormatLevel:     func(i any) string { return prefix + levelTag(fmt.Sprint(i), noColor) },
		FormatFieldName: func(i any) string { return fmt.Sprint(i) + ":" },
	}
}

func levelTag(level string, noColor bool) string {
	level = strings.ToLower(level)
	style, ok := levelStyles[level]
	if !ok {
		style.tag = strings.ToUpper(level)
	}
	if noColor || style.color == "" {
		return "[" + style.tag + "]"
	}
	return style.color + "[" + style.tag + "]" + reset
}
