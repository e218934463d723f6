package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"themeforge/pkg/config"
)

const (
	envLogFormat    = "THEMEFORGE_LOG_FORMAT"
	envLogLevel     = "THEMEFORGE_LOG_LEVEL"
	envLogAddSource = "THEMEFORGE_LOG_ADD_SOURCE"
)

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Entry is one JSON log line. The component attribute is lifted out of
// Fields so log shippers can index on it.
type Entry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// New builds the process logger writing to stderr.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter builds a logger writing to w. The TUI passes a log file here so
// log lines never interleave with the terminal frame.
func NewWithWriter(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	format := setting(envLogFormat, cfg.Format, "text")
	levelText := setting(envLogLevel, cfg.Level, "info")
	level, ok := levels[levelText]
	if !ok {
		return nil, fmt.Errorf("unsupported log level %q", levelText)
	}

	addSource := cfg.AddSource
	if env := strings.TrimSpace(os.Getenv(envLogAddSource)); env != "" {
		addSource, _ = strconv.ParseBool(env)
	}

	switch format {
	case "text":
		return slog.New(charmLog.NewWithOptions(w, charmLog.Options{
			Level:           charmLog.Level(level),
			ReportTimestamp: true,
			ReportCaller:    addSource,
			TimeFormat:      time.Kitchen,
			Formatter:       charmLog.TextFormatter,
		})), nil
	case "json":
		return slog.New(&jsonHandler{
			sink:   &sink{w: w, level: level, addSource: addSource},
			fields: map[string]any{},
		}), nil
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}
}

// setting picks the env value, then the configured one, then fallback.
func setting(env, configured, fallback string) string {
	for _, v := range []string{os.Getenv(env), configured} {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			return v
		}
	}
	return fallback
}

type sink struct {
	mu        sync.Mutex
	w         io.Writer
	level     slog.Level
	addSource bool
}

// jsonHandler writes Entry lines. Attributes bound with WithAttrs are resolved
// once, when bound, into fields.
type jsonHandler struct {
	sink      *sink
	component string
	prefix    string
	fields    map[string]any
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.sink.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}

	line := h.clone()
	record.Attrs(func(attr slog.Attr) bool {
		line.add(attr)
		return true
	})

	entry := Entry{
		Level:     strings.ToLower(record.Level.String()),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Component: line.component,
		Message:   record.Message,
	}
	if len(line.fields) > 0 {
		entry.Fields = line.fields
	}
	if h.sink.addSource && record.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
		if frame.File != "" {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
		}
	}

	out, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	_, err = h.sink.w.Write(append(out, '\n'))
	return err
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, attr := range attrs {
		next.add(attr)
	}
	return next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.prefix += name + "."
	return next
}

func (h *jsonHandler) clone() *jsonHandler {
	next := *h
	next.fields = maps.Clone(h.fields)
	return &next
}

func (h *jsonHandler) add(attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := h.prefix + attr.Key
	if key == "component" && attr.Value.Kind() == slog.KindString {
		h.component = attr.Value.String()
		return
	}
	h.fields[key] = jsonValue(attr.Value)
}

func jsonValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := make(map[string]any)
		for _, item := range v.Group() {
			group[item.Key] = jsonValue(item.Value.Resolve())
		}
		return group
	}
	if err, ok := v.Any().(error); ok {
		return err.Error()
	}
	return v.Any()
}
