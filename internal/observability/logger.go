// Package observability provides structured logging helpers for brickify.
package observability

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jmylchreest/brickify/internal/config"
	"github.com/m-mizutani/masq"
)

// SourceKey replaces slog's source group with a compact "file:line" attribute.
const SourceKey = "logpos"

// redactedFields are attribute names whose values never reach the log output.
var redactedFields = []string{"api_token", "token", "authorization", "password"}

// New builds a logger writing to w. Formats other than "text" produce JSON.
func New(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := handlerOptions(cfg)
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetDefault installs logger as the process-wide slog default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}

func handlerOptions(cfg config.LoggingConfig) *slog.HandlerOptions {
	redact := newRedactor()
	return &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a = redact(groups, a)
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok && cfg.TimeFormat != "" {
					return slog.String(slog.TimeKey, t.Format(cfg.TimeFormat))
				}
			case slog.SourceKey:
				if src, ok := a.Value.Any().(*slog.Source); ok {
					return slog.String(SourceKey, fmt.Sprintf("%s:%d", trimSourcePath(src.File), src.Line))
				}
			}
			return a
		},
	}
}

// ParseLevel maps a configured level name to a slog level. "warning" is
// accepted for warn and unknown names fall back to info.
func ParseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func newRedactor() func([]string, slog.Attr) slog.Attr {
	opts := make([]masq.Option, 0, len(redactedFields)+1)
	for _, f := range redactedFields {
		opts = append(opts, masq.WithFieldName(f))
	}
	opts = append(opts, masq.WithContain("Bearer "))
	return masq.New(opts...)
}

// trimSourcePath keeps the path relative to the module root.
func trimSourcePath(file string) string {
	file = strings.ReplaceAll(file, "\\", "/")
	for _, root := range []string{"/internal/", "/cmd/"} {
		if i := strings.LastIndex(file, root); i >= 0 {
			return file[i+1:]
		}
	}
	return file
}

// WithComponent tags every record from the returned logger with component.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithRequestID tags every record from the returned logger with an HTTP
// request ID.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With(slog.String("request_id", requestID))
}
