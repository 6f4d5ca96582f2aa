package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig controls rotation of the optional log file. A zero MaxSizeMB keeps
// lumberjack's default of 100 megabytes.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Setup configures the standard library logger to emit structured JSON and returns
// the underlying slog.Logger for richer logging within the service. All log lines
// include the service name and environment when provided. When file.Path is set
// the output is mirrored into a rotated log file.
func Setup(service, env string, file FileConfig) *slog.Logger {
	return New(output(file), service, env, true)
}

// New builds a JSON logger writing to w. When install is true the logger becomes
// the slog default and the std log package is bridged onto it.
func New(w io.Writer, service, env string, install bool) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource:   false,
		ReplaceAttr: replaceAttr,
	})

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	if !install {
		return base
	}
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

func replaceAttr(groups []string, attr slog.Attr) slog.Attr {
	if attr.Key == slog.TimeKey {
		return slog.Attr{Key: "timestamp", Value: attr.Value}
	}
	if attr.Key == slog.LevelKey {
		level := strings.ToUpper(attr.Value.String())
		return slog.String("severity", level)
	}
	if attr.Key == slog.MessageKey {
		return slog.Attr{Key: "message", Value: attr.Value}
	}
	return attr
}

func output(file FileConfig) io.Writer {
	path := strings.TrimSpace(file.Path)
	if path == "" {
		return os.Stdout
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    file.MaxSizeMB,
		MaxBackups: file.MaxBackups,
		MaxAge:     file.MaxAgeDays,
		Compress:   file.Compress,
	}
	return io.MultiWriter(os.Stdout, rotator)
}

// Discard returns a logger that drops every record. Tests and embedded callers
// use it when no logger is supplied.
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
