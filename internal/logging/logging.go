// Package logging configures the process-wide structured logger. Output
// always goes to a local text handler; when a Seq endpoint is configured
// the same records are shipped there as well.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// Options controls logger construction. The zero value logs at info level
// to stderr with no remote sink.
type Options struct {
	// Level is the minimum level, one of "debug", "info", "warn", "error".
	Level string
	// SeqURL, when non-empty, is a Seq ingestion endpoint that receives a
	// copy of every record.
	SeqURL string
	// Out overrides the local sink, stderr when nil.
	Out io.Writer
}

// FromEnv reads HERONDB_LOG_LEVEL and HERONDB_SEQ_URL.
func FromEnv() Options {
	return Options{
		Level:  os.Getenv("HERONDB_LOG_LEVEL"),
		SeqURL: os.Getenv("HERONDB_SEQ_URL"),
	}
}

// multiHandler fans each record out to every underlying handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// New builds a logger from the options and returns it with a cleanup
// function that flushes any remote sink.
func New(opts Options) (*slog.Logger, func()) {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	local := slog.NewTextHandler(out, handlerOpts)

	if opts.SeqURL == "" {
		return slog.New(local), func() {}
	}

	_, seqHandler := slogseq.NewLogger(
		opts.SeqURL,
		slogseq.WithBatchSize(16),
		slogseq.WithFlushInterval(500*time.Millisecond),
		slogseq.WithHandlerOptions(handlerOpts),
	)
	if seqHandler == nil {
		return slog.New(local), func() {}
	}

	multi := &multiHandler{handlers: []slog.Handler{local, seqHandler}}
	return slog.New(multi), func() { seqHandler.Close() }
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
