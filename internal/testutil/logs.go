package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// LogRecorder is a slog.Handler that keeps every record message in order so
// tests can assert on the exact lines a component logged.
type LogRecorder struct {
	mu      *sync.Mutex
	records *[]slog.Record
	attrs   []slog.Attr
}

// NewLogRecorder returns a recorder and a logger writing into it.
func NewLogRecorder() (*LogRecorder, *slog.Logger) {
	r := &LogRecorder{mu: &sync.Mutex{}, records: &[]slog.Record{}}
	return r, slog.New(r)
}

func (r *LogRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *LogRecorder) Handle(_ context.Context, rec slog.Record) error {
	rec = rec.Clone()
	rec.AddAttrs(r.attrs...)
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.records = append(*r.records, rec)
	return nil
}

func (r *LogRecorder) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *r
	next.attrs = append(append([]slog.Attr{}, r.attrs...), attrs...)
	return &next
}

func (r *LogRecorder) WithGroup(string) slog.Handler { return r }

// Messages returns the message of every record at or above level.
func (r *LogRecorder) Messages(level slog.Level) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, rec := range *r.records {
		if rec.Level >= level {
			out = append(out, rec.Message)
		}
	}
	return out
}

// Contains reports whether any record message contains substr.
func (r *LogRecorder) Contains(substr string) bool {
	for _, m := range r.Messages(slog.LevelDebug) {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}
