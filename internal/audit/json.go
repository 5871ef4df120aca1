package audit

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
)

const timeFormat = "2006-01-02 15:04:05"

// jsonLinesHandler is a slog handler that writes one flat JSON object per
// record: the time plus every attribute at the top level. Level and message
// are dropped.
type jsonLinesHandler struct {
	opts slog.HandlerOptions
	mu   *sync.Mutex
	out  io.Writer
}

// newJSONLinesHandler creates a handler writing to out. opts may be nil.
func newJSONLinesHandler(out io.Writer, opts *slog.HandlerOptions) *jsonLinesHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}

	return &jsonLinesHandler{
		opts: *opts,
		mu:   &sync.Mutex{},
		out:  out,
	}
}

// Handle serializes a record as a single JSON line.
func (h *jsonLinesHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+1)
	attrs["time"] = r.Time.Format(timeFormat)

	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "" && a.Value.Any() != nil {
			attrs[a.Key] = a.Value.Any()
		}
		return true
	})

	data, err := json.Marshal(attrs)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.out.Write(append(data, '\n'))
	return err
}

// WithAttrs is not supported
func (h *jsonLinesHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	panic("WithAttrs is not supported by jsonLinesHandler")
}

// WithGroup is not supported
func (h *jsonLinesHandler) WithGroup(_ string) slog.Handler {
	panic("WithGroup is not supported by jsonLinesHandler")
}

// Enabled accepts every level.
func (h *jsonLinesHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}
