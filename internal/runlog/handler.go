package runlog

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// BatchKey is the attribute key that carries a batch sequence number. The
// handler lifts it out of the attribute list into the line prefix.
const BatchKey = "batch"

// LevelCritical sits above slog.LevelError and is used for failures that end
// a run.
const LevelCritical = slog.Level(12)

// TimeLayout is the timestamp layout of every log line.
const TimeLayout = "2006-01-02 15:04:05,000"

// LevelName returns the label printed for l.
func LevelName(l slog.Level) string {
	switch {
	case l >= LevelCritical:
		return "CRITICAL"
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARNING"
	case l >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

// Handler writes one line per record:
//
//	2024-05-01 12:00:00,123 - Batch 3 - INFO - fetched 1000 rows fetched_total=3000
//
// Records without a batch attribute print "-" in the batch field.
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	level  slog.Leveler
	batch  string
	attrs  string
	prefix string
	now    func() time.Time
}

// NewHandler returns a Handler writing to w. A nil level means info.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{mu: &sync.Mutex{}, w: w, level: level, now: time.Now}
}

func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	batch := h.batch
	var extra strings.Builder
	extra.WriteString(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == BatchKey && h.prefix == "" {
			batch = a.Value.Resolve().String()
			return true
		}
		appendAttr(&extra, h.prefix, a)
		return true
	})
	if batch == "" {
		batch = "-"
	}

	ts := r.Time
	if ts.IsZero() {
		ts = h.now()
	}

	var line strings.Builder
	line.WriteString(ts.Format(TimeLayout))
	line.WriteString(" - Batch ")
	line.WriteString(batch)
	line.WriteString(" - ")
	line.WriteString(LevelName(r.Level))
	line.WriteString(" - ")
	line.WriteString(r.Message)
	line.WriteString(extra.String())
	line.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, line.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	var b strings.Builder
	b.WriteString(h.attrs)
	for _, a := range attrs {
		if a.Key == BatchKey && h.prefix == "" {
			h2.batch = a.Value.Resolve().String()
			continue
		}
		appendAttr(&b, h.prefix, a)
	}
	h2.attrs = b.String()
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, p, ga)
		}
		return
	}

	b.WriteByte(' ')
	b.WriteString(prefix)
	b.WriteString(a.Key)
	b.WriteByte('=')

	var s string
	switch a.Value.Kind() {
	case slog.KindTime:
		s = a.Value.Time().Format(time.RFC3339)
	case slog.KindDuration:
		s = a.Value.Duration().String()
	default:
		s = a.Value.String()
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		s = strconv.Quote(s)
	}
	b.WriteString(s)
}
