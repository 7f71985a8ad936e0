// streamaggregator - platform-agnostic live stream ingestion engine
// SPDX-License-Identifier: Apache-2.0
// https://github.com/tomtom215/streamaggregator

package scheduler

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// zerologHandler is a minimal slog.Handler that forwards records into the
// project's zerolog.Logger. sutureslog.Handler (the teacher's suture event
// hook, see internal/supervisor/tree.go) requires a *slog.Logger, but
// internal/logging standardizes on zerolog; no slog-zerolog bridge exists
// in the dependency set, so this is the glue between suture's interface and
// the chosen logging stack rather than a reimplementation of either.
type zerologHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
}

func newZerologHandler(logger zerolog.Logger) *zerologHandler {
	return &zerologHandler{logger: logger}
}

func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= slogLevelToZerolog(level)
}

func (h *zerologHandler) Handle(_ context.Context, record slog.Record) error {
	evt := h.logger.WithLevel(slogLevelToZerolog(record.Level))
	for _, a := range h.attrs {
		evt = evt.Interface(a.Key, a.Value.Any())
	}
	record.Attrs(func(a slog.Attr) bool {
		evt = evt.Interface(a.Key, a.Value.Any())
		return true
	})
	evt.Msg(record.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &zerologHandler{logger: h.logger, attrs: make([]slog.Attr, 0, len(h.attrs)+len(attrs))}
	next.attrs = append(next.attrs, h.attrs...)
	next.attrs = append(next.attrs, attrs...)
	return next
}

func (h *zerologHandler) WithGroup(_ string) slog.Handler {
	return h
}

func slogLevelToZerolog(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
