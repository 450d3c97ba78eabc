package coros

import (
	"log/slog"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
)

// Logger is the structured-logging sink used by a Pool and its Schedulers.
// It is a thin alias over logiface's generic logger so that a Pool's
// WithLogger option can accept anything built from this package's
// NewSlogLogger (mirroring the teacher's
// logiface.New[*islog.Event](islog.NewLogger(handler)) construction) without
// coros having to define its own Event type.
type Logger = logiface.Logger[*islog.Event]

// noOpLogger is the default when WithLogger is not supplied. A nil *Logger
// would also work for most call sites below, but scheduler/pool code always
// goes through the logger so a real (disabled) logger keeps the call sites
// free of nil checks.
var noOpLogger = logiface.New[*islog.Event](logiface.WithLevel[*islog.Event](logiface.LevelDisabled))

// defaultLogger returns l if non-nil, otherwise the package no-op logger.
func defaultLogger(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return noOpLogger
}

// NewSlogLogger adapts an existing log/slog.Handler for use as a Pool
// logger, grounded on logiface-slog's own NewLogger + logiface.New pattern.
func NewSlogLogger(handler slog.Handler) *Logger {
	return logiface.New[*islog.Event](islog.NewLogger(handler))
}
