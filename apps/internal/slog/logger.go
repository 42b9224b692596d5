// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

// Package slog is the logging facade used by the token engines. It is a thin layer over
// log/slog so that every package logs through the same *Logger handed to the public client.
package slog

import (
	"context"
	"log/slog"
)

type Level = slog.Level

const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

type Logger = slog.Logger

// New returns slogLogger. If nil is provided a logger that discards everything is returned,
// so the library is silent unless the caller opts in.
func New(slogLogger *slog.Logger) *Logger {
	if slogLogger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return slogLogger
}

// Field creates a slog field for any value
func Field(key string, value any) any {
	return slog.Any(key, value)
}

// Redacted creates a field whose value is replaced by a fixed marker. It is used for
// credentials and tokens so that their presence is visible in logs but their value is not.
func Redacted(key string, value string) any {
	if value == "" {
		return slog.String(key, "")
	}
	return slog.String(key, "[REDACTED]")
}

// Debug logs msg at debug level if l is enabled for it.
func Debug(ctx context.Context, l *Logger, msg string, args ...any) {
	if l == nil || !l.Enabled(ctx, LevelDebug) {
		return
	}
	l.Log(ctx, LevelDebug, msg, args...)
}

type Value = slog.Value

// RedactedValue is the value logged in place of secret material.
func RedactedValue() Value {
	return slog.StringValue("[REDACTED]")
}
