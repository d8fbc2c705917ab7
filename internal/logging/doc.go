// Package logging assembles structured slog loggers and formatting helpers used
// across the media pipeline.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes helpers so component code tags log lines with the
// component, media item and pipeline step. The package also provides a no-op
// logger for tests and wiring code that cannot fail.
//
// Components never reach for a global logger: each one receives a *slog.Logger
// at construction and falls back to NewNop when given nil.
package logging
