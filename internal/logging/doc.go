// Package logging assembles structured slog loggers and formatting helpers used
// across upscan.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so coordinator code can tag log
// lines with task IDs, ticket IDs, lifecycle stages, and correlation IDs. A
// no-op logger is provided for tests and wiring code that cannot fail.
package logging
