// Package logging assembles structured slog loggers and formatting helpers used
// across vidscribe.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so stage code automatically tags
// log lines with job IDs, stage names, and correlation IDs. A StreamHub keeps a
// bounded ring of recent records so the CLI can tail a running daemon.
package logging
