// Copyright 2026 The Patchbay Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewCommandLogger creates a structured logger for CLI commands. When
// stderr is a terminal, uses slog.TextHandler for human-readable
// output. When stderr is piped or redirected (cron jobs, scripts, CI),
// uses slog.JSONHandler for machine-parseable output.
//
// Commands scope the logger with command-specific context via With():
//
//	logger := cli.NewCommandLogger().With("command", "run")
func NewCommandLogger() *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
