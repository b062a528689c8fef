package main

import (
	"log/slog"
	"os"
)

// initLogger configures the shared slog logger and calls slog.SetDefault so
// every package logging through slog.Default uses the same handler.
func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug, // include file:line in debug mode
	})
	slog.SetDefault(slog.New(h))
}
