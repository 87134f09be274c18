// Package logging provides structured logging configuration for eventsock.
//
// This package wraps log/slog so the server, the handlers and the CLI client
// all log the same way. Levels and formats are parsed from config or flags.
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("socket connected", "socket", sockID, "session", sessID)
//
// Components accept a *slog.Logger in their constructor or via a setter.
// If no logger is provided, use logging.Nop().
package logging
