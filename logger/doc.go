// Package logger provides structured logging capabilities.
//
// The logger package builds the zap loggers used by evalbox: one for the
// service, configured from the logging section, and a quiet one for
// isolation worker processes.
//
// Usage:
//
//	logger, err := logger.New("production", "info")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger.Info("Application started")
//	logger.Error("An error occurred", zap.Error(err))
package logger
