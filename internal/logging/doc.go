// Package logging provides structured logging for prewarm.
//
// It wraps Go's log/slog JSON handler. A [Logger] carries persistent
// attributes (session, tier, route) so every prefetch decision and failure
// can be correlated after the fact:
//
//	logger, err := logging.NewLogger(dir, logging.LevelInfo)
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	tierLog := logger.WithSession(id).WithTier("secondary")
//	tierLog.Warn("prefetch failed", "route", "gerar-documento", "error", err)
//
// Long-running daemons should use [NewLoggerWithRotation], which rotates
// prewarm.log into prewarm.log.1 .. prewarm.log.N once it grows past the
// configured size.
//
// All types in this package are safe for concurrent use.
package logging
