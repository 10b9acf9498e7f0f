package observability

import "github.com/tphakala/corpusprep/internal/logger"

// GetLogger returns the observability package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("metrics")
}
