package report

import "github.com/tphakala/corpusprep/internal/logger"

// GetLogger returns the report package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("report")
}
