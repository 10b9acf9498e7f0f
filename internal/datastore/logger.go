package datastore

import "github.com/tphakala/corpusprep/internal/logger"

// GetLogger returns the datastore package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("datastore")
}
