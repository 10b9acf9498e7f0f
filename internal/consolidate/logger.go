package consolidate

import "github.com/tphakala/corpusprep/internal/logger"

// GetLogger returns the consolidate module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("consolidate")
}
