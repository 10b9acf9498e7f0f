package split

import "github.com/tphakala/corpusprep/internal/logger"

// GetLogger returns the split module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("split")
}
