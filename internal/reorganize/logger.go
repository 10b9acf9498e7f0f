package reorganize

import "github.com/tphakala/corpusprep/internal/logger"

// GetLogger returns the reorganize module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("reorganize")
}
