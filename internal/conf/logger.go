// Package conf provides configuration management for corpusprep.
package conf

import "github.com/tphakala/corpusprep/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// The logger is fetched from the global logger each time so it follows the
// central logger installed after flags are parsed.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
