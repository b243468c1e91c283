package conf

import "github.com/tphakala/rf2bridge/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched from the global logger each time because the central logger
// is installed after configuration has loaded.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
