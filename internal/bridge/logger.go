package bridge

import "github.com/tphakala/rf2bridge/internal/logger"

func getLogger() logger.Logger {
	return logger.Global().Module("bridge")
}
