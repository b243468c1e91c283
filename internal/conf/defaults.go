// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/rf2bridge/internal/logger"
)

// Default rFactor 2 shared memory plugin resource names. The telemetry mutex
// name carries the plugin's own spelling.
const (
	DefaultTelemetryBuffer1 = "$rFactor2SMMP_TelemetryBuffer1$"
	DefaultTelemetryBuffer2 = "$rFactor2SMMP_TelemetryBuffer2$"
	DefaultTelemetryMutex   = `Global\$rFactor2SMMP_TelemeteryMutex`
	DefaultScoringBuffer1   = "$rFactor2SMMP_ScoringBuffer1$"
	DefaultScoringBuffer2   = "$rFactor2SMMP_ScoringBuffer2$"
	DefaultScoringMutex     = `Global\$rFactor2SMMP_ScoringMutex`
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("bridge.interval", 200*time.Millisecond)
	v.SetDefault("bridge.locktimeout", 5*time.Second)
	v.SetDefault("bridge.reconnectinterval", time.Second)
	v.SetDefault("bridge.readpolicy", ReadPolicyPartial)
	v.SetDefault("bridge.processname", "rFactor2.exe")
	v.SetDefault("bridge.telemetry.buffer1", DefaultTelemetryBuffer1)
	v.SetDefault("bridge.telemetry.buffer2", DefaultTelemetryBuffer2)
	v.SetDefault("bridge.telemetry.mutex", DefaultTelemetryMutex)
	v.SetDefault("bridge.scoring.buffer1", DefaultScoringBuffer1)
	v.SetDefault("bridge.scoring.buffer2", DefaultScoringBuffer2)
	v.SetDefault("bridge.scoring.mutex", DefaultScoringMutex)

	v.SetDefault("sharedmemory.backend", BackendAuto)
	v.SetDefault("sharedmemory.dir", "/dev/shm")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "rf2bridge")
	v.SetDefault("mqtt.topic", "rf2bridge/tires")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.qos", 0)

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.listen", "localhost:64784")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")

	v.SetDefault("logging.defaultlevel", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.fileoutput.enabled", false)
	v.SetDefault("logging.fileoutput.path", logger.DefaultLogPath)
	v.SetDefault("logging.fileoutput.maxsize", logger.DefaultMaxSize)
	v.SetDefault("logging.fileoutput.maxage", logger.DefaultMaxAge)
	v.SetDefault("logging.fileoutput.maxrotatedfiles", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.fileoutput.compress", true)
	v.SetDefault("logging.fileoutput.level", logger.DefaultLogLevel)
}
