// env.go - Environment variable configuration and validation for rf2bridge
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "RF2BRIDGE_DEBUG", validateEnvBool},

		{"bridge.interval", "RF2BRIDGE_INTERVAL", validateEnvDuration},
		{"bridge.locktimeout", "RF2BRIDGE_LOCKTIMEOUT", validateEnvDuration},
		{"bridge.reconnectinterval", "RF2BRIDGE_RECONNECTINTERVAL", validateEnvDuration},
		{"bridge.readpolicy", "RF2BRIDGE_READPOLICY", validateEnvReadPolicy},

		{"sharedmemory.backend", "RF2BRIDGE_SHM_BACKEND", validateEnvBackend},
		{"sharedmemory.dir", "RF2BRIDGE_SHM_DIR", nil},

		{"mqtt.enabled", "RF2BRIDGE_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "RF2BRIDGE_MQTT_BROKER", nil},
		{"mqtt.topic", "RF2BRIDGE_MQTT_TOPIC", nil},
		{"mqtt.username", "RF2BRIDGE_MQTT_USERNAME", nil},
		{"mqtt.password", "RF2BRIDGE_MQTT_PASSWORD", nil},

		{"webserver.enabled", "RF2BRIDGE_WEB_ENABLED", validateEnvBool},
		{"webserver.listen", "RF2BRIDGE_WEB_LISTEN", nil},

		{"sentry.enabled", "RF2BRIDGE_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "RF2BRIDGE_SENTRY_DSN", nil},

		{"logging.defaultlevel", "RF2BRIDGE_LOG_LEVEL", validateEnvLogLevel},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// validateEnvBool validates boolean environment variables
func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(strings.TrimSpace(value)); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

// validateEnvDuration validates positive Go duration strings like "200ms"
func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("must be a duration like 200ms or 5s")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateEnvReadPolicy(value string) error {
	switch strings.TrimSpace(value) {
	case ReadPolicyPartial, ReadPolicyFull:
		return nil
	}
	return fmt.Errorf("must be %q or %q", ReadPolicyPartial, ReadPolicyFull)
}

func validateEnvBackend(value string) error {
	switch strings.TrimSpace(value) {
	case BackendAuto, BackendWindows, BackendPOSIX:
		return nil
	}
	return fmt.Errorf("must be one of auto, windows, posix")
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("must be one of trace, debug, info, warn, error")
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars(v)
}
