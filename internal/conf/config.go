// Package conf provides configuration management for rf2bridge.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/rf2bridge/internal/errors"
	"github.com/tphakala/rf2bridge/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Read policies for the double-buffer reader
const (
	ReadPolicyPartial = "partial"
	ReadPolicyFull    = "full"
)

// Shared-memory backends
const (
	BackendAuto    = "auto"
	BackendWindows = "windows"
	BackendPOSIX   = "posix"
)

// ChannelSettings names the two buffers and the lock of one shared-memory channel
type ChannelSettings struct {
	Buffer1 string `yaml:"buffer1"`
	Buffer2 string `yaml:"buffer2"`
	Mutex   string `yaml:"mutex"`
}

// BridgeSettings controls the polling loop and reconnect supervisor
type BridgeSettings struct {
	Interval          time.Duration   `yaml:"interval"`          // polling period
	LockTimeout       time.Duration   `yaml:"locktimeout"`       // bounded wait for a channel lock
	ReconnectInterval time.Duration   `yaml:"reconnectinterval"` // delay between connect attempts
	ReadPolicy        string          `yaml:"readpolicy"`        // partial or full
	ProcessName       string          `yaml:"processname"`       // simulator executable, probed while disconnected
	Telemetry         ChannelSettings `yaml:"telemetry"`
	Scoring           ChannelSettings `yaml:"scoring"`
}

// SharedMemorySettings selects the OS backend for named regions and locks
type SharedMemorySettings struct {
	Backend string `yaml:"backend"` // auto, windows or posix
	Dir     string `yaml:"dir"`     // region directory for the posix backend
}

// MQTTSettings contains settings for the MQTT transport
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // tcp://host:1883
	ClientID string `yaml:"clientid"`
	Topic    string `yaml:"topic"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Retain   bool   `yaml:"retain"`
	QoS      int    `yaml:"qos"`
}

// WebServerSettings contains settings for the websocket hub and REST endpoints
type WebServerSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"` // host:port
}

// MetricsSettings contains settings for the Prometheus endpoint. An empty
// Listen mounts /metrics on the web server instead of a dedicated listener.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// SentrySettings contains settings for optional error reporting
type SentrySettings struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// Settings contains all configuration options for rf2bridge
type Settings struct {
	Debug        bool                 `yaml:"debug"`
	Bridge       BridgeSettings       `yaml:"bridge"`
	SharedMemory SharedMemorySettings `yaml:"sharedmemory"`
	MQTT         MQTTSettings         `yaml:"mqtt"`
	WebServer    WebServerSettings    `yaml:"webserver"`
	Metrics      MetricsSettings      `yaml:"metrics"`
	Sentry       SentrySettings       `yaml:"sentry"`
	Logging      logger.LoggingConfig `yaml:"logging"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, environment variables and bound flags
// from the global viper instance. An explicit configFile overrides the
// search paths; an empty one searches them and writes a default on first run.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings, err := load(viper.GetViper(), configFile)
	if err != nil {
		return nil, err
	}
	settingsInstance = settings
	return settings, nil
}

func load(v *viper.Viper, configFile string) (*Settings, error) {
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := configureEnvironmentVariables(v); err != nil {
		GetLogger().Warn("Environment configuration issues", logger.Error(err))
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}
	return settings, nil
}

// initViper registers defaults and reads the configuration file
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.New(fmt.Errorf("error reading config file %s: %w", configFile, err)).
				Category(errors.CategoryFileIO).
				Context("operation", "read-config").
				Build()
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(v, configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded config.yaml into dir and reads it back
func createDefaultConfig(v *viper.Viper, dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("Created default config file", logger.String("path", configPath))
	return v.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// GetSettings returns the settings loaded by the last successful Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// RedactedYAML renders settings as YAML with credentials masked
func RedactedYAML(settings *Settings) ([]byte, error) {
	c := *settings
	if c.MQTT.Password != "" {
		c.MQTT.Password = redactedValue
	}
	if c.Sentry.DSN != "" {
		c.Sentry.DSN = redactedValue
	}
	return yaml.Marshal(&c)
}

const redactedValue = "[REDACTED]"

// SaveYAMLConfig writes settings to configPath atomically.
// It overwrites the existing file, not preserving comments or structure.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
