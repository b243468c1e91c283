package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel string            // default log level for all modules
	Timezone     string            // "Local", "UTC", or IANA timezone name like "Europe/Helsinki"
	Console      *ConsoleOutput    // console output configuration
	FileOutput   *FileOutput       // file output configuration
	ModuleLevels map[string]string // per-module log levels
}

// ConsoleOutput represents console logging configuration.
// Console output uses human-readable text format without timestamps;
// the execution environment (journald, Docker, Windows service host) adds them.
type ConsoleOutput struct {
	Enabled bool   // enable console output
	Level   string // log level for console output
}

// FileOutput represents file logging configuration.
// File output uses JSON format with RFC3339 timestamps for machine parsing.
type FileOutput struct {
	Enabled         bool   // enable file output
	Path            string // log file path
	MaxSize         int    // maximum size in MB before rotation
	MaxAge          int    // maximum age in days to keep rotated logs (0 = no limit)
	MaxRotatedFiles int    // maximum number of rotated log files to keep (0 = no limit)
	Compress        bool   // compress rotated logs with gzip
	Level           string // log level for file output
}

// Default values for logging configuration.
// These match the defaults in conf/defaults.go.
const (
	DefaultLogLevel        = "info"
	DefaultLogPath         = "logs/rf2bridge.log"
	DefaultMaxSize         = 50
	DefaultMaxAge          = 14
	DefaultMaxRotatedFiles = 5
)

// applyConfigDefaults fills nil sections so a config without explicit
// console or file sections still logs to the console.
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}

	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}

	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{
			Enabled: true,
			Level:   cfg.DefaultLevel,
		}
	}

	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{Enabled: false}
	}
	if cfg.FileOutput.Path == "" {
		cfg.FileOutput.Path = DefaultLogPath
	}
	if cfg.FileOutput.MaxSize <= 0 {
		cfg.FileOutput.MaxSize = DefaultMaxSize
	}
	if cfg.FileOutput.Level == "" {
		cfg.FileOutput.Level = cfg.DefaultLevel
	}
}
