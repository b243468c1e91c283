// conf/utils.go various util functions for configuration package
package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/tphakala/rf2bridge/internal/errors"
)

const appName = "rf2bridge"

// GetDefaultConfigPaths returns the configuration search paths for the
// current operating system. When one of them already holds config.yaml only
// that path is returned.
func GetDefaultConfigPaths() ([]string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-executable-path").
			Build()
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		// The plugin and the simulator live on Windows; keep config next to the binary first.
		configPaths = []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", appName),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", appName),
			"/etc/" + appName,
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}
	return configPaths, nil
}

// ResolvedBackend maps "auto" to the backend native to this OS
func (s *SharedMemorySettings) ResolvedBackend() string {
	if s.Backend != BackendAuto && s.Backend != "" {
		return s.Backend
	}
	if runtime.GOOS == "windows" {
		return BackendWindows
	}
	return BackendPOSIX
}
