// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateBridgeSettings(&settings.Bridge)...)
	ve.Errors = append(ve.Errors, validateSharedMemorySettings(&settings.SharedMemory)...)

	if err := validateMQTTSettings(&settings.MQTT); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateListen("webserver.listen", settings.WebServer.Enabled, settings.WebServer.Listen); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.Metrics.Enabled {
		if settings.Metrics.Listen == "" && !settings.WebServer.Enabled {
			ve.Errors = append(ve.Errors, "metrics.listen is required when the web server is disabled")
		} else if err := validateListen("metrics.listen", settings.Metrics.Listen != "", settings.Metrics.Listen); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateBridgeSettings(s *BridgeSettings) []string {
	var errs []string

	positive := map[string]time.Duration{
		"bridge.interval":          s.Interval,
		"bridge.locktimeout":       s.LockTimeout,
		"bridge.reconnectinterval": s.ReconnectInterval,
	}
	for _, key := range []string{"bridge.interval", "bridge.locktimeout", "bridge.reconnectinterval"} {
		if positive[key] <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got %s", key, positive[key]))
		}
	}

	switch s.ReadPolicy {
	case ReadPolicyPartial, ReadPolicyFull:
	default:
		errs = append(errs, fmt.Sprintf("bridge.readpolicy must be %q or %q, got %q", ReadPolicyPartial, ReadPolicyFull, s.ReadPolicy))
	}

	errs = append(errs, validateChannel("bridge.telemetry", &s.Telemetry)...)
	errs = append(errs, validateChannel("bridge.scoring", &s.Scoring)...)
	return errs
}

func validateChannel(prefix string, ch *ChannelSettings) []string {
	var errs []string
	if strings.TrimSpace(ch.Buffer1) == "" {
		errs = append(errs, prefix+".buffer1 must not be empty")
	}
	if strings.TrimSpace(ch.Buffer2) == "" {
		errs = append(errs, prefix+".buffer2 must not be empty")
	}
	if strings.TrimSpace(ch.Mutex) == "" {
		errs = append(errs, prefix+".mutex must not be empty")
	}
	if ch.Buffer1 != "" && ch.Buffer1 == ch.Buffer2 {
		errs = append(errs, prefix+".buffer1 and buffer2 must differ")
	}
	return errs
}

func validateSharedMemorySettings(s *SharedMemorySettings) []string {
	switch s.Backend {
	case BackendAuto, BackendWindows, BackendPOSIX:
	default:
		return []string{fmt.Sprintf("sharedmemory.backend must be one of auto, windows, posix, got %q", s.Backend)}
	}
	if s.Backend == BackendPOSIX && s.Dir == "" {
		return []string{"sharedmemory.dir is required for the posix backend"}
	}
	return nil
}

func validateMQTTSettings(s *MQTTSettings) error {
	if !s.Enabled {
		return nil
	}
	u, err := url.Parse(s.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("mqtt.broker must be a URL like tcp://host:1883, got %q", s.Broker)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss", "mqtt", "mqtts":
	default:
		return fmt.Errorf("mqtt.broker has unsupported scheme %q", u.Scheme)
	}
	if s.Topic == "" {
		return fmt.Errorf("mqtt.topic must not be empty")
	}
	if s.QoS < 0 || s.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", s.QoS)
	}
	return nil
}

func validateListen(key string, enabled bool, addr string) error {
	if !enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s must be host:port, got %q", key, addr)
	}
	return nil
}
