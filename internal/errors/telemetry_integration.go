// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
	capture func(*sentry.Event)
}

// NewSentryReporter creates a new Sentry telemetry reporter. sentry.Init must
// already have been called by the caller.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{
		enabled: enabled,
		capture: func(ev *sentry.Event) { sentry.CaptureEvent(ev) },
	}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with privacy protection.
// Only categories that end a session or lose data are forwarded; lock
// timeouts are routine and never reported.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() || !isReportable(ee.Category) {
		return
	}

	message := scrubMessageForPrivacy(fmt.Sprintf("[%s] %s", ee.Category, ee.GetMessage()))
	title := generateErrorTitle(ee)

	event := sentry.NewEvent()
	event.Message = message
	event.Level = getErrorLevel(ee.Category)
	event.Fingerprint = []string{title, ee.GetComponent(), string(ee.Category)}
	event.Tags = map[string]string{
		"error_title": title,
		"component":   ee.GetComponent(),
		"category":    string(ee.Category),
		"error_type":  fmt.Sprintf("%T", ee.Err),
	}
	for key, value := range ee.GetContext() {
		if strValue, ok := value.(string); ok {
			value = scrubMessageForPrivacy(strValue)
		}
		event.Contexts[key] = sentry.Context{"value": value}
	}
	event.Exception = []sentry.Exception{{Type: title, Value: message}}

	sr.capture(event)
	ee.MarkReported()
}

func isReportable(category ErrorCategory) bool {
	switch category {
	case CategoryReadFailure, CategoryLockAbandoned, CategoryDecode,
		CategoryTransport, CategoryMQTTConnection, CategoryMQTTPublish:
		return true
	default:
		return false
	}
}

// generateErrorTitle builds "Component Category[ Operation]" for grouping
func generateErrorTitle(ee *EnhancedError) string {
	parts := []string{titleCase(ee.GetComponent()), formatCategoryForTitle(ee.Category)}
	if op, ok := ee.GetContext()["operation"].(string); ok && op != "" {
		parts = append(parts, titleCase(strings.ReplaceAll(op, "_", " ")))
	}
	return strings.Join(parts, " ")
}

func formatCategoryForTitle(category ErrorCategory) string {
	words := strings.Split(string(category), "-")
	for i, w := range words {
		words[i] = titleCase(w)
	}
	return strings.Join(words, " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// getErrorLevel returns appropriate Sentry level based on category
func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryReadFailure, CategoryLockAbandoned, CategoryDecode:
		return sentry.LevelError
	case CategoryTransport, CategoryMQTTConnection, CategoryMQTTPublish, CategoryNetwork:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var (
	globalTelemetryReporter TelemetryReporter
	reporterMu              sync.RWMutex
)

// SetTelemetryReporter sets the global telemetry reporter; nil disables reporting
func SetTelemetryReporter(reporter TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	globalTelemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return globalTelemetryReporter
}

func reportToTelemetry(ee *EnhancedError) {
	if reporter := GetTelemetryReporter(); reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

var (
	urlQueryRegex = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	credsRegex    = regexp.MustCompile(`(tcp|ssl|ws|wss|mqtt)://[^:@/\s]+:[^@/\s]+@`)
	secretRegex   = regexp.MustCompile(`(?i)(password|token|dsn)[=:]\S+`)
)

// scrubMessageForPrivacy removes credentials and query strings from messages
func scrubMessageForPrivacy(message string) string {
	scrubbed := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	scrubbed = credsRegex.ReplaceAllString(scrubbed, "$1://[REDACTED]@")
	return secretRegex.ReplaceAllString(scrubbed, "$1=[REDACTED]")
}
