// Package telemetry reports enhanced errors to Sentry when a DSN is
// configured. Disabled by default.
package telemetry

import (
	"fmt"
	"regexp"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/MadBale/Mewsage-project/internal/conf"
	"github.com/MadBale/Mewsage-project/internal/errors"
	"github.com/MadBale/Mewsage-project/internal/logging"
)

// pathPattern matches filesystem paths so error messages can be scrubbed
// before leaving the host.
var pathPattern = regexp.MustCompile(`(/[\w.\- ]+)+`)

// SentryReporter forwards enhanced errors to Sentry.
type SentryReporter struct {
	enabled bool
}

// IsEnabled reports whether the reporter forwards anything.
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError sends one enhanced error to Sentry with paths scrubbed out
// of the message.
func (sr *SentryReporter) ReportError(ee *errors.EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := fmt.Sprintf("[%s] %s", ee.GetCategory(), ee.Error())
	message = pathPattern.ReplaceAllString(message, "<path>")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", ee.GetCategory())
		sentry.CaptureMessage(message)
	})
}

// Init starts Sentry and installs the global error reporter. With
// telemetry disabled in the settings this is a no-op.
func Init(settings *conf.Settings) error {
	if !settings.Sentry.Enabled || settings.Sentry.DSN == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		AttachStacktrace: false,
		SendDefaultPII:   false,
	})
	if err != nil {
		return errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	errors.SetTelemetryReporter(&SentryReporter{enabled: true})
	logging.ForService("telemetry").Info("sentry telemetry enabled")
	return nil
}

// Flush drains buffered events on shutdown.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}
