package errors

import (
	"sync"
	"sync/atomic"
)

// TelemetryReporter receives enhanced errors as they are built
type TelemetryReporter interface {
	ReportError(ee *EnhancedError)
	IsEnabled() bool
}

var (
	reporterMu     sync.RWMutex
	reporter       TelemetryReporter
	reportingAlive atomic.Bool
)

// SetTelemetryReporter installs the global reporter. Passing nil disables
// reporting.
func SetTelemetryReporter(r TelemetryReporter) {
	reporterMu.Lock()
	reporter = r
	reporterMu.Unlock()
	reportingAlive.Store(r != nil && r.IsEnabled())
}

func report(ee *EnhancedError) {
	if !reportingAlive.Load() {
		return
	}
	reporterMu.RLock()
	r := reporter
	reporterMu.RUnlock()
	if r == nil || !r.IsEnabled() {
		return
	}
	r.ReportError(ee)
	ee.markReported()
}
