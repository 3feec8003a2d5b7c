package reconcile

import "time"

// Metrics defines the interface for tracking reconciliation operations.
// All methods are optional - the orchestrator substitutes NoopMetrics
// when nil is configured.
type Metrics interface {
	// RecordEvent records a processed event and its terminal outcome.
	// outcome: "ok", "duplicate", or an error class such as
	// "unlinked_customer", "account_not_found", "invalid_status".
	RecordEvent(eventType, outcome string)

	// RecordEventDuration records how long an event took to process.
	RecordEventDuration(eventType string, duration time.Duration)

	// RecordRoleAction records one dispatched role mutation.
	// status: "success" or "error".
	RecordRoleAction(kind, status string)

	// RecordNotification records one notification delivery attempt.
	// status: "success" or "error".
	RecordNotification(status string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordEvent(_, _ string)                       {}
func (n *NoopMetrics) RecordEventDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordRoleAction(_, _ string)                  {}
func (n *NoopMetrics) RecordNotification(_ string)                   {}
