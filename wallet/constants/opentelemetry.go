package constant

import "unicode/utf8"

// TelemetrySDKName identifies this library in OTEL telemetry resource attributes.
const TelemetrySDKName = "cards/wallet"

// MaxMetricLabelLength is the maximum length for metric labels to prevent cardinality explosion.
// Used by assert, runtime, and circuitbreaker packages for label sanitization.
const MaxMetricLabelLength = 64

// Telemetry attribute key prefixes.
const (
	// AttrPrefixAppRequest is the prefix for application request attributes.
	AttrPrefixAppRequest = "app.request."
	// AttrPrefixAssertion is the prefix for assertion event attributes.
	AttrPrefixAssertion = "assertion."
	// AttrPrefixPanic is the prefix for panic event attributes.
	AttrPrefixPanic = "panic."
)

// Telemetry attribute keys for wallet spans.
const (
	// AttrWalletAccountID identifies the account whose ledger a span touches.
	AttrWalletAccountID = "wallet.account_id"
	// AttrWalletOperationKind is the operation kind (deposit, withdraw, pay, transfer).
	AttrWalletOperationKind = "wallet.operation.kind"
	// AttrWalletOperationID is the provisional id of the operation.
	AttrWalletOperationID = "wallet.operation.id"
	// AttrWalletCurrency is the currency of the operation amount.
	AttrWalletCurrency = "wallet.currency"
	// AttrDBSystem is the OTEL semantic convention attribute key for the database system name.
	AttrDBSystem = "db.system"
	// DBSystemRedis is the OTEL semantic convention value for Redis.
	DBSystemRedis = "redis"
)

// Telemetry metric names.
const (
	// MetricPanicRecoveredTotal is the counter metric for recovered panics.
	MetricPanicRecoveredTotal = "panic_recovered_total"
	// MetricAssertionFailedTotal is the counter metric for failed assertions.
	MetricAssertionFailedTotal = "assertion_failed_total"
	// MetricOperationsSubmittedTotal counts wallet operations accepted for submission.
	MetricOperationsSubmittedTotal = "wallet_operations_submitted_total"
	// MetricOperationsResolvedTotal counts wallet operations that reached a terminal state.
	MetricOperationsResolvedTotal = "wallet_operations_resolved_total"
	// MetricPendingOperations is the gauge of in-flight wallet operations.
	MetricPendingOperations = "wallet_pending_operations"
	// MetricReconcileMatchedTotal counts pending records matched during reconciliation.
	MetricReconcileMatchedTotal = "wallet_reconcile_matched_total"
	// MetricRemoteLatency is the latency histogram of payments service calls.
	MetricRemoteLatency = "wallet_remote_latency"
	// MetricPollsTotal counts background resync polls by outcome.
	MetricPollsTotal = "wallet_polls_total"
)

// Telemetry event names.
const (
	// EventAssertionFailed is the span event name for assertion failures.
	EventAssertionFailed = "assertion.failed"
	// EventPanicRecovered is the span event name for recovered panics.
	EventPanicRecovered = "panic.recovered"
)

// SanitizeMetricLabel truncates a label value to MaxMetricLabelLength
// to prevent metric cardinality explosion in OTEL backends.
func SanitizeMetricLabel(value string) string {
	return TruncateUTF8(value, MaxMetricLabelLength)
}

// TruncateUTF8 returns at most maxBytes bytes of s, cut on a rune boundary.
func TruncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}

	if len(s) <= maxBytes {
		return s
	}

	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
