package metrics

import (
	"context"
	"time"

	constant "github.com/jose254W/cards/wallet/constants"
)

// Wallet metrics emitted by the coordinator, the reconciler and the remote client.
var (
	MetricOperationsSubmitted = Metric{
		Name:        constant.MetricOperationsSubmittedTotal,
		Unit:        "1",
		Description: "Wallet operations accepted for submission.",
	}

	MetricOperationsResolved = Metric{
		Name:        constant.MetricOperationsResolvedTotal,
		Unit:        "1",
		Description: "Wallet operations that reached CONFIRMED or FAILED.",
	}

	MetricPendingOperations = Metric{
		Name:        constant.MetricPendingOperations,
		Unit:        "1",
		Description: "Wallet operations currently in flight.",
	}

	MetricReconcileMatched = Metric{
		Name:        constant.MetricReconcileMatchedTotal,
		Unit:        "1",
		Description: "Pending ledger records matched to server records during reconciliation.",
	}

	MetricRemoteLatency = Metric{
		Name:        constant.MetricRemoteLatency,
		Unit:        "ms",
		Description: "Latency of payments service calls.",
	}

	MetricPolls = Metric{
		Name:        constant.MetricPollsTotal,
		Unit:        "1",
		Description: "Background resync polls.",
	}
)

// RecordOperationSubmitted counts one accepted operation of the given kind.
func (f *MetricsFactory) RecordOperationSubmitted(ctx context.Context, kind string) error {
	b, err := f.Counter(MetricOperationsSubmitted)
	if err != nil {
		return err
	}

	return b.WithLabels(map[string]string{"kind": constant.SanitizeMetricLabel(kind)}).AddOne(ctx)
}

// RecordOperationResolved counts one operation that reached a terminal outcome.
func (f *MetricsFactory) RecordOperationResolved(ctx context.Context, kind, outcome string) error {
	b, err := f.Counter(MetricOperationsResolved)
	if err != nil {
		return err
	}

	return b.WithLabels(map[string]string{
		"kind":    constant.SanitizeMetricLabel(kind),
		"outcome": constant.SanitizeMetricLabel(outcome),
	}).AddOne(ctx)
}

// SetPendingOperations records the number of in-flight operations.
func (f *MetricsFactory) SetPendingOperations(ctx context.Context, pending int64) error {
	b, err := f.Gauge(MetricPendingOperations)
	if err != nil {
		return err
	}

	return b.Set(ctx, pending)
}

// RecordReconcileMatched adds the number of pending records a merge matched.
func (f *MetricsFactory) RecordReconcileMatched(ctx context.Context, matched int) error {
	if matched <= 0 {
		return nil
	}

	b, err := f.Counter(MetricReconcileMatched)
	if err != nil {
		return err
	}

	return b.Add(ctx, int64(matched))
}

// RecordRemoteLatency records one payments service call.
func (f *MetricsFactory) RecordRemoteLatency(ctx context.Context, endpoint, outcome string, elapsed time.Duration) error {
	b, err := f.Histogram(MetricRemoteLatency)
	if err != nil {
		return err
	}

	return b.WithLabels(map[string]string{
		"endpoint": constant.SanitizeMetricLabel(endpoint),
		"outcome":  constant.SanitizeMetricLabel(outcome),
	}).Record(ctx, elapsed.Milliseconds())
}

// RecordPoll counts one background resync poll.
func (f *MetricsFactory) RecordPoll(ctx context.Context, outcome string) error {
	b, err := f.Counter(MetricPolls)
	if err != nil {
		return err
	}

	return b.WithLabels(map[string]string{"outcome": constant.SanitizeMetricLabel(outcome)}).AddOne(ctx)
}
