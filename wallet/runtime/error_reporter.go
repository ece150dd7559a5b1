package runtime

import (
	"context"
	"fmt"
	"sync/atomic"

	constant "github.com/jose254W/cards/wallet/constants"
)

// ErrorReporter forwards recovered panics to an external tracker.
// Implementations must be safe for concurrent use and must not panic.
type ErrorReporter interface {
	CaptureException(ctx context.Context, err error, tags map[string]string)
}

type reporterBox struct{ reporter ErrorReporter }

var (
	reporterSlot   atomic.Pointer[reporterBox]
	productionMode atomic.Bool
)

const (
	redactedPanicMsg = "panic recovered (details redacted)"
	maxReportedStack = 4096
)

// SetErrorReporter installs the process-wide reporter. nil disables reporting.
func SetErrorReporter(reporter ErrorReporter) {
	if reporter == nil {
		reporterSlot.Store(nil)
		return
	}

	reporterSlot.Store(&reporterBox{reporter: reporter})
}

// GetErrorReporter returns the installed reporter, or nil.
func GetErrorReporter() ErrorReporter {
	if box := reporterSlot.Load(); box != nil {
		return box.reporter
	}

	return nil
}

// SetProductionMode toggles redaction of panic values and stacks in logs,
// spans and error reports.
func SetProductionMode(enabled bool) { productionMode.Store(enabled) }

// IsProductionMode reports whether redaction is on.
func IsProductionMode() bool { return productionMode.Load() }

func reportPanicToErrorService(ctx context.Context, panicValue any, stack []byte, component, name string) {
	reporter := GetErrorReporter()
	if reporter == nil {
		return
	}

	production := IsProductionMode()

	tags := map[string]string{
		"component":      component,
		"goroutine_name": name,
		"panic_type":     "recovered",
		"module":         "wallet",
	}

	if len(stack) > 0 && !production {
		tags["stack_trace"] = truncateStack(string(stack), maxReportedStack)
	}

	reporter.CaptureException(ctx, toPanicError(panicValue, production), tags)
}

func truncateStack(stack string, limit int) string {
	if len(stack) <= limit {
		return stack
	}

	return constant.TruncateUTF8(stack, limit) + "\n...[truncated]"
}

type panicError struct{ message string }

func (e *panicError) Error() string { return e.message }

func toPanicError(panicValue any, production bool) error {
	if production {
		return &panicError{message: redactedPanicMsg}
	}

	switch v := panicValue.(type) {
	case error:
		return v
	case string:
		return &panicError{message: v}
	default:
		return &panicError{message: "panic: " + formatPanicValue(panicValue)}
	}
}

func formatPanicValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "<nil>"
	case string:
		return v
	case error:
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}
