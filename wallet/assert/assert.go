package assert

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/jose254W/cards/wallet/log"
	"github.com/jose254W/cards/wallet/runtime"
)

// Logger is the subset of log.Logger used for assertion reports.
type Logger interface {
	Log(ctx context.Context, level log.Level, msg string, fields ...log.Field)
}

// ErrAssertionFailed is the sentinel error for failed assertions.
var ErrAssertionFailed = errors.New("assertion failed")

// AssertionError describes a failed assertion.
type AssertionError struct {
	Assertion string
	Message   string
	Component string
	Operation string
	Details   string
}

// Error returns the formatted assertion failure message.
func (e *AssertionError) Error() string {
	if e == nil {
		return ErrAssertionFailed.Error()
	}

	if e.Details == "" {
		return "assertion failed: " + e.Message
	}

	return "assertion failed: " + e.Message + " [" + e.Details + "]"
}

// Unwrap returns ErrAssertionFailed so errors.Is works.
func (e *AssertionError) Unwrap() error {
	return ErrAssertionFailed
}

// Asserter evaluates invariants for one component and operation.
// A nil *Asserter is usable and reports without labels.
type Asserter struct {
	logger    Logger
	component string
	operation string
}

// New creates an Asserter. component and operation label the telemetry.
func New(logger Logger, component, operation string) *Asserter {
	return &Asserter{logger: logger, component: component, operation: operation}
}

// That fails when ok is false. kv are alternating key/value pairs.
func (a *Asserter) That(ctx context.Context, ok bool, msg string, kv ...any) error {
	if ok {
		return nil
	}

	return a.fail(ctx, "That", msg, kv...)
}

// NotNil fails when v is nil, including typed nils inside interfaces.
func (a *Asserter) NotNil(ctx context.Context, v any, msg string, kv ...any) error {
	if !isNil(v) {
		return nil
	}

	return a.fail(ctx, "NotNil", msg, kv...)
}

// NotEmpty fails when s is empty.
func (a *Asserter) NotEmpty(ctx context.Context, s, msg string, kv ...any) error {
	if s != "" {
		return nil
	}

	return a.fail(ctx, "NotEmpty", msg, kv...)
}

// NoError fails when err is non-nil. The error text and type are attached.
func (a *Asserter) NoError(ctx context.Context, err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}

	pairs := append([]any{"error", err.Error(), "error_type", fmt.Sprintf("%T", err)}, kv...)

	return a.fail(ctx, "NoError", msg, pairs...)
}

// Equal fails when the two minor-unit amounts differ.
//
//	asserter.Equal(ctx, running, recomputed, "running total drifted", "currency", cur)
func (a *Asserter) Equal(ctx context.Context, got, want int64, msg string, kv ...any) error {
	if got == want {
		return nil
	}

	pairs := append([]any{"got", got, "want", want}, kv...)

	return a.fail(ctx, "Equal", msg, pairs...)
}

// Never always fails. Use it on paths that must be unreachable.
func (a *Asserter) Never(ctx context.Context, msg string, kv ...any) error {
	return a.fail(ctx, "Never", msg, kv...)
}

func (a *Asserter) fail(ctx context.Context, assertion, msg string, kv ...any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var logger Logger

	component, operation := "", ""
	if a != nil {
		logger, component, operation = a.logger, a.component, a.operation
	}

	details := formatPairs(kv)

	var stack []byte
	if !runtime.IsProductionMode() {
		stack = debug.Stack()
	}

	if logger != nil {
		fields := []log.Field{
			log.String("assertion", assertion),
			log.String("component", component),
			log.String("operation", operation),
		}

		if details != "" {
			fields = append(fields, log.String("details", details))
		}

		if len(stack) > 0 {
			fields = append(fields, log.String("stack_trace", string(stack)))
		}

		logger.Log(ctx, log.LevelError, "ASSERTION FAILED: "+msg, fields...)
	}

	recordAssertionMetric(ctx, component, operation, assertion)
	recordAssertionToSpan(ctx, assertion, msg, stack, component, operation)

	return &AssertionError{
		Assertion: assertion,
		Message:   msg,
		Component: component,
		Operation: operation,
		Details:   details,
	}
}

const maxValueLength = 200

func formatPairs(kv []any) string {
	if len(kv) == 0 {
		return ""
	}

	parts := make([]string, 0, (len(kv)+1)/2)

	for i := 0; i < len(kv); i += 2 {
		var value any = "MISSING_VALUE"
		if i+1 < len(kv) {
			value = kv[i+1]
		}

		text := fmt.Sprintf("%v", value)
		if len(text) > maxValueLength {
			text = text[:maxValueLength] + "...(truncated)"
		}

		parts = append(parts, fmt.Sprintf("%v=%s", kv[i], text))
	}

	return strings.Join(parts, " ")
}

func isNil(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
