package runtime

import (
	"context"
	"runtime/debug"

	"github.com/jose254W/cards/wallet/log"
)

// Logger is the subset of log.Logger used for panic reports.
type Logger interface {
	Log(ctx context.Context, level log.Level, msg string, fields ...log.Field)
}

const maxLoggedStack = 8192

// RecoverAndLog recovers a panic and logs it. It records no metrics or spans;
// use RecoverAndLogWithContext where a context is available.
func RecoverAndLog(logger Logger, name string) {
	if recovered := recover(); recovered != nil {
		logPanic(context.Background(), logger, name, recovered, debug.Stack())
	}
}

// RecoverAndLogWithContext recovers a panic, logs it and records it to
// metrics, the active span and the configured ErrorReporter.
//
//	defer runtime.RecoverAndLogWithContext(ctx, logger, "wallet", "submit_deposit")
func RecoverAndLogWithContext(ctx context.Context, logger Logger, component, name string) {
	if recovered := recover(); recovered != nil {
		handle(ctx, logger, recovered, debug.Stack(), component, name)
	}
}

// RecoverWithPolicyAndContext is RecoverAndLogWithContext that re-panics
// under CrashProcess.
func RecoverWithPolicyAndContext(ctx context.Context, logger Logger, component, name string, policy PanicPolicy) {
	if recovered := recover(); recovered != nil {
		handle(ctx, logger, recovered, debug.Stack(), component, name)

		if policy == CrashProcess {
			panic(recovered)
		}
	}
}

// HandlePanicValue runs the observability pipeline for a panic that some other
// mechanism already recovered, such as fiber's recover middleware.
func HandlePanicValue(ctx context.Context, logger Logger, panicValue any, component, name string) {
	if panicValue == nil {
		return
	}

	handle(ctx, logger, panicValue, debug.Stack(), component, name)
}

func handle(ctx context.Context, logger Logger, panicValue any, stack []byte, component, name string) {
	if ctx == nil {
		ctx = context.Background()
	}

	logPanic(ctx, logger, name, panicValue, stack)
	recordPanicMetric(ctx, component, name)
	RecordPanicToSpanWithComponent(ctx, panicValue, stack, component, name)
	reportPanicToErrorService(ctx, panicValue, stack, component, name)
}

func logPanic(ctx context.Context, logger Logger, name string, panicValue any, stack []byte) {
	if logger == nil {
		return
	}

	fields := []log.Field{
		log.String("source", name),
		log.String("panic_value", formatPanicValue(panicValue)),
	}

	if !IsProductionMode() {
		fields = append(fields, log.String("stack_trace", truncateStack(string(stack), maxLoggedStack)))
	}

	logger.Log(ctx, log.LevelError, "panic recovered", fields...)
}
