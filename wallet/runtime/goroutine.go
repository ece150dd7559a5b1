package runtime

import "context"

// SafeGo runs fn in a goroutine that recovers panics according to policy.
func SafeGo(logger Logger, name string, policy PanicPolicy, fn func()) {
	SafeGoWithContextAndComponent(context.Background(), logger, "", name, policy, func(context.Context) {
		fn()
	})
}

// SafeGoWithContextAndComponent runs fn in a goroutine and passes it ctx.
// A panic is logged, counted under component and name, and recorded on the
// span carried by ctx before policy decides whether to re-panic.
//
//	runtime.SafeGoWithContextAndComponent(ctx, logger, "wallet", "submit_pay", runtime.KeepRunning,
//	    func(ctx context.Context) {
//	        op.run(ctx)
//	    })
func SafeGoWithContextAndComponent(
	ctx context.Context,
	logger Logger,
	component, name string,
	policy PanicPolicy,
	fn func(context.Context),
) {
	if ctx == nil {
		ctx = context.Background()
	}

	go func() {
		defer RecoverWithPolicyAndContext(ctx, logger, component, name, policy)

		fn(ctx)
	}()
}
