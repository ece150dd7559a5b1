// Package wallet is the client-side ledger engine of the cards wallet.
//
// A Session owns one ledger per account. Submissions are validated locally,
// appended as PENDING records and sent to the payments service in the
// background; the returned Handle resolves to CONFIRMED or FAILED. Refresh
// merges the server history back into the ledger and cross-checks balances.
//
// Typical usage:
//
//	cfg, err := wallet.LoadConfig()
//	client, err := remote.New(remote.Config{BaseURL: cfg.BaseURL}, remote.WithTokenProvider(tokens))
//	session, err := wallet.NewSession(ctx, cfg, client, wallet.WithTokenProvider(tokens))
//
//	h, err := session.SubmitDeposit(ctx, money.New(50000, money.SmartPay))
//	res, err := h.Wait(ctx)
//
// Request-scoped logging and tracing ride on the context:
//
//	ctx = wallet.ContextWithLogger(ctx, logger)
//	ctx = wallet.ContextWithHeaderID(ctx, requestID)
package wallet
