// Package log defines the logging interface used across the wallet engine and
// its typed logging fields.
//
// Adapters (such as the zap package) implement Logger so the ledger, the
// coordinator and the remote client keep logging calls consistent across
// backends. Components default to NewNop when no logger is supplied.
package log
