// Package circuitbreaker wraps sony/gobreaker with a per-service manager.
//
// The remote client runs every payments service call through Manager.Execute
// so that a failing backend fast-fails new operations instead of letting each
// one wait for its own timeout.
package circuitbreaker
