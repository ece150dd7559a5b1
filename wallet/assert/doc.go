// Package assert checks runtime invariants and reports violations without panicking.
//
// A failed assertion returns an *AssertionError, logs the failure, increments
// assertion_failed_total and records an event on the active span. The ledger
// uses it for the balance and ordering invariants it must never break.
package assert
