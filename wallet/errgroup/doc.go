// Package errgroup runs related goroutines, cancels them on the first error
// and converts panics into errors. Session.Refresh uses it to fetch history
// and balance concurrently.
package errgroup
