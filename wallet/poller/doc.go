// Package poller runs a Refresher on a fixed interval, stretching the wait
// after consecutive failures.
package poller
