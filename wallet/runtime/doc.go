// Package runtime provides panic recovery for wallet goroutines.
//
// Every goroutine started by the coordinator, the poller and the remote
// client goes through SafeGoWithContextAndComponent so that a panic in one
// in-flight operation is logged, counted, recorded on the active span and
// reported, without taking the session down.
package runtime
