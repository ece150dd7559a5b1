// Package remote is the HTTP/JSON client of the payments service. Client
// implements wallet.Remote.
//
// Every call goes through one circuit breaker. History and balance reads are
// retried with jittered exponential backoff; submissions are sent once with
// the provisional id as Idempotency-Key.
package remote
