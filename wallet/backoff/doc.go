// Package backoff provides exponential backoff with full jitter and a small
// retry loop for idempotent payments service reads.
package backoff
