// Package ledger holds one account's transaction records and the running
// per-currency totals derived from them.
//
// A Store is safe for concurrent use. Every mutation is serialized by a single
// mutex and reads copy a snapshot, so nothing here waits on the network.
// Balances are derived from record status: CONFIRMED records always count,
// PENDING records count only for the optimistic balance, FAILED records are
// kept for audit and never count.
package ledger
