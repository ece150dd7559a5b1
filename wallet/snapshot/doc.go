// Package snapshot persists ledger records between sessions.
//
// RedisPersister stores one JSON document per account under
// wallet:ledger:{accountID}; MemoryPersister keeps them in process.
package snapshot
