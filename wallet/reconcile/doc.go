// Package reconcile merges a freshly fetched server history into the locally
// known record set.
//
// Merge is a pure function. Server records are upserted by id (the server
// wins), local PENDING placeholders are matched against newly seen server
// records by type, direction, money and a timestamp window, and placeholders
// that keep missing are reported as stale. Merging the same batch twice
// yields the same records.
package reconcile
