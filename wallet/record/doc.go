// Package record defines the wallet transaction record, its closed enums and
// the factory for client-side PENDING placeholders.
//
// Functions here are pure: they return modified copies and never touch stored
// state. The ledger package owns every mutation.
package record
