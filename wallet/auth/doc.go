// Package auth supplies bearer credentials for calls to the payments service.
//
// A TokenProvider is consulted before every remote call and while validating an
// operation, so a missing or expired credential fails with ErrUnauthenticated
// before the ledger is touched.
package auth
