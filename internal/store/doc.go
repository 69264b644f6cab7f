// Package store persists host transaction receipts in SQLite.
//
// Contract state lives in memory on the host; the store only keeps the
// audit trail of what was submitted and how each call ended.
package store
