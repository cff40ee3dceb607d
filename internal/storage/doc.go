// Package storage is the sqlite repository behind tgmon.
//
// It owns:
//   - Account records (name + credential reference + enabled flag)
//   - Watch records (one watched chat per row, unique per account+ref)
//   - The singleton aggregator configuration
//
// Monitors never touch this package directly; the manager reads a snapshot
// at fleet start and writes back resolved chat identities afterwards.
package storage
