// Package store provides SQLite-backed storage for the query registry
// and the domain tables compiled queries run against.
//
// The registry (queries table) implements find-or-create semantics:
//   - UNIQUE(fingerprint) makes registration race-safe; concurrent
//     lookups of the same query converge on one row
//   - re-access bumps access_count and accessed_at but never updated_at,
//     so update time describes the query, not its traffic
//   - every row carries a UUIDv7 permalink token for sharing
//   - Cleanup removes rows nobody came back to (1h) and rows idle for a
//     day, so the registry stays bounded without explicit expiry
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Fingerprints are computed in internal/qval using canonical JSON and
// SHA-256 with domain separation.
package store
