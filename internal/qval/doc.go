// Package qval defines the constrained value domain for query parameters
// and its canonical serialization.
//
// Validated query parameters hold only these types: String, Int, Float,
// Bool, Array, Object. The sealed Value interface keeps that closed; there
// is deliberately no null, because normalization drops empty parameters
// rather than recording them.
//
// MarshalCanonical produces a stable, order-independent encoding (sorted
// keys, NFC strings, no HTML escaping) so that equal parameter maps always
// serialize to identical bytes. That encoding is the deduplication key for
// stored queries and the payload behind shareable permalinks; Fingerprint
// condenses it into a fixed-width column for the uniqueness index.
package qval
