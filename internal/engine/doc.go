// Package engine ties the query system together: catalog-driven
// validation of raw params into definitions, find-or-create registration
// in the store, compiled SQL execution with memoized results, pagination,
// persisted sequence navigation, and coercion between entity types.
//
// The Engine is safe to share; each Lookup/SafeFind returns a Query
// handle carrying the per-request mutable state (result cache, cursor).
package engine
