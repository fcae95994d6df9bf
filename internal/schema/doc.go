// Package schema validates raw query parameters against per-entity
// attribute declarations.
//
// Each attribute carries one of a closed set of type handlers (boolean,
// enum, ranged numerics, dates and date ranges, length-limited strings,
// references, geographic boxes, nested queries). Validation accumulates
// user-facing errors instead of failing: a query built from bad form input
// can be inspected as invalid before anything executes. Only programmer
// errors (structurally wrong host types, missing resolvers) and store
// failures surface as hard errors.
//
// Reference resolution and relative date phrases consult an explicit
// Context; nothing reads ambient global state.
package schema
