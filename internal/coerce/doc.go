// Package coerce converts raw property values to and from the typed storage
// representation a column's declared kind requires.
//
// Each kind has its own Coercer variant behind a uniform interface; adding a
// kind means adding one variant, not growing a monolithic switch. A kind
// without a registered coercer is a hard error - fail fast, never silent
// data loss.
//
// Reference, option and intersect-id resolution issue remote read queries,
// so ToStorage on those kinds is I/O-bound. Callers must tolerate the
// conversion path blocking on round-trips to the store.
package coerce
