// Package remote defines the record-store interface the reconciliation
// pipeline writes against: single-record create/update/delete/upsert, a
// capped query primitive, and a multiplexed execute-batch call with
// mandatory continue-on-error semantics and submission-ordered results.
//
// The SQLite implementation in this package is the reference backend, used
// for local mode and tests. A production deployment substitutes its own
// implementation of Store; nothing above this package knows the difference.
package remote
