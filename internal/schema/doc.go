// Package schema describes record types: column descriptors, entity
// descriptors, the Oracle lookup interface the rest of the pipeline consumes,
// and a CUE-backed loader that builds descriptor sets from schema files.
//
// Descriptors are immutable once loaded. The conversion layers hold borrowed
// references for the duration of one call and never mutate them.
package schema
