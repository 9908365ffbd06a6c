package record

import "github.com/google/uuid"

// TypedRecord is an ordered mapping from column logical name to a coerced,
// storage-ready Value, plus an optional primary identifier. Produced by the
// materializer, consumed by resolution and dispatch; a TypedRecord is never
// reused across calls.
type TypedRecord struct {
	Entity string
	ID     *uuid.UUID

	names []string
	cols  map[string]Value
}

// NewTyped creates an empty TypedRecord for the given entity.
func NewTyped(entity string) *TypedRecord {
	return &TypedRecord{Entity: entity, cols: make(map[string]Value)}
}

// Set adds or replaces a column value, preserving the original position on
// replacement.
func (r *TypedRecord) Set(column string, v Value) {
	if _, ok := r.cols[column]; !ok {
		r.names = append(r.names, column)
	}
	r.cols[column] = v
}

// Get returns the value for a column.
func (r *TypedRecord) Get(column string) (Value, bool) {
	v, ok := r.cols[column]
	return v, ok
}

// Delete removes a column if present.
func (r *TypedRecord) Delete(column string) {
	if _, ok := r.cols[column]; !ok {
		return
	}
	delete(r.cols, column)
	for i, n := range r.names {
		if n == column {
			r.names = append(r.names[:i], r.names[i+1:]...)
			break
		}
	}
}

// Columns returns the column names in insertion order.
func (r *TypedRecord) Columns() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of columns.
func (r *TypedRecord) Len() int {
	return len(r.names)
}

// Clone returns a shallow copy (values are shared, structure is not).
func (r *TypedRecord) Clone() *TypedRecord {
	out := NewTyped(r.Entity)
	if r.ID != nil {
		id := *r.ID
		out.ID = &id
	}
	for _, n := range r.names {
		out.Set(n, r.cols[n])
	}
	return out
}

// Equal reports whether two records carry the same columns with storage-equal
// values, ignoring column order and the ID slot.
func (r *TypedRecord) Equal(other *TypedRecord) bool {
	if other == nil || r.Entity != other.Entity || len(r.names) != len(other.names) {
		return false
	}
	for n, v := range r.cols {
		ov, ok := other.cols[n]
		if !ok || !Equal(v, ov) {
			return false
		}
	}
	return true
}
