package record

import "sort"

// Property is one untyped name/value pair from caller input.
// Value may be a string, number, bool, nested map, slice, or a Ref-shaped
// marker; the coercion layer decides what each kind accepts.
type Property struct {
	Name  string
	Value any
}

// RawRecord is an ordered, untyped property bag - the loosely-typed input
// form of one logical record. It preserves caller insertion order so
// materialization and error reporting are deterministic. Never mutated
// after it enters the pipeline.
type RawRecord struct {
	props []Property
	index map[string]int
}

// NewRaw creates an empty RawRecord.
func NewRaw() *RawRecord {
	return &RawRecord{index: make(map[string]int)}
}

// RawFromMap builds a RawRecord from a plain map. Keys are added in sorted
// order so records decoded from Go maps materialize deterministically.
func RawFromMap(m map[string]any) *RawRecord {
	r := NewRaw()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.Set(k, m[k])
	}
	return r
}

// Set adds or replaces a property, preserving the original position on
// replacement.
func (r *RawRecord) Set(name string, value any) {
	if i, ok := r.index[name]; ok {
		r.props[i].Value = value
		return
	}
	r.index[name] = len(r.props)
	r.props = append(r.props, Property{Name: name, Value: value})
}

// Get returns the value for a property name.
func (r *RawRecord) Get(name string) (any, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.props[i].Value, true
}

// Properties returns the properties in insertion order.
// The returned slice is shared; callers must not modify it.
func (r *RawRecord) Properties() []Property {
	return r.props
}

// Len returns the number of properties.
func (r *RawRecord) Len() int {
	return len(r.props)
}
