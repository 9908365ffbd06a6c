package resolve

import "github.com/upsync-io/upsync/internal/record"

// StripUnchanged returns a copy of incoming with every column the existing
// record already holds an equal value for removed.
//
// "Unchanged" mirrors the remote store's own comparison: stored equality,
// OR the incoming value is an empty string while the existing record has no
// value for that column (the store treats null and empty string as
// equivalent, so writing "" over absent would be a redundant write).
//
// Sequence-valued columns compare ORDER-SENSITIVELY: a reordered option
// list is a real change, because the store persists the order.
func StripUnchanged(incoming, existing *record.TypedRecord) *record.TypedRecord {
	out := record.NewTyped(incoming.Entity)
	out.ID = incoming.ID
	for _, name := range incoming.Columns() {
		v, _ := incoming.Get(name)
		ev, present := existing.Get(name)
		if present && record.Equal(v, ev) {
			continue
		}
		if !present && record.IsEmptyText(v) {
			continue
		}
		out.Set(name, v)
	}
	return out
}
