package coerce

import (
	"context"

	"github.com/upsync-io/upsync/internal/record"
)

// partyCoercer handles party-list columns: a sequence of nested records,
// each recursively materialized against the column's party entity through
// the materializer callback on the Env.
type partyCoercer struct{}

func (partyCoercer) ToStorage(ctx context.Context, env Env, raw any) (record.Value, error) {
	if env.Materialize == nil {
		return nil, errf(env, record.CodeUnparseable, "party list conversion requires a materializer")
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, errf(env, record.CodeUnparseable, "cannot convert %T to party list", raw)
	}

	list := make(record.PartyList, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, errf(env, record.CodeUnparseable, "party list element %d is %T, want a record", i, item)
		}
		sub, err := env.Materialize(ctx, record.RawFromMap(m), env.Column.PartyEntity)
		if err != nil {
			return nil, err
		}
		list = append(list, sub)
	}
	return list, nil
}

// ToExternal renders a flat per-column view. The record-level External
// conversion special-cases party lists and recurses instead of using this.
func (partyCoercer) ToExternal(_ Env, v record.Value) any {
	list := v.(record.PartyList)
	out := make([]any, len(list))
	for i, sub := range list {
		m := make(map[string]any, sub.Len())
		if sub.ID != nil {
			m["Id"] = sub.ID.String()
		}
		for _, name := range sub.Columns() {
			val, _ := sub.Get(name)
			m[name] = record.Format(val)
		}
		out[i] = m
	}
	return out
}
