package coerce

import (
	"context"
	"fmt"
	"strings"

	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/remote"
	"github.com/upsync-io/upsync/internal/schema"
)

// Env carries everything one conversion needs: the column and entity being
// converted, the metadata oracle, the remote store for resolution probes,
// and per-call options. Envs are cheap values built per column; nothing in
// them is retained after the call.
type Env struct {
	Oracle schema.Oracle
	Store  remote.Store
	Entity *schema.EntityDescriptor
	Column *schema.ColumnDescriptor

	// MatchColumn overrides the column a bare reference string is matched
	// against (default: the target entity's primary name column).
	MatchColumn string

	// Offline skips remote resolution probes. Bare reference strings
	// come back as name-only refs; used by dry-run validation.
	Offline bool

	// Materialize converts a nested raw record for partylist columns.
	// Injected by the materializer to avoid an import cycle.
	Materialize func(ctx context.Context, raw *record.RawRecord, entity string) (*record.TypedRecord, error)
}

// Coercer converts between raw input and the storage value of one kind.
type Coercer interface {
	// ToStorage converts raw caller input to a storage-ready value.
	// May issue remote queries (references, options on intersect probes).
	ToStorage(ctx context.Context, env Env, raw any) (record.Value, error)

	// ToExternal converts a storage value back to its external form.
	// Lossy for resolved references (returns entity/id/name, not the
	// original match string).
	ToExternal(env Env, v record.Value) any
}

// coercers is the closed registry of kind implementations.
var coercers = map[record.Kind]Coercer{
	record.KindText:       textCoercer{},
	record.KindMemo:       textCoercer{},
	record.KindInteger:    intCoercer{},
	record.KindBigInt:     intCoercer{},
	record.KindDecimal:    decimalCoercer{},
	record.KindDouble:     doubleCoercer{},
	record.KindMoney:      moneyCoercer{},
	record.KindBoolean:    boolCoercer{},
	record.KindDateTime:   dateTimeCoercer{},
	record.KindRef:        refCoercer{},
	record.KindOption:     optionCoercer{},
	record.KindOptionList: optionListCoercer{},
	record.KindID:         idCoercer{},
	record.KindPartyList:  partyCoercer{},
}

// For returns the coercer for a kind. An unhandled kind is a hard error.
func For(kind record.Kind) (Coercer, error) {
	c, ok := coercers[kind]
	if !ok {
		return nil, fmt.Errorf("conversion not implemented for kind %q", kind)
	}
	return c, nil
}

// IsEmpty reports whether raw input counts as absent: nil, or a string of
// only whitespace. Empty input means "omit the column from the write" for
// every kind except Text/Memo, where the empty string is preserved.
func IsEmpty(raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	return ok && strings.TrimSpace(s) == ""
}

// errf builds a CoerceError located at the env's entity/column.
func errf(env Env, code record.CoerceErrorCode, format string, args ...any) *record.CoerceError {
	entity, column := "", ""
	var kind record.Kind
	if env.Entity != nil {
		entity = env.Entity.Name
	}
	if env.Column != nil {
		column = env.Column.LogicalName
		kind = env.Column.Kind
	}
	return record.NewCoerceError(code, entity, column, kind, format, args...)
}

// External converts a whole typed record back to its external property-bag
// form, one column at a time through each kind's coercer.
//
// A local-tagged DateTime value whose record lacks the entity's time-zone
// sibling column is a hard error: without the zone the wall-clock value
// cannot be interpreted, and guessing would corrupt it.
func External(ctx context.Context, oracle schema.Oracle, rec *record.TypedRecord) (map[string]any, error) {
	ent, err := oracle.Entity(ctx, rec.Entity)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, rec.Len()+1)
	if rec.ID != nil {
		out["Id"] = rec.ID.String()
	}

	for _, name := range rec.Columns() {
		v, _ := rec.Get(name)

		if tv, ok := v.(record.Time); ok && tv.LocalTag {
			if _, present := rec.Get(ent.TimeZoneColumn); !present {
				return nil, record.NewCoerceError(record.CodeMissingTimeZone, ent.Name, name, record.KindDateTime,
					"local-time value read back without time-zone column %q", ent.TimeZoneColumn)
			}
		}

		col, ok := ent.Column(name)
		if !ok {
			return nil, record.NewCoerceError(record.CodeUnknownColumn, ent.Name, name, "", "no descriptor for column")
		}

		// Party lists recurse through External so nested records render
		// fully instead of through the coercer's flat fallback.
		if pl, ok := v.(record.PartyList); ok {
			nested := make([]any, len(pl))
			for i, sub := range pl {
				m, err := External(ctx, oracle, sub)
				if err != nil {
					return nil, err
				}
				nested[i] = m
			}
			out[name] = nested
			continue
		}

		c, err := For(col.Kind)
		if err != nil {
			return nil, record.NewCoerceError(record.CodeKindUnsupported, ent.Name, name, col.Kind, "%v", err)
		}
		out[name] = c.ToExternal(Env{Oracle: oracle, Entity: ent, Column: col}, v)
	}
	return out, nil
}
