// Package materialize converts a whole raw property bag into a typed record
// using the coercion engine per column, applying per-call options (ignored
// properties, alternate match columns for reference resolution).
package materialize

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/upsync-io/upsync/internal/coerce"
	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/remote"
	"github.com/upsync-io/upsync/internal/schema"
)

// idProperty is the property name treated as the primary identifier rather
// than a column.
const idProperty = "Id"

// legacyPseudoColumns are property names without descriptors that are
// tolerated and skipped for backward compatibility with older export
// formats. Everything else unresolvable is a hard error.
var legacyPseudoColumns = map[string]bool{
	"EntityName":                true,
	"ReturnProperty_EntityName": true,
	"ReturnProperty_Id":         true,
}

// Options are per-call conversion options.
type Options struct {
	// Ignore lists property names to skip entirely (caller-supplied
	// structural fields).
	Ignore []string

	// MatchBy overrides, per column, which target column a bare reference
	// string is matched against.
	MatchBy map[string]string

	// Offline skips remote resolution probes; used by dry-run validation.
	Offline bool
}

// Materializer converts raw records to typed records for one Oracle/Store
// pair. Stateless and safe for reuse across records.
type Materializer struct {
	oracle schema.Oracle
	store  remote.Store
}

// New creates a Materializer. store may be nil for offline use.
func New(oracle schema.Oracle, store remote.Store) *Materializer {
	return &Materializer{oracle: oracle, store: store}
}

// Materialize converts raw into a typed record of the given entity.
//
// Every property is visited in input order: the id property fills the
// record's identifier slot, ignored and legacy pseudo properties are
// skipped, everything else must resolve to a column descriptor and pass its
// kind's coercion. Empty input (nil or whitespace string) means the column
// is omitted from the write - except Text/Memo, where the empty string is a
// stored value.
//
// A property resolving to the entity's primary identifier column also fills
// the identifier slot, keeping both in sync.
func (m *Materializer) Materialize(ctx context.Context, raw *record.RawRecord, entity string, opts Options) (*record.TypedRecord, error) {
	ent, err := m.oracle.Entity(ctx, entity)
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", entity, err)
	}

	ignore := make(map[string]bool, len(opts.Ignore))
	for _, name := range opts.Ignore {
		ignore[name] = true
	}

	rec := record.NewTyped(entity)
	for _, prop := range raw.Properties() {
		if prop.Name == idProperty {
			id, err := parseID(entity, prop.Value)
			if err != nil {
				return nil, err
			}
			rec.ID = &id
			continue
		}
		if ignore[prop.Name] || legacyPseudoColumns[prop.Name] {
			continue
		}

		col, err := m.oracle.Column(ctx, entity, prop.Name)
		if err != nil {
			return nil, record.NewCoerceError(record.CodeUnknownColumn, entity, prop.Name, "",
				"no column descriptor: %v", err)
		}

		// Nil input is an omission regardless of kind; an empty string is
		// kept only for Text and Memo columns.
		if prop.Value == nil {
			continue
		}
		if coerce.IsEmpty(prop.Value) && col.Kind != record.KindText && col.Kind != record.KindMemo {
			continue
		}

		coercer, err := coerce.For(col.Kind)
		if err != nil {
			return nil, record.NewCoerceError(record.CodeKindUnsupported, entity, prop.Name, col.Kind, "%v", err)
		}

		env := coerce.Env{
			Oracle:      m.oracle,
			Store:       m.store,
			Entity:      ent,
			Column:      col,
			MatchColumn: opts.MatchBy[prop.Name],
			Offline:     opts.Offline,
			Materialize: m.nested(opts),
		}
		v, err := coercer.ToStorage(ctx, env, prop.Value)
		if err != nil {
			return nil, err
		}
		rec.Set(col.LogicalName, v)

		if col.IsPrimaryID {
			if idVal, ok := v.(record.ID); ok {
				id := uuid.UUID(idVal)
				rec.ID = &id
			}
		}
	}

	return rec, nil
}

// nested returns the recursion callback party-list coercion uses, carrying
// the same options minus per-column overrides (those are scoped to the
// outer record).
func (m *Materializer) nested(opts Options) func(context.Context, *record.RawRecord, string) (*record.TypedRecord, error) {
	return func(ctx context.Context, raw *record.RawRecord, entity string) (*record.TypedRecord, error) {
		return m.Materialize(ctx, raw, entity, Options{Ignore: opts.Ignore, Offline: opts.Offline})
	}
}

func parseID(entity string, raw any) (uuid.UUID, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return v, nil
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return uuid.Nil, record.NewCoerceError(record.CodeUnparseable, entity, idProperty, record.KindID,
				"malformed identifier %q", v)
		}
		return id, nil
	default:
		return uuid.Nil, record.NewCoerceError(record.CodeUnparseable, entity, idProperty, record.KindID,
			"cannot convert %T to identifier", raw)
	}
}
