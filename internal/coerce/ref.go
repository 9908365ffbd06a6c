package coerce

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/remote"
)

// refCoercer handles lookup/owner/customer style reference columns.
//
// Accepted input forms:
//   - a structured reference (record.Ref, or a map with entity/id keys)
//   - a composite string "entity=account;id=<uuid>"
//   - a bare uuid string - resolved directly only when the column has
//     exactly one eligible target (the store enforces referential
//     integrity on write, so the existence probe can be skipped)
//   - any other bare string - matched against the match column of each
//     eligible target, active records first, then unrestricted
type refCoercer struct{}

func (c refCoercer) ToStorage(ctx context.Context, env Env, raw any) (record.Value, error) {
	targets := env.Column.RefTargets
	if len(targets) == 0 {
		return nil, errf(env, record.CodeUnparseable, "reference column declares no targets")
	}

	switch v := raw.(type) {
	case record.Ref:
		return c.validateStructured(env, v)

	case map[string]any:
		ref, err := refFromMap(env, v)
		if err != nil {
			return nil, err
		}
		return c.validateStructured(env, ref)

	case string:
		s := strings.TrimSpace(v)
		if strings.Contains(s, "=") {
			ref, err := refFromComposite(env, s)
			if err != nil {
				return nil, err
			}
			return c.validateStructured(env, ref)
		}
		if id, err := uuid.Parse(s); err == nil && len(targets) == 1 {
			// Fast path: a well-formed id with an unambiguous target.
			return record.Ref{Entity: targets[0], ID: id}, nil
		}
		return c.probe(ctx, env, s)

	default:
		return nil, errf(env, record.CodeUnparseable, "cannot convert %T to reference", raw)
	}
}

func (refCoercer) ToExternal(_ Env, v record.Value) any {
	ref := v.(record.Ref)
	out := map[string]any{}
	if ref.Entity != "" {
		out["entity"] = ref.Entity
	}
	// Offline references carry only a name; a zero id is noise, not data.
	if ref.ID != uuid.Nil {
		out["id"] = ref.ID.String()
	}
	if ref.Name != "" {
		out["name"] = ref.Name
	}
	return out
}

// validateStructured checks a caller-supplied reference against the
// column's eligible targets. A missing entity is filled in when the column
// has exactly one target.
func (refCoercer) validateStructured(env Env, ref record.Ref) (record.Value, error) {
	targets := env.Column.RefTargets
	if ref.Entity == "" {
		if len(targets) != 1 {
			return nil, errf(env, record.CodeUnparseable,
				"reference omits its entity and the column accepts %d targets", len(targets))
		}
		ref.Entity = targets[0]
	}
	for _, t := range targets {
		if t == ref.Entity {
			return ref, nil
		}
	}
	return nil, errf(env, record.CodeUnparseable,
		"entity %q is not an eligible target (%s)", ref.Entity, strings.Join(targets, ", "))
}

// refFromMap parses the structured map form {entity: ..., id: ..., name: ...}.
func refFromMap(env Env, m map[string]any) (record.Ref, error) {
	var ref record.Ref
	if e, ok := m["entity"].(string); ok {
		ref.Entity = e
	}
	if n, ok := m["name"].(string); ok {
		ref.Name = n
	}
	idRaw, ok := m["id"]
	if !ok {
		return ref, errf(env, record.CodeUnparseable, "structured reference is missing an id")
	}
	idText, ok := idRaw.(string)
	if !ok {
		return ref, errf(env, record.CodeUnparseable, "structured reference id must be a string, got %T", idRaw)
	}
	id, err := uuid.Parse(idText)
	if err != nil {
		return ref, errf(env, record.CodeUnparseable, "malformed reference id %q", idText)
	}
	ref.ID = id
	return ref, nil
}

// refFromComposite parses the "key=value;key=value" form. Recognized keys
// are entity (alias type) and id; unknown keys are rejected.
func refFromComposite(env Env, s string) (record.Ref, error) {
	var ref record.Ref
	for _, pair := range strings.Split(s, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return ref, errf(env, record.CodeUnparseable, "malformed composite reference segment %q", pair)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		switch key {
		case "entity", "type":
			ref.Entity = value
		case "id":
			id, err := uuid.Parse(value)
			if err != nil {
				return ref, errf(env, record.CodeUnparseable, "malformed reference id %q", value)
			}
			ref.ID = id
		default:
			return ref, errf(env, record.CodeUnparseable, "unknown composite reference key %q", key)
		}
	}
	if ref.ID == uuid.Nil {
		return ref, errf(env, record.CodeUnparseable, "composite reference %q is missing an id", s)
	}
	return ref, nil
}

// probe resolves a bare identifying string against each eligible target's
// match column: first restricted to active records, then unrestricted if no
// active match was found anywhere. More than one match within a single
// target is a hard error; zero matches across all targets is a hard error.
func (refCoercer) probe(ctx context.Context, env Env, name string) (record.Value, error) {
	if env.Offline {
		// Dry-run: report the unresolved name without touching the store.
		return record.Ref{Name: name}, nil
	}
	if env.Store == nil {
		return nil, errf(env, record.CodeRefNotFound, "no store available to resolve %q", name)
	}

	for _, activeOnly := range []bool{true, false} {
		for _, target := range env.Column.RefTargets {
			matchCol, err := matchColumn(ctx, env, target)
			if err != nil {
				return nil, err
			}
			recs, err := env.Store.Query(ctx, remote.Query{
				Entity: target,
				Conditions: []remote.Condition{
					{Column: matchCol, Op: remote.CondEq, Value: record.Text(name)},
				},
				Columns:    []string{matchCol},
				Limit:      2,
				ActiveOnly: activeOnly,
			})
			if err != nil {
				return nil, fmt.Errorf("probing %s.%s for %q: %w", target, matchCol, name, err)
			}
			switch len(recs) {
			case 0:
				continue
			case 1:
				if !activeOnly {
					// An inactive record satisfied a lookup meant for
					// active ones. Kept for compatibility, surfaced so
					// it is diagnosable.
					slog.Warn("reference resolved to an inactive record",
						"entity", target, "column", matchCol, "value", name)
				}
				return record.Ref{Entity: target, ID: *recs[0].ID, Name: name}, nil
			default:
				return nil, errf(env, record.CodeAmbiguousRef,
					"%q matches more than one %s record by %s", name, target, matchCol)
			}
		}
	}

	return nil, errf(env, record.CodeRefNotFound,
		"%q matches no record in any eligible target (%s)", name, strings.Join(env.Column.RefTargets, ", "))
}

// matchColumn resolves the column a bare string is matched against for one
// target entity: the caller's per-column override, else the target's
// primary name column.
func matchColumn(ctx context.Context, env Env, target string) (string, error) {
	if env.MatchColumn != "" {
		return env.MatchColumn, nil
	}
	ent, err := env.Oracle.Entity(ctx, target)
	if err != nil {
		return "", fmt.Errorf("resolving match column for %s: %w", target, err)
	}
	if ent.PrimaryNameColumn == "" {
		return "", errf(env, record.CodeRefNotFound,
			"target %s has no primary name column and no match column override was given", target)
	}
	return ent.PrimaryNameColumn, nil
}
