package coerce

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/remote"
)

// idCoercer handles unique-identifier columns.
//
// On a composite/intersect entity, a bare non-uuid string names a record of
// the column's join side: it is resolved through that side entity's primary
// name column with a remote probe. Everywhere else the input must parse as
// a well-formed identifier.
type idCoercer struct{}

func (c idCoercer) ToStorage(ctx context.Context, env Env, raw any) (record.Value, error) {
	switch v := raw.(type) {
	case uuid.UUID:
		return record.ID(v), nil
	case record.ID:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if id, err := uuid.Parse(s); err == nil {
			return record.ID(id), nil
		}
		if env.Entity != nil && env.Entity.IsIntersect {
			return c.probeIntersectSide(ctx, env, s)
		}
		return nil, errf(env, record.CodeUnparseable, "cannot parse %q as identifier", v)
	default:
		return nil, errf(env, record.CodeUnparseable, "cannot convert %T to identifier", raw)
	}
}

func (idCoercer) ToExternal(_ Env, v record.Value) any {
	return v.(record.ID).String()
}

// probeIntersectSide resolves a name against the join side this column
// identifies. Same active-first/unrestricted-retry discipline as reference
// probes; ambiguity is a hard error.
func (idCoercer) probeIntersectSide(ctx context.Context, env Env, name string) (record.Value, error) {
	var side string
	for _, s := range env.Entity.IntersectSides {
		if s.Column == env.Column.LogicalName {
			side = s.Entity
			break
		}
	}
	if side == "" {
		return nil, errf(env, record.CodeUnparseable,
			"column is not an identifying side of intersect entity %s", env.Entity.Name)
	}

	if env.Offline {
		return nil, errf(env, record.CodeRefNotFound,
			"cannot resolve %q offline: intersect side lookups require the store", name)
	}

	sideEnt, err := env.Oracle.Entity(ctx, side)
	if err != nil {
		return nil, fmt.Errorf("resolving intersect side %s: %w", side, err)
	}
	if sideEnt.PrimaryNameColumn == "" {
		return nil, errf(env, record.CodeRefNotFound, "intersect side %s has no primary name column", side)
	}

	for _, activeOnly := range []bool{true, false} {
		recs, err := env.Store.Query(ctx, remote.Query{
			Entity: side,
			Conditions: []remote.Condition{
				{Column: sideEnt.PrimaryNameColumn, Op: remote.CondEq, Value: record.Text(name)},
			},
			Columns:    []string{sideEnt.PrimaryNameColumn},
			Limit:      2,
			ActiveOnly: activeOnly,
		})
		if err != nil {
			return nil, fmt.Errorf("probing %s for %q: %w", side, name, err)
		}
		switch len(recs) {
		case 0:
			continue
		case 1:
			return record.ID(*recs[0].ID), nil
		default:
			return nil, errf(env, record.CodeAmbiguousRef,
				"%q matches more than one %s record by %s", name, side, sideEnt.PrimaryNameColumn)
		}
	}
	return nil, errf(env, record.CodeRefNotFound, "%q matches no %s record", name, side)
}
