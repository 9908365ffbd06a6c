// Package resolve decides, for one materialized record, whether a
// counterpart already exists in the remote store and which write action is
// required: create, update, or upsert. It also strips unchanged columns
// from update payloads so the store never sees redundant writes.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/remote"
	"github.com/upsync-io/upsync/internal/schema"
)

// Mode carries the caller's intent flags for one record.
type Mode struct {
	// Upsert delegates resolution to the store's native upsert primitive;
	// no existence lookup is performed.
	Upsert bool

	// CreateOnly assumes no prior record exists and skips lookup.
	CreateOnly bool

	// NoCreate suppresses the create branch when it would be selected.
	NoCreate bool

	// NoUpdate suppresses the update branch when it would be selected.
	NoUpdate bool

	// ReplaceAll, with an explicit identifier, skips the existence read:
	// the caller guarantees a full-column overwrite, so a stub existing
	// record is synthesized instead of fetched.
	ReplaceAll bool
}

// Criteria is an ordered list of fallback column sets. Each set is tried
// in turn as equality predicates; the first set yielding exactly one match
// wins, more than one match is a hard error, zero matches falls through to
// the next set.
type Criteria [][]string

// Validate rejects structurally inconsistent mode combinations up front,
// before any record is processed.
func Validate(mode Mode, criteria Criteria) error {
	var problems []string
	if mode.Upsert && len(criteria) > 0 {
		problems = append(problems, "match criteria cannot be combined with upsert")
	}
	if mode.Upsert && mode.CreateOnly {
		problems = append(problems, "upsert and create-only are mutually exclusive")
	}
	if mode.Upsert && mode.ReplaceAll {
		problems = append(problems, "replace-all has no effect under upsert")
	}
	if mode.CreateOnly && mode.NoCreate {
		problems = append(problems, "create-only and no-create are mutually exclusive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("unsupported mode combination: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Action is the write action a decision selects.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionUpsert Action = "upsert"

	// ActionNone means every column stripped as unchanged - a reported
	// no-op, not an error.
	ActionNone Action = "none"

	// ActionSkip means the selected branch was suppressed by the caller.
	ActionSkip Action = "skip"
)

// Decision is the outcome of resolving one record.
type Decision struct {
	Action Action

	// Payload is the record to write: the full record on the create and
	// upsert branches, the stripped changed-columns record on update.
	Payload *record.TypedRecord

	// ExistingID is the matched counterpart's identity when one is known.
	// Secondary owner/state operations may still target it even when the
	// primary branch was suppressed or stripped to a no-op.
	ExistingID *uuid.UUID
}

// AmbiguousMatchError reports a criteria set or intersect lookup matching
// more than one record. Never silently resolved by taking the first match.
type AmbiguousMatchError struct {
	Entity  string
	Columns []string
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("criteria (%s) match more than one %s record",
		strings.Join(e.Columns, ", "), e.Entity)
}

// IsAmbiguous reports whether err is an ambiguous-match error.
func IsAmbiguous(err error) bool {
	var ae *AmbiguousMatchError
	return errors.As(err, &ae)
}

// Strategist resolves records against one Oracle/Store pair.
type Strategist struct {
	oracle schema.Oracle
	store  remote.Store
}

// New creates a Strategist.
func New(oracle schema.Oracle, store remote.Store) *Strategist {
	return &Strategist{oracle: oracle, store: store}
}

// Resolve runs the decision procedure for one materialized record:
//
//  1. Upsert and create-only modes skip existence lookup entirely.
//  2. Composite/intersect entities resolve by matching both join sides.
//  3. An explicit identifier looks up that exact record (or, under
//     replace-all, synthesizes a stub and skips the read).
//  4. Fallback match criteria are tried in declared order.
//  5. No match at all selects the create branch.
//
// Branch suppression (no-create/no-update) is applied to whichever branch
// was selected.
func (s *Strategist) Resolve(ctx context.Context, rec *record.TypedRecord, mode Mode, criteria Criteria) (Decision, error) {
	ent, err := s.oracle.Entity(ctx, rec.Entity)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve %s: %w", rec.Entity, err)
	}

	if mode.Upsert {
		// A missing or empty identifier is replaced with a locally
		// generated one before dispatch, so the caller learns the final
		// id from the outcome instead of the store picking its own.
		if rec.ID == nil || *rec.ID == uuid.Nil {
			id := uuid.New()
			rec.ID = &id
		}
		return Decision{Action: ActionUpsert, Payload: rec, ExistingID: rec.ID}, nil
	}

	if mode.CreateOnly {
		return s.suppress(Decision{Action: ActionCreate, Payload: rec}, mode), nil
	}

	if ent.IsIntersect {
		return s.resolveIntersect(ctx, ent, rec, mode)
	}

	if rec.ID != nil && *rec.ID != uuid.Nil {
		return s.resolveByID(ctx, ent, rec, mode)
	}

	if len(criteria) > 0 {
		decision, matched, err := s.resolveByCriteria(ctx, ent, rec, mode, criteria)
		if err != nil {
			return Decision{}, err
		}
		if matched {
			return decision, nil
		}
	}

	return s.suppress(Decision{Action: ActionCreate, Payload: rec}, mode), nil
}

// resolveByID handles the explicit-identifier branch.
func (s *Strategist) resolveByID(ctx context.Context, ent *schema.EntityDescriptor, rec *record.TypedRecord, mode Mode) (Decision, error) {
	if mode.ReplaceAll {
		// Caller guarantees full-column overwrite; skip the read and
		// point a stub at the identifier.
		return s.suppress(Decision{Action: ActionUpdate, Payload: rec, ExistingID: rec.ID}, mode), nil
	}

	existing, err := s.store.Retrieve(ctx, rec.Entity, *rec.ID, payloadColumns(rec))
	if err != nil {
		if remote.IsNotFound(err) {
			// Not found with an explicit id: create with that id.
			return s.suppress(Decision{Action: ActionCreate, Payload: rec}, mode), nil
		}
		return Decision{}, fmt.Errorf("lookup %s %s: %w", rec.Entity, rec.ID, err)
	}
	return s.updateDecision(rec, existing, mode), nil
}

// resolveByCriteria tries each fallback column set in declared order.
func (s *Strategist) resolveByCriteria(ctx context.Context, ent *schema.EntityDescriptor, rec *record.TypedRecord, mode Mode, criteria Criteria) (Decision, bool, error) {
	for _, columns := range criteria {
		conditions := make([]remote.Condition, 0, len(columns))
		referencesState := false
		for _, col := range columns {
			v, ok := rec.Get(col)
			if !ok {
				return Decision{}, false, fmt.Errorf(
					"match criteria column %q is not present on the incoming %s record", col, rec.Entity)
			}
			if col == ent.StateColumn || col == ent.StatusColumn {
				referencesState = true
			}
			conditions = append(conditions, remote.Condition{Column: col, Op: remote.CondEq, Value: v})
		}

		matches, err := s.store.Query(ctx, remote.Query{
			Entity:     rec.Entity,
			Conditions: conditions,
			Columns:    payloadColumns(rec),
			Limit:      2,
			ActiveOnly: !referencesState,
		})
		if err != nil {
			return Decision{}, false, fmt.Errorf("match lookup on %s: %w", rec.Entity, err)
		}

		switch len(matches) {
		case 0:
			continue
		case 1:
			return s.updateDecision(rec, matches[0], mode), true, nil
		default:
			return Decision{}, false, &AmbiguousMatchError{Entity: rec.Entity, Columns: columns}
		}
	}
	return Decision{}, false, nil
}

// resolveIntersect resolves existence for composite/intersect entities by
// matching both sides of the relationship. Both identifying columns must be
// present.
func (s *Strategist) resolveIntersect(ctx context.Context, ent *schema.EntityDescriptor, rec *record.TypedRecord, mode Mode) (Decision, error) {
	conditions := make([]remote.Condition, 0, 2)
	for _, side := range ent.IntersectSides {
		v, ok := rec.Get(side.Column)
		if !ok {
			return Decision{}, fmt.Errorf(
				"intersect entity %s requires both identifying columns; %q is missing", ent.Name, side.Column)
		}
		conditions = append(conditions, remote.Condition{Column: side.Column, Op: remote.CondEq, Value: v})
	}

	matches, err := s.store.Query(ctx, remote.Query{
		Entity:     ent.Name,
		Conditions: conditions,
		Limit:      2,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("intersect lookup on %s: %w", ent.Name, err)
	}
	switch len(matches) {
	case 0:
		return s.suppress(Decision{Action: ActionCreate, Payload: rec}, mode), nil
	case 1:
		// An existing association has nothing to update.
		return Decision{Action: ActionNone, ExistingID: matches[0].ID}, nil
	default:
		return Decision{}, &AmbiguousMatchError{
			Entity:  ent.Name,
			Columns: []string{ent.IntersectSides[0].Column, ent.IntersectSides[1].Column},
		}
	}
}

// updateDecision builds the update-branch decision: unchanged columns are
// stripped from the payload; a payload stripped to nothing is a no-op.
func (s *Strategist) updateDecision(rec *record.TypedRecord, existing *record.TypedRecord, mode Mode) Decision {
	payload := StripUnchanged(rec, existing)
	payload.ID = existing.ID
	if payload.Len() == 0 {
		return Decision{Action: ActionNone, ExistingID: existing.ID}
	}
	return s.suppress(Decision{Action: ActionUpdate, Payload: payload, ExistingID: existing.ID}, mode)
}

// suppress applies no-create/no-update to a selected branch. A suppressed
// update keeps its existing identity so dependent operations can still run;
// a suppressed create has no identity to offer.
func (s *Strategist) suppress(d Decision, mode Mode) Decision {
	switch {
	case d.Action == ActionCreate && mode.NoCreate:
		return Decision{Action: ActionSkip}
	case d.Action == ActionUpdate && mode.NoUpdate:
		// Payload is kept: nothing is written, but the owner/state values
		// in it still feed the dependent follow-up operations.
		return Decision{Action: ActionSkip, Payload: d.Payload, ExistingID: d.ExistingID}
	default:
		return d
	}
}

// payloadColumns lists the record's column names, the set an existence read
// must fetch for diffing.
func payloadColumns(rec *record.TypedRecord) []string {
	return rec.Columns()
}
