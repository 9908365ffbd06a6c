// Package sequence derives the dependent operations that follow a
// successful primary write: ownership reassignment and state/status
// transitions. Both target the row identity captured from the primary
// write's outcome and are queued through the same batch dispatcher under
// the same caller identity.
package sequence

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/remote"
	"github.com/upsync-io/upsync/internal/schema"
)

// Plan holds the secondary values peeled off a primary payload before
// dispatch. The remote store does not accept owner or state columns on the
// primary write; they travel as dedicated follow-up operations instead.
type Plan struct {
	Entity string

	// Owner is the owner reference removed from the payload, if any.
	Owner *record.Ref

	// State/Status are the transition values removed from the payload.
	// When only a status was given, State is derived in FollowUps.
	State  *record.Option
	Status *record.Option
}

// Empty reports whether the plan carries no secondary operations.
func (p *Plan) Empty() bool {
	return p.Owner == nil && p.State == nil && p.Status == nil
}

// Extract removes the entity's owner, state and status columns from the
// payload and returns them as a Plan. The payload is modified in place;
// records on entities without those columns pass through untouched.
func Extract(ent *schema.EntityDescriptor, payload *record.TypedRecord) *Plan {
	plan := &Plan{Entity: payload.Entity}

	if ent.OwnerColumn != "" {
		if v, ok := payload.Get(ent.OwnerColumn); ok {
			if ref, ok := v.(record.Ref); ok {
				plan.Owner = &ref
				payload.Delete(ent.OwnerColumn)
			}
		}
	}
	if ent.StateColumn != "" {
		if v, ok := payload.Get(ent.StateColumn); ok {
			if opt, ok := v.(record.Option); ok {
				plan.State = &opt
				payload.Delete(ent.StateColumn)
			}
		}
	}
	if ent.StatusColumn != "" {
		if v, ok := payload.Get(ent.StatusColumn); ok {
			if opt, ok := v.(record.Option); ok {
				plan.Status = &opt
				payload.Delete(ent.StatusColumn)
			}
		}
	}
	return plan
}

// FollowUps builds the secondary requests for a row whose primary write
// succeeded. Ownership reassignment and the state transition are
// independent; either, both, or neither may be present.
//
// When only a status was supplied, the owning state is derived from the
// status column's option catalogue. A status belonging to no known state
// is a hard error.
func FollowUps(ent *schema.EntityDescriptor, plan *Plan, id uuid.UUID) ([]remote.Request, error) {
	if plan == nil || plan.Empty() {
		return nil, nil
	}
	target := record.Ref{Entity: plan.Entity, ID: id}

	var reqs []remote.Request
	if plan.Owner != nil {
		reqs = append(reqs, remote.Request{
			Op:     remote.OpAssign,
			Target: target,
			Owner:  *plan.Owner,
		})
	}

	if plan.State != nil || plan.Status != nil {
		state := plan.State
		if state == nil {
			derived, err := deriveState(ent, *plan.Status)
			if err != nil {
				return nil, err
			}
			state = &derived
		}
		reqs = append(reqs, remote.Request{
			Op:     remote.OpSetState,
			Target: target,
			State:  state,
			Status: plan.Status,
		})
	}
	return reqs, nil
}

// deriveState looks up which state a status value belongs to in the status
// column's option catalogue.
func deriveState(ent *schema.EntityDescriptor, status record.Option) (record.Option, error) {
	if ent.StatusColumn == "" {
		return 0, fmt.Errorf("entity %s has no status column to derive a state from", ent.Name)
	}
	col, ok := ent.Column(ent.StatusColumn)
	if !ok || col.Options == nil {
		return 0, fmt.Errorf("entity %s status column %q has no option catalogue", ent.Name, ent.StatusColumn)
	}
	state, ok := col.Options.StateOf(int32(status))
	if !ok {
		return 0, fmt.Errorf("status %d on %s belongs to no known state", int32(status), ent.Name)
	}
	return record.Option(state), nil
}
