package remote

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/upsync-io/upsync/internal/record"
)

// Caller identifies the acting identity a write executes under. It is the
// batch partition key: requests for different callers never share one
// ExecuteBatch call. The empty Caller is the ambient/default identity.
//
// Identity is threaded explicitly through every call rather than stored as
// shared mutable state, so a failed flush cannot leave a lingering identity
// behind for unrelated operations.
type Caller string

// Op names one write operation kind.
type Op string

const (
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpUpsert    Op = "upsert"
	OpDelete    Op = "delete"
	OpAssign    Op = "assign"
	OpSetState  Op = "setstate"
	OpAssociate Op = "associate"
)

// Request is one write submitted to ExecuteBatch. Which fields are read
// depends on Op:
//
//	create/update/upsert: Record
//	delete:               Target
//	assign:               Target, Owner
//	setstate:             Target, State and/or Status
//	associate:            Intersect, Target, Related
type Request struct {
	Op     Op
	Record *record.TypedRecord

	// Target is the row the operation applies to.
	Target record.Ref

	// Owner is the new owning record for assign.
	Owner record.Ref

	// State/Status are the transition values for setstate. Either may be
	// nil when only the other was supplied.
	State  *record.Option
	Status *record.Option

	// Intersect names the join entity for associate; Target and Related
	// are its two sides.
	Intersect string
	Related   record.Ref
}

// Result is the per-item outcome of one batch request, delivered in exact
// submission order. Exactly one of ID/Err is meaningful: a nil Err means
// success and ID carries the affected row identity.
type Result struct {
	ID      uuid.UUID
	Created bool
	Err     *Fault
}

// CondOp is a query predicate operator.
type CondOp int

const (
	// CondEq matches rows whose column equals Value.
	CondEq CondOp = iota
	// CondIn matches rows whose column equals any of Values.
	CondIn
)

// Condition is one query predicate.
type Condition struct {
	Column string
	Op     CondOp
	Value  record.Value
	Values []record.Value
}

// Query is a capped equality/containment lookup against one entity.
type Query struct {
	Entity     string
	Conditions []Condition

	// Columns restricts the returned columns; empty returns all.
	Columns []string

	// Limit caps the result set. Zero means backend default.
	Limit int

	// ActiveOnly adds the implicit active-state filter when the entity
	// has a state column.
	ActiveOnly bool
}

// Store is the remote record store consumed by the reconciliation pipeline.
//
// ExecuteBatch MUST provide continue-on-error semantics: every request is
// attempted, failures are reported per item, and results arrive in exact
// submission order. The whole-call error return is reserved for transport
// failure of the batch itself.
type Store interface {
	Create(ctx context.Context, rec *record.TypedRecord) (uuid.UUID, error)
	Update(ctx context.Context, rec *record.TypedRecord) error
	Upsert(ctx context.Context, rec *record.TypedRecord) (id uuid.UUID, created bool, err error)
	Delete(ctx context.Context, entity string, id uuid.UUID) error
	Retrieve(ctx context.Context, entity string, id uuid.UUID, columns []string) (*record.TypedRecord, error)
	Query(ctx context.Context, q Query) ([]*record.TypedRecord, error)
	ExecuteBatch(ctx context.Context, caller Caller, reqs []Request) ([]Result, error)
}

// IsNotFound reports whether err carries the NOT_FOUND fault code.
func IsNotFound(err error) bool {
	var f *Fault
	return errors.As(err, &f) && f.HasCode(FaultNotFound)
}
