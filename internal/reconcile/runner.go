// Package reconcile wires the pipeline end to end: materialize one raw
// record, resolve it against the store, dispatch the primary write through
// the batch dispatcher, and issue the dependent owner/state follow-ups once
// the primary outcome is known.
//
// Processing is single-threaded and synchronous per input record: one
// record is fully materialized, resolved and enqueued before the next is
// read. The only suspension points are the remote round-trips issued by
// coercion, resolution, and batch flushes.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/upsync-io/upsync/internal/dispatch"
	"github.com/upsync-io/upsync/internal/materialize"
	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/remote"
	"github.com/upsync-io/upsync/internal/resolve"
	"github.com/upsync-io/upsync/internal/schema"
	"github.com/upsync-io/upsync/internal/sequence"
)

// Task is one input record plus the caller's intent for it.
type Task struct {
	Entity   string
	Raw      *record.RawRecord
	Mode     resolve.Mode
	Criteria resolve.Criteria
	Ignore   []string
	MatchBy  map[string]string

	// Caller is the identity the writes execute under; it partitions
	// batches. Empty means the ambient/default identity.
	Caller remote.Caller
}

// Runner executes tasks against one Oracle/Store pair.
type Runner struct {
	oracle     schema.Oracle
	store      remote.Store
	mat        *materialize.Materializer
	strategist *resolve.Strategist
	dispatcher *dispatch.Dispatcher
}

// NewRunner creates a Runner. batchSize 1 disables batching (every
// operation dispatches synchronously).
func NewRunner(oracle schema.Oracle, store remote.Store, batchSize int) *Runner {
	return &Runner{
		oracle:     oracle,
		store:      store,
		mat:        materialize.New(oracle, store),
		strategist: resolve.New(oracle, store),
		dispatcher: dispatch.New(store, batchSize),
	}
}

// pending correlates a dispatched operation back to its originating record.
type pending struct {
	outcome *Outcome
	ent     *schema.EntityDescriptor
	plan    *sequence.Plan
	caller  remote.Caller
}

// Run processes every task in order, keeps flowing past per-record errors,
// and returns the per-record outcomes with a final summary.
//
// Structural misconfiguration (an unsupported mode combination on any task)
// aborts immediately, before any record is processed. A transport failure
// of a batch flush also aborts: its per-item outcomes are unknowable.
func (r *Runner) Run(ctx context.Context, tasks []Task) ([]*Outcome, Summary, error) {
	for i, t := range tasks {
		if err := resolve.Validate(t.Mode, t.Criteria); err != nil {
			return nil, Summary{}, fmt.Errorf("task %d: %w", i, err)
		}
	}

	outcomes := make([]*Outcome, 0, len(tasks))
	for i, t := range tasks {
		outcome := &Outcome{Index: i, Entity: t.Entity, Action: ActionPending}
		outcomes = append(outcomes, outcome)
		if err := r.process(ctx, t, outcome); err != nil {
			return outcomes, summarize(outcomes), err
		}
	}

	// Final drain runs in waves: routing a primary completion may enqueue
	// follow-ups, so keep flushing until nothing new surfaces. Only then is
	// the dispatcher safe to close.
	for {
		completed, err := r.dispatcher.Flush(ctx)
		if err != nil {
			return outcomes, summarize(outcomes), err
		}
		if len(completed) == 0 {
			break
		}
		if err := r.drain(ctx, completed); err != nil {
			return outcomes, summarize(outcomes), err
		}
	}
	if _, err := r.dispatcher.Close(ctx); err != nil {
		return outcomes, summarize(outcomes), err
	}

	return outcomes, summarize(outcomes), nil
}

// process materializes, resolves, and enqueues one task. Per-record
// failures land in the outcome; only infrastructure failures return an
// error.
func (r *Runner) process(ctx context.Context, t Task, outcome *Outcome) error {
	rec, err := r.mat.Materialize(ctx, t.Raw, t.Entity, materialize.Options{
		Ignore:  t.Ignore,
		MatchBy: t.MatchBy,
	})
	if err != nil {
		r.fail(outcome, err)
		return nil
	}

	decision, err := r.strategist.Resolve(ctx, rec, t.Mode, t.Criteria)
	if err != nil {
		r.fail(outcome, err)
		return nil
	}

	ent, err := r.oracle.Entity(ctx, t.Entity)
	if err != nil {
		r.fail(outcome, err)
		return nil
	}

	var plan *sequence.Plan
	if decision.Payload != nil {
		plan = sequence.Extract(ent, decision.Payload)
	}
	p := &pending{outcome: outcome, ent: ent, plan: plan, caller: t.Caller}

	switch decision.Action {
	case resolve.ActionCreate:
		if ent.IsIntersect {
			return r.enqueueAssociate(ctx, p, ent, decision.Payload)
		}
		return r.enqueuePrimary(ctx, p, remote.Request{Op: remote.OpCreate, Record: decision.Payload}, dispatch.RecoverNone)

	case resolve.ActionUpdate:
		if decision.Payload.Len() == 0 {
			// Extraction took every remaining column; the primary write
			// degenerates to a no-op with follow-ups.
			outcome.Action = ActionUnchanged
			outcome.ID = deref(decision.ExistingID)
			return r.enqueueFollowUps(ctx, p, outcome.ID)
		}
		return r.enqueuePrimary(ctx, p, remote.Request{Op: remote.OpUpdate, Record: decision.Payload}, dispatch.RecoverNone)

	case resolve.ActionUpsert:
		return r.enqueuePrimary(ctx, p, remote.Request{Op: remote.OpUpsert, Record: decision.Payload}, dispatch.RecoverNone)

	case resolve.ActionNone:
		outcome.Action = ActionUnchanged
		outcome.ID = deref(decision.ExistingID)
		return nil

	case resolve.ActionSkip:
		outcome.Action = ActionSkipped
		if decision.ExistingID != nil {
			// A suppressed branch still permits the dependent operations
			// when an existing row is known.
			outcome.ID = *decision.ExistingID
			return r.enqueueFollowUps(ctx, p, *decision.ExistingID)
		}
		return nil

	default:
		r.fail(outcome, fmt.Errorf("unknown resolution action %q", decision.Action))
		return nil
	}
}

// enqueuePrimary queues the primary write and drains whatever the add
// caused to flush.
func (r *Runner) enqueuePrimary(ctx context.Context, p *pending, req remote.Request, rec dispatch.RecoverableClass) error {
	completed, err := r.dispatcher.Add(ctx, p.caller, dispatch.Item{Req: req, Recover: rec, Tag: p})
	if err != nil {
		return err
	}
	return r.drain(ctx, completed)
}

// enqueueAssociate turns an intersect-entity create into an associate
// operation over both join sides. Duplicate associations are a benign
// skip, not an error.
func (r *Runner) enqueueAssociate(ctx context.Context, p *pending, ent *schema.EntityDescriptor, payload *record.TypedRecord) error {
	sides := [2]record.Ref{}
	for i, side := range ent.IntersectSides {
		v, ok := payload.Get(side.Column)
		if !ok {
			r.fail(p.outcome, fmt.Errorf("intersect column %q missing from payload", side.Column))
			return nil
		}
		id, err := sideID(v)
		if err != nil {
			r.fail(p.outcome, fmt.Errorf("intersect column %q: %w", side.Column, err))
			return nil
		}
		sides[i] = record.Ref{Entity: side.Entity, ID: id}
	}
	req := remote.Request{
		Op:        remote.OpAssociate,
		Intersect: ent.Name,
		Target:    sides[0],
		Related:   sides[1],
	}
	return r.enqueuePrimary(ctx, p, req, dispatch.RecoverDuplicateAssociation)
}

// enqueueFollowUps queues the owner/state follow-ups for a known row
// identity, without a primary write.
func (r *Runner) enqueueFollowUps(ctx context.Context, p *pending, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	reqs, err := sequence.FollowUps(p.ent, p.plan, id)
	if err != nil {
		p.outcome.Errs = append(p.outcome.Errs, err)
		return nil
	}
	for _, req := range reqs {
		completed, err := r.dispatcher.Add(ctx, p.caller, dispatch.Item{Req: req, Tag: p})
		if err != nil {
			return err
		}
		if err := r.drain(ctx, completed); err != nil {
			return err
		}
	}
	return nil
}

// drain routes flushed completions to their outcomes. Routing a primary
// completion may enqueue follow-ups, which may themselves trigger flushes;
// the worklist loops until everything surfaced has been routed.
func (r *Runner) drain(ctx context.Context, completed []dispatch.Completed) error {
	queue := completed
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		more, err := r.route(ctx, c)
		if err != nil {
			return err
		}
		queue = append(queue, more...)
	}
	return nil
}

// route delivers one completion to its record. Per-item faults carry the
// remote fault's full detail chain; they mark the record, never the run.
func (r *Runner) route(ctx context.Context, c dispatch.Completed) ([]dispatch.Completed, error) {
	p, ok := c.Item.Tag.(*pending)
	if !ok {
		return nil, fmt.Errorf("completion with unknown correlation tag %T", c.Item.Tag)
	}

	switch c.Item.Req.Op {
	case remote.OpAssign:
		if c.Result.Err != nil {
			p.outcome.Errs = append(p.outcome.Errs, fmt.Errorf("ownership reassignment: %w", c.Result.Err))
		}
		return nil, nil

	case remote.OpSetState:
		if c.Result.Err != nil {
			p.outcome.Errs = append(p.outcome.Errs, fmt.Errorf("state transition: %w", c.Result.Err))
		}
		return nil, nil
	}

	// Primary write completion.
	if c.Result.Err != nil {
		r.fail(p.outcome, c.Result.Err)
		return nil, nil
	}

	p.outcome.ID = c.Result.ID
	switch {
	case c.Recovered:
		p.outcome.Action = ActionUnchanged
	case c.Item.Req.Op == remote.OpUpdate:
		p.outcome.Action = ActionUpdated
	case c.Item.Req.Op == remote.OpUpsert && !c.Result.Created:
		p.outcome.Action = ActionUpdated
	default:
		p.outcome.Action = ActionCreated
	}

	// Dependent operations fire only now, with the row identity captured
	// from the primary outcome.
	reqs, err := sequence.FollowUps(p.ent, p.plan, c.Result.ID)
	if err != nil {
		p.outcome.Errs = append(p.outcome.Errs, err)
		return nil, nil
	}
	var surfaced []dispatch.Completed
	for _, req := range reqs {
		completed, err := r.dispatcher.Add(ctx, p.caller, dispatch.Item{Req: req, Tag: p})
		if err != nil {
			return nil, err
		}
		surfaced = append(surfaced, completed...)
	}
	return surfaced, nil
}

func (r *Runner) fail(outcome *Outcome, err error) {
	slog.Debug("record failed", "index", outcome.Index, "entity", outcome.Entity, "error", err)
	outcome.Action = ActionFailed
	outcome.Errs = append(outcome.Errs, err)
}

func summarize(outcomes []*Outcome) Summary {
	var s Summary
	for _, o := range outcomes {
		if o.Action == ActionPending {
			// Aborted run: leave unprocessed records out of the buckets.
			continue
		}
		s.Add(o)
	}
	return s
}

func sideID(v record.Value) (uuid.UUID, error) {
	switch val := v.(type) {
	case record.ID:
		return uuid.UUID(val), nil
	case record.Ref:
		return val.ID, nil
	default:
		return uuid.Nil, fmt.Errorf("value %s does not identify a record", record.Format(v))
	}
}

func deref(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
