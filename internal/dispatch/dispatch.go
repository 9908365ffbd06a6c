// Package dispatch accumulates pending write operations per caller
// identity, flushes them as one multiplexed remote call when the size
// threshold is hit or the identity changes, and demultiplexes the per-item
// outcomes back to the submitter in exact submission order.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/upsync-io/upsync/internal/remote"
)

// RecoverableClass names a known class of remote faults that an operation
// may declare benign. Recovery is matched against structured fault codes,
// keeping the logic auditable instead of hidden in per-call closures.
type RecoverableClass int

const (
	// RecoverNone recovers nothing; every fault surfaces.
	RecoverNone RecoverableClass = iota

	// RecoverDuplicateAssociation treats a duplicate-join fault as a
	// benign skip: the association the caller wanted already exists.
	RecoverDuplicateAssociation

	// RecoverAlreadyExists treats a duplicate-record fault on create as a
	// benign skip.
	RecoverAlreadyExists
)

// Matches reports whether the class recovers the given fault.
func (c RecoverableClass) Matches(f *remote.Fault) bool {
	if f == nil {
		return false
	}
	switch c {
	case RecoverDuplicateAssociation:
		return f.HasCode(remote.FaultDuplicateAssociation)
	case RecoverAlreadyExists:
		return f.HasCode(remote.FaultDuplicateRecord)
	default:
		return false
	}
}

// Item is one queued operation: the request, the fault class it may
// recover from, and an opaque correlation tag the submitter uses to route
// the outcome (batching means outcomes arrive later than submission).
type Item struct {
	Req     remote.Request
	Recover RecoverableClass
	Tag     any
}

// Completed pairs a flushed item with its outcome. Recovered marks items
// whose fault matched their recovery class: Result.Err is cleared and the
// item counts as a benign skip, not an error.
type Completed struct {
	Item      Item
	Result    remote.Result
	Recovered bool
}

// state is the dispatcher's batch lifecycle state.
type state int

const (
	stateOpen state = iota // no buffered operations, identity undefined
	stateQueuing
	stateClosed
)

// Dispatcher buffers operations and flushes them through a Store's
// ExecuteBatch. Not safe for concurrent use: processing is single-threaded
// per input record, matching the pipeline's synchronous design.
//
// A threshold of 1 collapses the state machine to direct dispatch: every
// Add flushes immediately. This is the same code path, selected by
// configuration, not a separate implementation.
type Dispatcher struct {
	store     remote.Store
	threshold int

	st       state
	identity remote.Caller
	items    []Item
	flushes  int
}

// New creates a dispatcher with the given flush threshold. Thresholds
// below 1 are treated as 1 (batching disabled).
func New(store remote.Store, threshold int) *Dispatcher {
	if threshold < 1 {
		threshold = 1
	}
	return &Dispatcher{store: store, threshold: threshold}
}

// Add queues one operation under the given caller identity.
//
// An identity different from the open batch's forces a flush of the
// buffered operations first - batches are never mixed-identity. Reaching
// the threshold flushes synchronously before Add returns. The returned
// completions cover whatever flushed during this call (often nothing).
func (d *Dispatcher) Add(ctx context.Context, caller remote.Caller, it Item) ([]Completed, error) {
	if d.st == stateClosed {
		return nil, fmt.Errorf("dispatcher is closed")
	}

	var completed []Completed
	if d.st == stateQueuing && caller != d.identity {
		flushed, err := d.Flush(ctx)
		if err != nil {
			return flushed, err
		}
		completed = flushed
	}

	d.identity = caller
	d.items = append(d.items, it)
	d.st = stateQueuing

	if len(d.items) >= d.threshold {
		flushed, err := d.Flush(ctx)
		if err != nil {
			return append(completed, flushed...), err
		}
		completed = append(completed, flushed...)
	}
	return completed, nil
}

// Flush submits the buffered operations as one multiplexed call and
// demultiplexes the per-item results by submission order. Empty batches
// are a no-op. The store call itself uses continue-on-error semantics, so
// a per-item fault never aborts the remaining items.
func (d *Dispatcher) Flush(ctx context.Context) ([]Completed, error) {
	if len(d.items) == 0 {
		return nil, nil
	}

	items := d.items
	caller := d.identity
	// Clear before the remote call: a failed flush must not leave the
	// batch (or its identity) behind for subsequent operations.
	d.items = nil
	d.identity = ""
	if d.st != stateClosed {
		d.st = stateOpen
	}
	d.flushes++

	reqs := make([]remote.Request, len(items))
	for i, it := range items {
		reqs[i] = it.Req
	}

	slog.Debug("flushing batch", "caller", string(caller), "size", len(reqs))
	results, err := d.store.ExecuteBatch(ctx, caller, reqs)
	if err != nil {
		return nil, fmt.Errorf("batch flush (%d operations): %w", len(reqs), err)
	}
	if len(results) != len(reqs) {
		return nil, fmt.Errorf("batch flush returned %d results for %d operations", len(results), len(reqs))
	}

	completed := make([]Completed, len(items))
	for i, it := range items {
		res := results[i]
		c := Completed{Item: it, Result: res}
		if res.Err != nil && it.Recover.Matches(res.Err) {
			c.Recovered = true
			c.Result.Err = nil
		}
		completed[i] = c
	}
	return completed, nil
}

// Close flushes any open batch and refuses further operations.
func (d *Dispatcher) Close(ctx context.Context) ([]Completed, error) {
	completed, err := d.Flush(ctx)
	d.st = stateClosed
	return completed, err
}

// Flushes returns how many non-empty batches have been submitted.
func (d *Dispatcher) Flushes() int {
	return d.flushes
}

// Pending returns the number of buffered operations.
func (d *Dispatcher) Pending() int {
	return len(d.items)
}
