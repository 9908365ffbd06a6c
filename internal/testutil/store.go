// Package testutil provides deterministic test doubles: a scripted
// in-memory Store and a ready-made schema fixture shared across package
// tests.
package testutil

import (
	"context"

	"github.com/google/uuid"

	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/remote"
)

// FakeStore is a scriptable remote.Store. Zero value is usable: queries
// match nothing, retrieves miss, and batch items succeed with fresh ids.
// Everything submitted is recorded for assertions.
//
// Not safe for concurrent use; the pipeline under test is single-threaded.
type FakeStore struct {
	// QueryFn scripts Query results. Nil means no matches.
	QueryFn func(q remote.Query) []*record.TypedRecord

	// Existing scripts Retrieve by id.
	Existing map[uuid.UUID]*record.TypedRecord

	// ResultFn scripts per-item batch results. Nil means success.
	ResultFn func(req remote.Request) *remote.Result

	// Recorded calls.
	Queries   []remote.Query
	Retrieves []uuid.UUID
	Batches   [][]remote.Request
	Callers   []remote.Caller
}

var _ remote.Store = (*FakeStore)(nil)

// Requests flattens every batched request in submission order.
func (f *FakeStore) Requests() []remote.Request {
	var out []remote.Request
	for _, b := range f.Batches {
		out = append(out, b...)
	}
	return out
}

func (f *FakeStore) Create(_ context.Context, rec *record.TypedRecord) (uuid.UUID, error) {
	res := f.result(remote.Request{Op: remote.OpCreate, Record: rec})
	if res.Err != nil {
		return uuid.Nil, res.Err
	}
	return res.ID, nil
}

func (f *FakeStore) Update(_ context.Context, rec *record.TypedRecord) error {
	res := f.result(remote.Request{Op: remote.OpUpdate, Record: rec})
	if res.Err != nil {
		return res.Err
	}
	return nil
}

func (f *FakeStore) Upsert(_ context.Context, rec *record.TypedRecord) (uuid.UUID, bool, error) {
	res := f.result(remote.Request{Op: remote.OpUpsert, Record: rec})
	if res.Err != nil {
		return uuid.Nil, false, res.Err
	}
	return res.ID, res.Created, nil
}

func (f *FakeStore) Delete(context.Context, string, uuid.UUID) error {
	return nil
}

func (f *FakeStore) Retrieve(_ context.Context, entity string, id uuid.UUID, _ []string) (*record.TypedRecord, error) {
	f.Retrieves = append(f.Retrieves, id)
	if rec, ok := f.Existing[id]; ok {
		return rec, nil
	}
	return nil, remote.NewFault(remote.FaultNotFound, "record %s not found in %s", id, entity)
}

func (f *FakeStore) Query(_ context.Context, q remote.Query) ([]*record.TypedRecord, error) {
	f.Queries = append(f.Queries, q)
	if f.QueryFn == nil {
		return nil, nil
	}
	return f.QueryFn(q), nil
}

func (f *FakeStore) ExecuteBatch(_ context.Context, caller remote.Caller, reqs []remote.Request) ([]remote.Result, error) {
	batch := make([]remote.Request, len(reqs))
	copy(batch, reqs)
	f.Batches = append(f.Batches, batch)
	f.Callers = append(f.Callers, caller)

	results := make([]remote.Result, len(reqs))
	for i, req := range reqs {
		results[i] = f.result(req)
	}
	return results, nil
}

func (f *FakeStore) result(req remote.Request) remote.Result {
	if f.ResultFn != nil {
		if res := f.ResultFn(req); res != nil {
			return *res
		}
	}
	switch req.Op {
	case remote.OpCreate, remote.OpAssociate:
		return remote.Result{ID: uuid.New(), Created: true}
	case remote.OpUpsert:
		if req.Record.ID != nil {
			return remote.Result{ID: *req.Record.ID, Created: true}
		}
		return remote.Result{ID: uuid.New(), Created: true}
	case remote.OpUpdate:
		if req.Record.ID != nil {
			return remote.Result{ID: *req.Record.ID}
		}
		return remote.Result{}
	default:
		return remote.Result{ID: req.Target.ID}
	}
}
