package remote_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/remote"
	"github.com/upsync-io/upsync/internal/testutil"
)

func openStore(t *testing.T) *remote.SQLite {
	t.Helper()
	s, err := remote.OpenSQLite(filepath.Join(t.TempDir(), "store.db"), testutil.Schema())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func money(t *testing.T, text string) record.Money {
	t.Helper()
	d, err := record.NewDecimal(text)
	require.NoError(t, err)
	return record.Money{Amount: d.D}
}

func TestSQLiteCreateRetrieveRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ownerID := uuid.New()
	contacted := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

	rec := record.NewTyped("account")
	rec.Set("Name", record.Text("Acme"))
	rec.Set("Employees", record.Int(120))
	rec.Set("Revenue", money(t, "1250.50"))
	rec.Set("DoNotEmail", record.Bool(true))
	rec.Set("LastContacted", record.Time{T: contacted})
	rec.Set("Owner", record.Ref{Entity: "systemuser", ID: ownerID})
	rec.Set("Category", record.Option(2))
	rec.Set("Channels", record.OptionList{1, 3})

	id, err := s.Create(ctx, rec)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	got, err := s.Retrieve(ctx, "account", id, nil)
	require.NoError(t, err)
	require.NotNil(t, got.ID)
	assert.Equal(t, id, *got.ID)

	for _, name := range rec.Columns() {
		want, _ := rec.Get(name)
		have, ok := got.Get(name)
		require.True(t, ok, "column %s missing after round trip", name)
		assert.True(t, record.Equal(want, have), "column %s: want %s, have %s",
			name, record.Format(want), record.Format(have))
	}
}

func TestSQLiteRetrieveMissingIsNotFound(t *testing.T) {
	s := openStore(t)

	_, err := s.Retrieve(context.Background(), "account", uuid.New(), nil)
	require.Error(t, err)
	assert.True(t, remote.IsNotFound(err))
}

func TestSQLiteUpdateMissingIsNotFound(t *testing.T) {
	s := openStore(t)
	id := uuid.New()

	rec := record.NewTyped("account")
	rec.ID = &id
	rec.Set("Name", record.Text("Ghost"))

	err := s.Update(context.Background(), rec)
	require.Error(t, err)
	assert.True(t, remote.IsNotFound(err))
}

func TestSQLiteUpsertCreatesThenUpdates(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	rec := record.NewTyped("account")
	rec.Set("Name", record.Text("Acme"))

	id, created, err := s.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.True(t, created)

	renamed := record.NewTyped("account")
	renamed.ID = &id
	renamed.Set("Name", record.Text("Acme Corp"))

	id2, created, err := s.Upsert(ctx, renamed)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, id2)

	got, err := s.Retrieve(ctx, "account", id, []string{"Name"})
	require.NoError(t, err)
	name, _ := got.Get("Name")
	assert.Equal(t, record.Text("Acme Corp"), name)
}

func TestSQLiteQueryActiveFilter(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	active := record.NewTyped("account")
	active.Set("Name", record.Text("Active Co"))
	active.Set("State", record.Option(0))
	activeID, err := s.Create(ctx, active)
	require.NoError(t, err)

	retired := record.NewTyped("account")
	retired.Set("Name", record.Text("Retired Co"))
	retired.Set("State", record.Option(1))
	_, err = s.Create(ctx, retired)
	require.NoError(t, err)

	recs, err := s.Query(ctx, remote.Query{Entity: "account", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, activeID, *recs[0].ID)

	recs, err = s.Query(ctx, remote.Query{Entity: "account"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestSQLiteQueryEqualityCondition(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	for _, name := range []string{"Acme", "Globex"} {
		rec := record.NewTyped("account")
		rec.Set("Name", record.Text(name))
		_, err := s.Create(ctx, rec)
		require.NoError(t, err)
	}

	recs, err := s.Query(ctx, remote.Query{
		Entity:     "account",
		Conditions: []remote.Condition{{Column: "Name", Op: remote.CondEq, Value: record.Text("Globex")}},
	})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	name, _ := recs[0].Get("Name")
	assert.Equal(t, record.Text("Globex"), name)
}

func TestSQLiteBatchContinueOnError(t *testing.T) {
	s := openStore(t)
	missingID := uuid.New()

	first := record.NewTyped("account")
	first.Set("Name", record.Text("First"))
	missing := record.NewTyped("account")
	missing.ID = &missingID
	missing.Set("Name", record.Text("Missing"))
	last := record.NewTyped("account")
	last.Set("Name", record.Text("Last"))

	results, err := s.ExecuteBatch(context.Background(), "importer", []remote.Request{
		{Op: remote.OpCreate, Record: first},
		{Op: remote.OpUpdate, Record: missing},
		{Op: remote.OpCreate, Record: last},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Nil(t, results[0].Err)
	assert.True(t, results[0].Created)
	require.NotNil(t, results[1].Err)
	assert.True(t, results[1].Err.HasCode(remote.FaultNotFound))
	assert.Nil(t, results[2].Err)
}

func TestSQLiteSetStateAndAssign(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	ownerID := uuid.New()

	rec := record.NewTyped("account")
	rec.Set("Name", record.Text("Acme"))
	id, err := s.Create(ctx, rec)
	require.NoError(t, err)

	state, status := record.Option(1), record.Option(2)
	results, err := s.ExecuteBatch(ctx, "", []remote.Request{
		{Op: remote.OpSetState, Target: record.Ref{Entity: "account", ID: id}, State: &state, Status: &status},
		{Op: remote.OpAssign, Target: record.Ref{Entity: "account", ID: id}, Owner: record.Ref{Entity: "systemuser", ID: ownerID}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Nil(t, results[0].Err)
	assert.Nil(t, results[1].Err)

	got, err := s.Retrieve(ctx, "account", id, []string{"State", "Status", "Owner"})
	require.NoError(t, err)
	haveState, _ := got.Get("State")
	haveStatus, _ := got.Get("Status")
	haveOwner, _ := got.Get("Owner")
	assert.Equal(t, record.Option(1), haveState)
	assert.Equal(t, record.Option(2), haveStatus)
	assert.True(t, record.Equal(record.Ref{Entity: "systemuser", ID: ownerID}, haveOwner))
}

func TestSQLiteAssociateDuplicateFault(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	req := remote.Request{
		Op:        remote.OpAssociate,
		Intersect: "teammembership",
		Target:    record.Ref{Entity: "systemuser", ID: uuid.New()},
		Related:   record.Ref{Entity: "role", ID: uuid.New()},
	}

	results, err := s.ExecuteBatch(ctx, "", []remote.Request{req, req})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Nil(t, results[0].Err)
	assert.True(t, results[0].Created)
	require.NotNil(t, results[1].Err)
	assert.True(t, results[1].Err.HasCode(remote.FaultDuplicateAssociation))
}
