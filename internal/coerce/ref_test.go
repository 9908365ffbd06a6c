package coerce

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/remote"
	"github.com/upsync-io/upsync/internal/testutil"
)

// namedRecord builds a one-row query result with an id and a name column.
func namedRecord(entity, nameCol, name string, id uuid.UUID) *record.TypedRecord {
	rec := record.NewTyped(entity)
	rec.ID = &id
	rec.Set(nameCol, record.Text(name))
	return rec
}

func refEnv(t *testing.T, store remote.Store) Env {
	t.Helper()
	e := env(t, "account", "Owner")
	e.Store = store
	return e
}

func TestRefCoercerStructuredInput(t *testing.T) {
	id := uuid.New()
	e := refEnv(t, &testutil.FakeStore{})

	v := toStorage(t, e, record.Ref{Entity: "team", ID: id})
	assert.Equal(t, record.Ref{Entity: "team", ID: id}, v)

	v = toStorage(t, e, map[string]any{"entity": "systemuser", "id": id.String()})
	assert.Equal(t, record.Ref{Entity: "systemuser", ID: id}, v)

	// contact is not an eligible target for Owner.
	storageErr(t, e, record.Ref{Entity: "contact", ID: id})
}

func TestRefCoercerCompositeString(t *testing.T) {
	id := uuid.New()
	e := refEnv(t, &testutil.FakeStore{})

	v := toStorage(t, e, "entity=team;id="+id.String())
	assert.Equal(t, record.Ref{Entity: "team", ID: id}, v)

	storageErr(t, e, "entity=team")
	storageErr(t, e, "entity=team;id=not-a-uuid")
	storageErr(t, e, "entity=team;id="+id.String()+";extra=1")
}

func TestRefCoercerBareUUIDNeedsSingleTarget(t *testing.T) {
	id := uuid.New()
	store := &testutil.FakeStore{}

	// ParentAccount has exactly one target: the uuid resolves directly,
	// no probe.
	e := env(t, "account", "ParentAccount")
	e.Store = store
	v := toStorage(t, e, id.String())
	assert.Equal(t, record.Ref{Entity: "account", ID: id}, v)
	assert.Empty(t, store.Queries)

	// Owner has two targets: the uuid string falls through to the name
	// probe and misses.
	e = refEnv(t, store)
	err := storageErr(t, e, id.String())
	assert.True(t, record.IsRefNotFound(err))
	assert.NotEmpty(t, store.Queries)
}

func TestRefCoercerProbesTargetsInOrder(t *testing.T) {
	teamID := uuid.New()
	store := &testutil.FakeStore{
		QueryFn: func(q remote.Query) []*record.TypedRecord {
			if q.Entity == "team" {
				return []*record.TypedRecord{namedRecord("team", "TeamName", "Ops", teamID)}
			}
			return nil
		},
	}

	e := refEnv(t, store)
	v := toStorage(t, e, "Ops")
	assert.Equal(t, record.Ref{Entity: "team", ID: teamID, Name: "Ops"}, v)

	// systemuser is probed before team, per declared target order.
	require.GreaterOrEqual(t, len(store.Queries), 2)
	assert.Equal(t, "systemuser", store.Queries[0].Entity)
	assert.Equal(t, "FullName", store.Queries[0].Conditions[0].Column)
	assert.True(t, store.Queries[0].ActiveOnly)
	assert.Equal(t, "team", store.Queries[1].Entity)
	assert.Equal(t, "TeamName", store.Queries[1].Conditions[0].Column)
}

func TestRefCoercerFallsBackToInactive(t *testing.T) {
	userID := uuid.New()
	store := &testutil.FakeStore{
		QueryFn: func(q remote.Query) []*record.TypedRecord {
			if q.Entity == "systemuser" && !q.ActiveOnly {
				return []*record.TypedRecord{namedRecord("systemuser", "FullName", "Jo Doe", userID)}
			}
			return nil
		},
	}

	e := refEnv(t, store)
	v := toStorage(t, e, "Jo Doe")
	assert.Equal(t, record.Ref{Entity: "systemuser", ID: userID, Name: "Jo Doe"}, v)

	// Every target is exhausted active-first before the unrestricted pass.
	require.Len(t, store.Queries, 3)
	assert.True(t, store.Queries[0].ActiveOnly)
	assert.True(t, store.Queries[1].ActiveOnly)
	assert.False(t, store.Queries[2].ActiveOnly)
}

func TestRefCoercerAmbiguousWithinTarget(t *testing.T) {
	store := &testutil.FakeStore{
		QueryFn: func(q remote.Query) []*record.TypedRecord {
			if q.Entity == "systemuser" {
				return []*record.TypedRecord{
					namedRecord("systemuser", "FullName", "Jo Doe", uuid.New()),
					namedRecord("systemuser", "FullName", "Jo Doe", uuid.New()),
				}
			}
			return nil
		},
	}

	e := refEnv(t, store)
	err := storageErr(t, e, "Jo Doe")
	assert.True(t, record.IsAmbiguousRef(err))
}

func TestRefCoercerNotFoundAnywhere(t *testing.T) {
	e := refEnv(t, &testutil.FakeStore{})
	err := storageErr(t, e, "Nobody")
	assert.True(t, record.IsRefNotFound(err))
}

func TestRefCoercerMatchColumnOverride(t *testing.T) {
	userID := uuid.New()
	store := &testutil.FakeStore{
		QueryFn: func(q remote.Query) []*record.TypedRecord {
			if q.Conditions[0].Column == "FullName" {
				t.Fatal("override ignored: probed the primary name column")
			}
			if q.Entity == "systemuser" {
				return []*record.TypedRecord{namedRecord("systemuser", "DomainName", "jo@corp", userID)}
			}
			return nil
		},
	}

	e := refEnv(t, store)
	e.MatchColumn = "DomainName"
	v := toStorage(t, e, "jo@corp")
	assert.Equal(t, record.Ref{Entity: "systemuser", ID: userID, Name: "jo@corp"}, v)
}

func TestRefCoercerOffline(t *testing.T) {
	e := refEnv(t, nil)
	e.Offline = true

	v := toStorage(t, e, "Ops")
	assert.Equal(t, record.Ref{Name: "Ops"}, v)
}

func TestRefCoercerExternalForm(t *testing.T) {
	id := uuid.New()
	e := refEnv(t, nil)
	c, err := For(record.KindRef)
	require.NoError(t, err)

	out := c.ToExternal(e, record.Ref{Entity: "team", ID: id, Name: "Ops"})
	assert.Equal(t, map[string]any{"entity": "team", "id": id.String(), "name": "Ops"}, out)
}

func TestRefCoercerExternalFormOfflineRef(t *testing.T) {
	e := refEnv(t, nil)
	e.Offline = true
	c, err := For(record.KindRef)
	require.NoError(t, err)

	v := toStorage(t, e, "Ops")
	out := c.ToExternal(e, v)
	assert.Equal(t, map[string]any{"name": "Ops"}, out)
}

func TestIDCoercer(t *testing.T) {
	id := uuid.New()
	e := env(t, "account", "AccountId")
	e.Store = &testutil.FakeStore{}

	v := toStorage(t, e, id.String())
	assert.Equal(t, record.ID(id), v)

	storageErr(t, e, "not-a-uuid")
}

func TestIDCoercerIntersectSideNameProbe(t *testing.T) {
	userID := uuid.New()
	store := &testutil.FakeStore{
		QueryFn: func(q remote.Query) []*record.TypedRecord {
			if q.Entity == "systemuser" {
				return []*record.TypedRecord{namedRecord("systemuser", "FullName", "Jo Doe", userID)}
			}
			return nil
		},
	}

	e := env(t, "teammembership", "SystemUserId")
	e.Store = store

	// A non-uuid string on an intersect side id column resolves through
	// the side entity's primary name.
	v := toStorage(t, e, "Jo Doe")
	assert.Equal(t, record.ID(userID), v)
	require.NotEmpty(t, store.Queries)
	assert.Equal(t, "systemuser", store.Queries[0].Entity)
}

func TestIDCoercerIntersectProbeOfflineFails(t *testing.T) {
	e := env(t, "teammembership", "SystemUserId")
	e.Offline = true

	c, err := For(record.KindID)
	require.NoError(t, err)
	_, err = c.ToStorage(context.Background(), e, "Jo Doe")
	require.Error(t, err)
}
