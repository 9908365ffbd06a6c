package sequence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upsync-io/upsync/internal/record"
	"github.com/upsync-io/upsync/internal/remote"
	"github.com/upsync-io/upsync/internal/schema"
	"github.com/upsync-io/upsync/internal/testutil"
)

func accountEntity(t *testing.T) *schema.EntityDescriptor {
	t.Helper()
	ent, err := testutil.Schema().Entity(context.Background(), "account")
	require.NoError(t, err)
	return ent
}

func TestExtractPeelsSecondaryColumns(t *testing.T) {
	ent := accountEntity(t)
	ownerID := uuid.New()

	payload := record.NewTyped("account")
	payload.Set("Name", record.Text("Acme"))
	payload.Set("Owner", record.Ref{Entity: "systemuser", ID: ownerID})
	payload.Set("Status", record.Option(1))
	payload.Set("State", record.Option(0))

	plan := Extract(ent, payload)

	// The primary payload no longer carries any of them.
	assert.Equal(t, []string{"Name"}, payload.Columns())

	require.NotNil(t, plan.Owner)
	assert.Equal(t, ownerID, plan.Owner.ID)
	require.NotNil(t, plan.State)
	assert.Equal(t, record.Option(0), *plan.State)
	require.NotNil(t, plan.Status)
	assert.Equal(t, record.Option(1), *plan.Status)
	assert.False(t, plan.Empty())
}

func TestExtractWithoutSecondaryColumns(t *testing.T) {
	ent := accountEntity(t)
	payload := record.NewTyped("account")
	payload.Set("Name", record.Text("Acme"))

	plan := Extract(ent, payload)
	assert.True(t, plan.Empty())
	assert.Equal(t, []string{"Name"}, payload.Columns())

	reqs, err := FollowUps(ent, plan, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestFollowUpsOwnerAndState(t *testing.T) {
	ent := accountEntity(t)
	id := uuid.New()
	owner := record.Ref{Entity: "team", ID: uuid.New()}
	state := record.Option(1)

	reqs, err := FollowUps(ent, &Plan{Entity: "account", Owner: &owner, State: &state}, id)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, remote.OpAssign, reqs[0].Op)
	assert.Equal(t, record.Ref{Entity: "account", ID: id}, reqs[0].Target)
	assert.Equal(t, owner, reqs[0].Owner)

	assert.Equal(t, remote.OpSetState, reqs[1].Op)
	assert.Equal(t, record.Ref{Entity: "account", ID: id}, reqs[1].Target)
	require.NotNil(t, reqs[1].State)
	assert.Equal(t, state, *reqs[1].State)
	assert.Nil(t, reqs[1].Status)
}

func TestFollowUpsDeriveStateFromStatus(t *testing.T) {
	ent := accountEntity(t)
	id := uuid.New()

	// Status "Inactive" (2) belongs to state 1 in the fixture catalogue.
	status := record.Option(2)
	reqs, err := FollowUps(ent, &Plan{Entity: "account", Status: &status}, id)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	req := reqs[0]
	assert.Equal(t, remote.OpSetState, req.Op)
	require.NotNil(t, req.State)
	assert.Equal(t, record.Option(1), *req.State)
	require.NotNil(t, req.Status)
	assert.Equal(t, status, *req.Status)
}

func TestFollowUpsUnknownStatusIsHardError(t *testing.T) {
	ent := accountEntity(t)
	status := record.Option(99)

	_, err := FollowUps(ent, &Plan{Entity: "account", Status: &status}, uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no known state")
}

func TestFollowUpsExplicitStateBeatsDerivation(t *testing.T) {
	ent := accountEntity(t)
	state := record.Option(0)
	status := record.Option(2) // would derive state 1 on its own

	reqs, err := FollowUps(ent, &Plan{Entity: "account", State: &state, Status: &status}, uuid.New())
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, record.Option(0), *reqs[0].State)
}

func TestFollowUpsNilPlan(t *testing.T) {
	reqs, err := FollowUps(accountEntity(t), nil, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, reqs)
}
