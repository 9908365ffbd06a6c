package schema

import (
	"context"
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upsync-io/upsync/internal/record"
)

func compile(t *testing.T, src string) *Set {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	set, err := FromValue(v)
	require.NoError(t, err)
	return set
}

func compileErr(t *testing.T, src string) error {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	_, err := FromValue(v)
	require.Error(t, err)
	return err
}

const validSchema = `
entities: {
	account: {
		primaryId:   "AccountId"
		primaryName: "Name"
		state:       "State"
		status:      "Status"
		owner:       "Owner"
		columns: {
			AccountId: {kind: "id"}
			Name: {kind: "text"}
			State: {kind: "option", options: [
				{label: "Active", value: 0},
				{label: "Inactive", value: 1},
			]}
			Status: {kind: "option", options: [
				{label: "Active", value: 1, state: 0},
				{label: "Inactive", value: 2, state: 1},
			]}
			Owner: {kind: "ref", targets: ["systemuser"]}
		}
	}
	systemuser: {
		primaryId:   "SystemUserId"
		primaryName: "FullName"
		columns: {
			SystemUserId: {kind: "id"}
			FullName: {kind: "text"}
		}
	}
}
`

func TestFromValueLoadsDescriptors(t *testing.T) {
	set := compile(t, validSchema)
	ctx := context.Background()

	ent, err := set.Entity(ctx, "account")
	require.NoError(t, err)
	assert.Equal(t, "AccountId", ent.PrimaryIDColumn)
	assert.Equal(t, "Name", ent.PrimaryNameColumn)
	assert.Equal(t, "State", ent.StateColumn)
	assert.Equal(t, "Status", ent.StatusColumn)
	assert.Equal(t, "Owner", ent.OwnerColumn)
	assert.True(t, ent.HasState())

	col, err := set.Column(ctx, "account", "Owner")
	require.NoError(t, err)
	assert.Equal(t, record.KindRef, col.Kind)
	assert.Equal(t, []string{"systemuser"}, col.RefTargets)

	id, err := set.Column(ctx, "account", "AccountId")
	require.NoError(t, err)
	assert.True(t, id.IsPrimaryID)

	name, err := set.Column(ctx, "account", "Name")
	require.NoError(t, err)
	assert.True(t, name.IsPrimaryName)
}

func TestFromValueStatusStateAssociation(t *testing.T) {
	set := compile(t, validSchema)

	col, err := set.Column(context.Background(), "account", "Status")
	require.NoError(t, err)
	require.NotNil(t, col.Options)

	state, ok := col.Options.StateOf(2)
	require.True(t, ok)
	assert.Equal(t, int32(1), state)

	// State column options carry no association.
	stateCol, err := set.Column(context.Background(), "account", "State")
	require.NoError(t, err)
	_, ok = stateCol.Options.StateOf(0)
	assert.False(t, ok)
}

func TestOptionCatalogFoldsLabels(t *testing.T) {
	set := compile(t, validSchema)

	col, err := set.Column(context.Background(), "account", "Status")
	require.NoError(t, err)

	v, ok := col.Options.Value("ACTIVE")
	require.True(t, ok)
	assert.Equal(t, int32(1), v)

	v, ok = col.Options.Value("inactive")
	require.True(t, ok)
	assert.Equal(t, int32(2), v)
}

func TestFromValueMissingPrimaryID(t *testing.T) {
	err := compileErr(t, `
entities: {
	account: {
		columns: {Name: {kind: "text"}}
	}
}
`)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Field, "primaryId")
}

func TestFromValueLocalTimeRequiresTimeZone(t *testing.T) {
	err := compileErr(t, `
entities: {
	appointment: {
		primaryId: "AppointmentId"
		localTime: true
		columns: {AppointmentId: {kind: "id"}}
	}
}
`)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Contains(t, loadErr.Field, "timezone")
}

func TestFromValueUnknownRefTarget(t *testing.T) {
	err := compileErr(t, `
entities: {
	account: {
		primaryId: "AccountId"
		columns: {
			AccountId: {kind: "id"}
			Owner: {kind: "ref", targets: ["ghost"]}
		}
	}
}
`)
	assert.Contains(t, err.Error(), "ghost")
}

func TestFromValueUnknownKind(t *testing.T) {
	err := compileErr(t, `
entities: {
	account: {
		primaryId: "AccountId"
		columns: {AccountId: {kind: "id"}, X: {kind: "blob"}}
	}
}
`)
	assert.Contains(t, err.Error(), "blob")
}

func TestFromValueIntersect(t *testing.T) {
	set := compile(t, `
entities: {
	systemuser: {
		primaryId: "SystemUserId"
		columns: {SystemUserId: {kind: "id"}}
	}
	role: {
		primaryId: "RoleId"
		columns: {RoleId: {kind: "id"}}
	}
	membership: {
		primaryId: "MembershipId"
		intersect: [
			{entity: "systemuser", column: "SystemUserId"},
			{entity: "role", column: "RoleId"},
		]
		columns: {
			MembershipId: {kind: "id"}
			SystemUserId: {kind: "id"}
			RoleId: {kind: "id"}
		}
	}
}
`)
	ent, err := set.Entity(context.Background(), "membership")
	require.NoError(t, err)
	assert.True(t, ent.IsIntersect)
	assert.Equal(t, RefSide{Entity: "systemuser", Column: "SystemUserId"}, ent.IntersectSides[0])
	assert.Equal(t, RefSide{Entity: "role", Column: "RoleId"}, ent.IntersectSides[1])
}

func TestSetUnknownLookups(t *testing.T) {
	set := compile(t, validSchema)
	ctx := context.Background()

	_, err := set.Entity(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = set.Column(ctx, "account", "Ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}
