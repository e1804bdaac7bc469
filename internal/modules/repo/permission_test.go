package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scidatahub/containerdb/internal/modules/model"
)

func TestPermissionRepoHasAction(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPermissionRepo(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "jane")
	reader := createTestUser(t, db, "bob")
	member := createTestUser(t, db, "carol")
	outsider := createTestUser(t, db, "dave")
	group := createTestGroup(t, db, "lab", member)

	ct := createTestContainerType(t, db, "myImage")
	ds := createTestDataset(t, db, owner, ct)

	require.NoError(t, repo.GrantUser(ctx, ds.ID, reader.ID, model.ActionView))
	require.NoError(t, repo.GrantGroup(ctx, ds.ID, group.ID, model.ActionChange))

	t.Run("direct grant", func(t *testing.T) {
		ok, err := repo.HasAction(ctx, ds.ID, reader, model.ActionView)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.HasAction(ctx, ds.ID, reader, model.ActionChange)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("group grant", func(t *testing.T) {
		ok, err := repo.HasAction(ctx, ds.ID, member, model.ActionChange)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("no grant", func(t *testing.T) {
		ok, err := repo.HasAction(ctx, ds.ID, outsider, model.ActionView)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("nil user never holds an action", func(t *testing.T) {
		ok, err := repo.HasAction(ctx, ds.ID, nil, model.ActionView)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPermissionRepoGrantIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPermissionRepo(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "jane")
	reader := createTestUser(t, db, "bob")
	ct := createTestContainerType(t, db, "myImage")
	ds := createTestDataset(t, db, owner, ct)

	require.NoError(t, repo.GrantUser(ctx, ds.ID, reader.ID, model.ActionView))
	require.NoError(t, repo.GrantUser(ctx, ds.ID, reader.ID, model.ActionView))

	grants, err := repo.ListForDataset(ctx, ds.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestPermissionRepoRevoke(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPermissionRepo(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "jane")
	reader := createTestUser(t, db, "bob")
	ct := createTestContainerType(t, db, "myImage")
	ds := createTestDataset(t, db, owner, ct)

	require.NoError(t, repo.GrantUser(ctx, ds.ID, reader.ID, model.ActionView))
	require.NoError(t, repo.RevokeUser(ctx, ds.ID, reader.ID, model.ActionView))

	ok, err := repo.HasAction(ctx, ds.ID, reader, model.ActionView)
	require.NoError(t, err)
	assert.False(t, ok)

	// Revoking an absent grant is a no-op.
	require.NoError(t, repo.RevokeUser(ctx, ds.ID, reader.ID, model.ActionView))
}
