package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scidatahub/containerdb/internal/modules/model"
)

func TestDatasetRepoGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDatasetRepo(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "jane")
	ct := createTestContainerType(t, db, "myImage")
	ds := createTestDataset(t, db, owner, ct)

	got, err := repo.Get(ctx, ds.ID)
	require.NoError(t, err)
	assert.Equal(t, ds.ID, got.ID)
	require.NotNil(t, got.Owner)
	assert.Equal(t, "jane", got.Owner.Username)
	require.NotNil(t, got.ContainerType)
	assert.Equal(t, "myImage", got.ContainerType.Name)
}

func TestDatasetRepoClaimStorageTime(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDatasetRepo(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "jane")
	ct := createTestContainerType(t, db, "myImage")
	ds := createTestDataset(t, db, owner, ct)

	stored, err := repo.Get(ctx, ds.ID)
	require.NoError(t, err)

	next := stored.StorageTime.Add(time.Minute)

	t.Run("first claim wins", func(t *testing.T) {
		won, err := repo.ClaimStorageTime(ctx, ds.ID, stored.StorageTime, next)
		require.NoError(t, err)
		assert.True(t, won)
	})

	t.Run("claim from the overtaken version loses", func(t *testing.T) {
		won, err := repo.ClaimStorageTime(ctx, ds.ID, stored.StorageTime, next.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, won)
	})

	t.Run("claim from the current version wins again", func(t *testing.T) {
		won, err := repo.ClaimStorageTime(ctx, ds.ID, next, next.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, won)
	})
}

func TestDatasetRepoResolveDatasetRef(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDatasetRepo(db)
	ctx := context.Background()

	t.Run("unknown identifier becomes a placeholder", func(t *testing.T) {
		id := uuid.New()
		ref, err := repo.ResolveDatasetRef(ctx, id)
		require.NoError(t, err)
		assert.True(t, ref.IsPlaceholder())
		assert.Equal(t, id, ref.ID())

		// Resolving again reuses the row.
		again, err := repo.ResolveDatasetRef(ctx, id)
		require.NoError(t, err)
		assert.True(t, again.IsPlaceholder())
	})

	t.Run("known identifier resolves to the full record", func(t *testing.T) {
		owner := createTestUser(t, db, "jane")
		ct := createTestContainerType(t, db, "myImage")
		ds := createTestDataset(t, db, owner, ct)

		ref, err := repo.ResolveDatasetRef(ctx, ds.ID)
		require.NoError(t, err)
		require.NotNil(t, ref.Full)
		assert.Equal(t, ds.ID, ref.Full.ID)
	})
}

func TestDatasetRepoReplacementChain(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDatasetRepo(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "jane")
	ct := createTestContainerType(t, db, "myImage")
	old := createTestDataset(t, db, owner, ct)
	successor := createTestDataset(t, db, owner, ct)

	ref, err := repo.GetRef(ctx, old.ID)
	require.NoError(t, err)
	require.NoError(t, repo.SetSuccessor(ctx, ref, successor.ID))

	stored, err := repo.Get(ctx, old.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReplacedByID)
	assert.Equal(t, successor.ID, *stored.ReplacedByID)

	pred, err := repo.FindPredecessor(ctx, successor.ID)
	require.NoError(t, err)
	require.NotNil(t, pred.Full)
	assert.Equal(t, old.ID, pred.Full.ID)

	t.Run("placeholder predecessors link too", func(t *testing.T) {
		phID := uuid.New()
		phRef, err := repo.ResolveDatasetRef(ctx, phID)
		require.NoError(t, err)

		tip := createTestDataset(t, db, owner, ct)
		require.NoError(t, repo.SetSuccessor(ctx, phRef, tip.ID))

		pred, err := repo.FindPredecessor(ctx, tip.ID)
		require.NoError(t, err)
		assert.True(t, pred.IsPlaceholder())
		assert.Equal(t, phID, pred.ID())
	})
}

func TestDatasetRepoFindStaticByHash(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDatasetRepo(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "jane")
	ct := createTestContainerType(t, db, "myImage")
	hash := "deadbeef"
	ds := createTestDataset(t, db, owner, ct, func(d *model.Dataset) {
		d.Static = true
		d.Hash = hash
		d.StaticHash = &hash
	})

	got, err := repo.FindStaticByHash(ctx, hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ds.ID, got.ID)

	missing, err := repo.FindStaticByHash(ctx, "cafebabe")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDatasetRepoListVisible(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDatasetRepo(db)
	grants := NewPermissionRepo(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "jane")
	other := createTestUser(t, db, "bob")
	member := createTestUser(t, db, "carol")
	group := createTestGroup(t, db, "lab", member)

	ct := createTestContainerType(t, db, "myImage")
	own := createTestDataset(t, db, owner, ct, func(d *model.Dataset) { d.Title = "jane's scan" })
	shared := createTestDataset(t, db, other, ct, func(d *model.Dataset) { d.Title = "bob shares this" })
	viaGroup := createTestDataset(t, db, other, ct, func(d *model.Dataset) { d.Title = "group access" })
	createTestDataset(t, db, other, ct, func(d *model.Dataset) { d.Title = "private to bob" })
	createTestDataset(t, db, owner, ct, func(d *model.Dataset) { d.Valid = false })

	require.NoError(t, grants.GrantUser(ctx, shared.ID, owner.ID, model.ActionView))
	require.NoError(t, grants.GrantGroup(ctx, viaGroup.ID, group.ID, model.ActionChange))

	t.Run("owned and granted records only, invalid excluded", func(t *testing.T) {
		out, err := repo.ListVisible(ctx, owner, ListFilter{})
		require.NoError(t, err)
		ids := map[uuid.UUID]bool{}
		for _, d := range out {
			ids[d.ID] = true
		}
		assert.Len(t, out, 2)
		assert.True(t, ids[own.ID])
		assert.True(t, ids[shared.ID])
	})

	t.Run("group membership grants visibility", func(t *testing.T) {
		out, err := repo.ListVisible(ctx, member, ListFilter{})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, viaGroup.ID, out[0].ID)
	})

	t.Run("title filter is case insensitive substring", func(t *testing.T) {
		out, err := repo.ListVisible(ctx, owner, ListFilter{Title: "JANE"})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, own.ID, out[0].ID)
	})

	t.Run("id filter matches substrings of the identifier", func(t *testing.T) {
		fragment := own.ID.String()[9:13]
		out, err := repo.ListVisible(ctx, owner, ListFilter{ID: fragment})
		require.NoError(t, err)
		found := false
		for _, d := range out {
			if d.ID == own.ID {
				found = true
			}
		}
		assert.True(t, found)
	})
}

func TestDatasetRepoDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDatasetRepo(db)
	ctx := context.Background()

	owner := createTestUser(t, db, "jane")
	ct := createTestContainerType(t, db, "myImage")
	ds := createTestDataset(t, db, owner, ct)

	require.NoError(t, repo.Delete(ctx, ds.ID))
	_, err := repo.Get(ctx, ds.ID)
	assert.Error(t, err)

	// Deleting a missing record is not an error.
	require.NoError(t, repo.Delete(ctx, uuid.New()))
}
