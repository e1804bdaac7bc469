package service

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/scidatahub/containerdb/internal/modules/model"
)

// setupTestDB opens an isolated in-memory database per test and migrates
// the full schema.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Group{},
		&model.ContainerType{},
		&model.Software{},
		&model.Keyword{},
		&model.File{},
		&model.Dataset{},
		&model.DatasetPlaceholder{},
		&model.AccessGrant{},
	))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	user := &model.User{ID: uuid.New(), Username: username, Email: username + "@example.com"}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestGroup(t *testing.T, db *gorm.DB, name string, members ...*model.User) *model.Group {
	t.Helper()
	group := &model.Group{ID: uuid.New(), Name: name}
	require.NoError(t, db.Create(group).Error)
	for _, m := range members {
		require.NoError(t, db.Model(m).Association("Groups").Append(group))
		m.Groups = append(m.Groups, *group)
	}
	return group
}

func createTestContainerType(t *testing.T, db *gorm.DB, name string) *model.ContainerType {
	t.Helper()
	ct := &model.ContainerType{DBID: uuid.New(), Name: name}
	require.NoError(t, db.Create(ct).Error)
	return ct
}

func createTestDataset(t *testing.T, db *gorm.DB, owner *model.User, ct *model.ContainerType, mutate ...func(*model.Dataset)) *model.Dataset {
	t.Helper()
	ds := &model.Dataset{
		ID:              uuid.New(),
		OwnerID:         owner.ID,
		Valid:           true,
		Created:         time.Now().Add(-time.Hour),
		StorageTime:     time.Now().Add(-time.Hour),
		ContainerTypeID: ct.DBID,
		ModelVersion:    "1.0",
		Author:          "Jane Doe",
		Email:           "jane@example.com",
		Title:           "measurement",
	}
	for _, m := range mutate {
		m(ds)
	}
	require.NoError(t, db.Omit("UsedSoftware", "Keywords", "Files", "Owner", "ContainerType").Create(ds).Error)
	return ds
}

// buildContainer assembles a minimal valid zip container. The content
// document defaults can be overridden per test.
func buildContainer(t *testing.T, content, meta map[string]any, extra map[string][]byte) []byte {
	t.Helper()

	base := map[string]any{
		"containerType": map[string]any{"name": "myImage"},
		"created":       "2022-09-06T11:25:13+00:00",
		"storageTime":   "2022-09-06T11:25:13+00:00",
		"static":        false,
		"complete":      false,
		"modelVersion":  "1.0",
	}
	for k, v := range content {
		base[k] = v
	}

	baseMeta := map[string]any{
		"author": "Jane Doe",
		"email":  "jane@example.com",
		"title":  "measurement 42",
	}
	for k, v := range meta {
		baseMeta[k] = v
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	write := func(name string, v any) {
		f, err := w.Create(name)
		require.NoError(t, err)
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		_, err = f.Write(raw)
		require.NoError(t, err)
	}
	write("content.json", base)
	write("meta.json", baseMeta)
	for name, data := range extra {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}
