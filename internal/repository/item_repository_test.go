package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/iac-studio/envforge/internal/models"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const secretTable = "envforge-github-auth-tokens"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.StoredItem{}))
	return db
}

func newTestRepo(t *testing.T) (ItemRepository, *gorm.DB) {
	db := setupTestDB(t)
	return NewItemRepository(db, map[string]string{secretTable: ProjectNameAttr}), db
}

func TestItemRepositoryInsertAndGet(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertItem(ctx, secretTable, Item{ProjectNameAttr: "acme", SecretTokenAttr: "s1"}))

	item, err := repo.GetItem(ctx, secretTable, ProjectNameAttr, "acme")
	require.NoError(t, err)
	assert.Equal(t, Item{ProjectNameAttr: "acme", SecretTokenAttr: "s1"}, item)
}

func TestItemRepositoryInsertOverwrites(t *testing.T) {
	repo, db := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertItem(ctx, secretTable, Item{ProjectNameAttr: "acme", SecretTokenAttr: "s1"}))
	require.NoError(t, repo.InsertItem(ctx, secretTable, Item{ProjectNameAttr: "acme", SecretTokenAttr: "s2"}))

	item, err := repo.GetItem(ctx, secretTable, ProjectNameAttr, "acme")
	require.NoError(t, err)
	assert.Equal(t, "s2", item[SecretTokenAttr])

	var count int64
	require.NoError(t, db.Model(&models.StoredItem{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestItemRepositoryGetMissing(t *testing.T) {
	repo, _ := newTestRepo(t)

	_, err := repo.GetItem(context.Background(), secretTable, ProjectNameAttr, "ghost")
	require.Error(t, err)
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestItemRepositoryDelete(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertItem(ctx, secretTable, Item{ProjectNameAttr: "acme", SecretTokenAttr: "s1"}))
	require.NoError(t, repo.DeleteItem(ctx, secretTable, ProjectNameAttr, "acme"))

	_, err := repo.GetItem(ctx, secretTable, ProjectNameAttr, "acme")
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))

	err = repo.DeleteItem(ctx, secretTable, ProjectNameAttr, "acme")
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestItemRepositoryRejectsUnknownTableAndKey(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	err := repo.InsertItem(ctx, "other", Item{ProjectNameAttr: "acme"})
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	err = repo.InsertItem(ctx, secretTable, Item{SecretTokenAttr: "s1"})
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))

	_, err = repo.GetItem(ctx, secretTable, "Name", "acme")
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
}

func TestWebhookSecretsOverRepository(t *testing.T) {
	repo, _ := newTestRepo(t)
	secrets := NewWebhookSecrets(repo, secretTable)
	ctx := context.Background()

	require.NoError(t, secrets.Put(ctx, "acme", "first"))
	require.NoError(t, secrets.Put(ctx, "acme", "second"))

	got, err := secrets.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	require.NoError(t, secrets.Delete(ctx, "acme"))
	_, err = secrets.Get(ctx, "acme")
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))

	assert.True(t, appErr.IsCode(secrets.Put(ctx, "", "x"), appErr.CodeInvalid))
}
