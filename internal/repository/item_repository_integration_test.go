//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/iac-studio/envforge/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestItemRepositoryPostgres(t *testing.T) {
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("envforge"),
		tcpostgres.WithUsername("envforge"),
		tcpostgres.WithPassword("envforge"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.StoredItem{}))

	secrets := NewWebhookSecrets(NewItemRepository(db, map[string]string{secretTable: ProjectNameAttr}), secretTable)
	require.NoError(t, secrets.Put(ctx, "acme", "first"))
	require.NoError(t, secrets.Put(ctx, "acme", "second"))

	got, err := secrets.Get(ctx, "acme")
	require.NoError(t, err)
	require.Equal(t, "second", got)
}
