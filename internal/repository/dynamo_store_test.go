package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/iac-studio/envforge/internal/testing/awsfake"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDynamoStore(t *testing.T) (*DynamoItemStore, *awsfake.DynamoDBServer) {
	t.Helper()
	srv := awsfake.NewDynamoDBServer()
	srv.CreateTable(secretTable, ProjectNameAttr)
	return NewDynamoItemStore(srv), srv
}

func TestDynamoItemStoreRoundTrip(t *testing.T) {
	store, srv := newDynamoStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertItem(ctx, secretTable, Item{ProjectNameAttr: "acme", SecretTokenAttr: "s1"}))
	require.NoError(t, store.InsertItem(ctx, secretTable, Item{ProjectNameAttr: "acme", SecretTokenAttr: "s2"}))
	assert.Equal(t, 1, srv.Len(secretTable))

	item, err := store.GetItem(ctx, secretTable, ProjectNameAttr, "acme")
	require.NoError(t, err)
	assert.Equal(t, "s2", item[SecretTokenAttr])

	require.NoError(t, store.DeleteItem(ctx, secretTable, ProjectNameAttr, "acme"))
	_, err = store.GetItem(ctx, secretTable, ProjectNameAttr, "acme")
	assert.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestDynamoItemStoreProviderErrorsVerbatim(t *testing.T) {
	store, srv := newDynamoStore(t)
	ctx := context.Background()

	err := store.InsertItem(ctx, "missing-table", Item{ProjectNameAttr: "acme"})
	var rnf *types.ResourceNotFoundException
	require.True(t, errors.As(err, &rnf))

	boom := awsfake.APIError("ProvisionedThroughputExceededException", "slow down")
	srv.Fail("PutItem", boom)
	err = store.InsertItem(ctx, secretTable, Item{ProjectNameAttr: "acme"})
	assert.Same(t, boom, err)
}

func TestDynamoItemStoreRejectsEmptyItem(t *testing.T) {
	store, srv := newDynamoStore(t)

	err := store.InsertItem(context.Background(), secretTable, Item{})
	assert.True(t, appErr.IsCode(err, appErr.CodeInvalid))
	assert.Zero(t, srv.Calls("PutItem"))
}
