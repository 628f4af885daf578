package repository

import (
	"context"

	appErr "github.com/iac-studio/envforge/pkg/errors"
)

// Item is a flat set of string attributes, one of which is the table's key.
type Item map[string]string

// ItemStore is a minimal key-value table contract. InsertItem overwrites any
// item with the same key.
type ItemStore interface {
	InsertItem(ctx context.Context, table string, item Item) error
	GetItem(ctx context.Context, table, keyAttr, keyValue string) (Item, error)
	DeleteItem(ctx context.Context, table, keyAttr, keyValue string) error
}

// Attribute names of a webhook secret item.
const (
	ProjectNameAttr = "ProjectName"
	SecretTokenAttr = "GithubSecretToken"
)

// WebhookSecrets persists one webhook shared secret per project.
type WebhookSecrets struct {
	store ItemStore
	table string
}

func NewWebhookSecrets(store ItemStore, table string) *WebhookSecrets {
	return &WebhookSecrets{store: store, table: table}
}

func (w *WebhookSecrets) Table() string { return w.table }

// Put stores secret for projectID, replacing any previous value.
func (w *WebhookSecrets) Put(ctx context.Context, projectID, secret string) error {
	if projectID == "" || secret == "" {
		return appErr.New(appErr.CodeInvalid, "project id and secret are required")
	}
	return w.store.InsertItem(ctx, w.table, Item{
		ProjectNameAttr: projectID,
		SecretTokenAttr: secret,
	})
}

func (w *WebhookSecrets) Get(ctx context.Context, projectID string) (string, error) {
	item, err := w.store.GetItem(ctx, w.table, ProjectNameAttr, projectID)
	if err != nil {
		return "", err
	}
	secret, ok := item[SecretTokenAttr]
	if !ok || secret == "" {
		return "", appErr.Newf(appErr.CodeNotFound, "no webhook secret stored for project %q", projectID)
	}
	return secret, nil
}

func (w *WebhookSecrets) Delete(ctx context.Context, projectID string) error {
	return w.store.DeleteItem(ctx, w.table, ProjectNameAttr, projectID)
}
