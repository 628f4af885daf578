package repository

import (
	"context"
	"encoding/json"

	"github.com/iac-studio/envforge/internal/models"
	appErr "github.com/iac-studio/envforge/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ItemRepository is the relational ItemStore. Each logical table must be
// registered with the name of its key attribute.
type ItemRepository interface {
	BaseRepository[models.StoredItem]
	ItemStore
}

type itemRepository struct {
	BaseRepository[models.StoredItem]
	db   *gorm.DB
	keys map[string]string
}

// NewItemRepository maps table name to key attribute through keyAttrs.
func NewItemRepository(db *gorm.DB, keyAttrs map[string]string) ItemRepository {
	keys := make(map[string]string, len(keyAttrs))
	for t, k := range keyAttrs {
		keys[t] = k
	}
	return &itemRepository{
		BaseRepository: NewBaseRepository[models.StoredItem](db),
		db:             db,
		keys:           keys,
	}
}

func (r *itemRepository) InsertItem(ctx context.Context, table string, item Item) error {
	keyAttr, err := r.keyAttr(table)
	if err != nil {
		return err
	}
	key := item[keyAttr]
	if key == "" {
		return appErr.Newf(appErr.CodeInvalid, "item is missing key attribute %q", keyAttr)
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "encode item failed")
	}

	row := models.StoredItem{Collection: table, ItemKey: key, Attributes: datatypes.JSON(raw)}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"attributes", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "insert item failed")
	}
	return nil
}

func (r *itemRepository) GetItem(ctx context.Context, table, keyAttr, keyValue string) (Item, error) {
	row, err := r.find(ctx, table, keyAttr, keyValue)
	if err != nil {
		return nil, err
	}
	var item Item
	if err := json.Unmarshal(row.Attributes, &item); err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "decode item failed")
	}
	return item, nil
}

func (r *itemRepository) DeleteItem(ctx context.Context, table, keyAttr, keyValue string) error {
	row, err := r.find(ctx, table, keyAttr, keyValue)
	if err != nil {
		return err
	}
	return r.Delete(ctx, row.ID)
}

func (r *itemRepository) find(ctx context.Context, table, keyAttr, keyValue string) (*models.StoredItem, error) {
	want, err := r.keyAttr(table)
	if err != nil {
		return nil, err
	}
	if keyAttr != want {
		return nil, appErr.Newf(appErr.CodeInvalid, "table %s is keyed by %q, not %q", table, want, keyAttr)
	}
	var row models.StoredItem
	if err := r.FindOne(ctx, &row, "collection = ? AND item_key = ?", table, keyValue); err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *itemRepository) keyAttr(table string) (string, error) {
	k, ok := r.keys[table]
	if !ok {
		return "", appErr.Newf(appErr.CodeInvalid, "unknown item table %q", table)
	}
	return k, nil
}
