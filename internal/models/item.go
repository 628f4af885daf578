package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StoredItem is one key-value item kept in the relational item store. The
// pair (Collection, ItemKey) plays the role of a table name plus partition
// key.
type StoredItem struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Collection string         `gorm:"type:varchar(128);not null;uniqueIndex:idx_items_collection_key" json:"collection"`
	ItemKey    string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_items_collection_key" json:"item_key"`
	Attributes datatypes.JSON `gorm:"type:jsonb" json:"attributes"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func (StoredItem) TableName() string { return "stored_items" }

func (i *StoredItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
