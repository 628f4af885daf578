package main

import (
	"gorm.io/gorm"

	"github.com/iac-studio/envforge/internal/models"
)

func registerModels() []interface{} {
	return []interface{}{
		&models.StoredItem{},
	}
}

func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(registerModels()...); err != nil {
		return err
	}
	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't express.
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addAttributesIndex,
	}
	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}
	return nil
}

func addAttributesIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_stored_items_attributes
		ON stored_items USING gin (attributes)
	`).Error
}
