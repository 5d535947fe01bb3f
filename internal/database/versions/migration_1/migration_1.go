package migration_1

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImageRecord adds the columns filled in from the decoded image header.
type ImageRecord struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SizeBytes int64  `gorm:"not null;default:0"`
	Format    string `gorm:"size:20;not null;default:''"`
	Width     int    `gorm:"not null;default:0"`
	Height    int    `gorm:"not null;default:0"`
}

var columns = []string{"SizeBytes", "Format", "Width", "Height"}

func Migration(db *gorm.DB) error {
	for _, column := range columns {
		if db.Migrator().HasColumn(&ImageRecord{}, column) {
			continue
		}
		if err := db.Migrator().AddColumn(&ImageRecord{}, column); err != nil {
			return fmt.Errorf("Migration1 failed to add column %s: %w", column, err)
		}
	}
	return nil
}

func Rollback(db *gorm.DB) error {
	for _, column := range columns {
		if !db.Migrator().HasColumn(&ImageRecord{}, column) {
			continue
		}
		if err := db.Migrator().DropColumn(&ImageRecord{}, column); err != nil {
			return fmt.Errorf("Rollback1 failed to drop column %s: %w", column, err)
		}
	}
	return nil
}
