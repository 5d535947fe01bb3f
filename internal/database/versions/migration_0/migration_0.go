package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ImageRecord struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	FileName  string `gorm:"not null"`
	Bucket    string `gorm:"not null"`
	StagedKey string `gorm:"not null"`
	FinalKey  sql.NullString

	Status  string `gorm:"size:20;not null;index"`
	Flagged bool   `gorm:"default:false;index"`
	Labels  datatypes.JSON

	Error    sql.NullString
	Attempts int `gorm:"not null;default:1"`

	CreationTime   time.Time `gorm:"index"`
	CompletionTime sql.NullTime
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&ImageRecord{}); err != nil {
		return fmt.Errorf("Migration0 failed: %w", err)
	}
	return nil
}
