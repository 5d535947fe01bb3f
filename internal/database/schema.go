package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ImageReceived   string = "RECEIVED"
	ImageStaged     string = "STAGED"
	ImageClassified string = "CLASSIFIED"
	ImagePlaced     string = "PLACED"
	ImageFailed     string = "FAILED"
	ImageAbandoned  string = "ABANDONED"
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

	SizeBytes int64  `gorm:"not null;default:0"`
	Format    string `gorm:"size:20;not null;default:''"`
	Width     int    `gorm:"not null;default:0"`
	Height    int    `gorm:"not null;default:0"`

	Error    sql.NullString
	Attempts int `gorm:"not null;default:1"`

	CreationTime   time.Time `gorm:"index"`
	CompletionTime sql.NullTime
}
