package database

import (
	"context"
	"database/sql"
	"time"

	"image-moderation/internal/imaging"
	"image-moderation/internal/pipeline"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ledger records every pipeline stage transition as an ImageRecord.
type Ledger struct {
	db *gorm.DB
}

var _ pipeline.Ledger = (*Ledger)(nil)

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) Register(ctx context.Context, asset *pipeline.Asset, info imaging.Info, sizeBytes int64) error {
	record := ImageRecord{
		Id:           asset.ID,
		FileName:     asset.FileName,
		Bucket:       asset.Bucket,
		StagedKey:    asset.StagedKey,
		FinalKey:     sql.NullString{String: asset.FinalKey, Valid: asset.FinalKey != ""},
		Status:       string(asset.Stage),
		SizeBytes:    sizeBytes,
		Format:       info.Format,
		Width:        info.Width,
		Height:       info.Height,
		Attempts:     1,
		CreationTime: time.Now().UTC(),
	}
	return CreateImageRecord(ctx, l.db, &record)
}

func (l *Ledger) Transition(ctx context.Context, id uuid.UUID, update pipeline.StageUpdate) error {
	var errorMessage string
	if update.Err != nil {
		errorMessage = update.Err.Error()
	}

	switch update.Stage {
	case pipeline.StageClassified:
		return MarkImageClassified(ctx, l.db, id, update.Labels, update.Flagged, update.FinalKey)
	case pipeline.StagePlaced:
		return MarkImagePlaced(ctx, l.db, id, update.FinalKey)
	case pipeline.StageFailed:
		return MarkImageFailed(ctx, l.db, id, errorMessage)
	case pipeline.StageAbandoned:
		return MarkImageAbandoned(ctx, l.db, id, errorMessage)
	default:
		return UpdateImageStatus(ctx, l.db, id, string(update.Stage))
	}
}

func (l *Ledger) RecordAttempt(ctx context.Context, id uuid.UUID) error {
	return IncrementImageAttempts(ctx, l.db, id)
}
