package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func CreateImageRecord(ctx context.Context, txn *gorm.DB, record *ImageRecord) error {
	if err := txn.WithContext(ctx).Create(record).Error; err != nil {
		slog.Error("error creating image record", "image_id", record.Id, "error", err)
		return fmt.Errorf("failed to create image record: %w", err)
	}
	return nil
}

func UpdateImageStatus(ctx context.Context, txn *gorm.DB, imageId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == ImagePlaced || status == ImageAbandoned {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&ImageRecord{Id: imageId}).Updates(updates).Error; err != nil {
		slog.Error("error updating image status", "image_id", imageId, "status", status, "error", err)
		return err
	}
	return nil
}

func MarkImageClassified(ctx context.Context, txn *gorm.DB, imageId uuid.UUID, labels []string, flagged bool, finalKey string) error {
	if labels == nil {
		labels = []string{}
	}
	bLabels, err := json.Marshal(labels)
	if err != nil {
		return fmt.Errorf("could not marshal labels: %w", err)
	}

	updates := map[string]any{
		"status":    ImageClassified,
		"labels":    datatypes.JSON(bLabels),
		"flagged":   flagged,
		"final_key": sql.NullString{String: finalKey, Valid: finalKey != ""},
	}
	if err := txn.WithContext(ctx).Model(&ImageRecord{Id: imageId}).Updates(updates).Error; err != nil {
		slog.Error("error saving classification", "image_id", imageId, "error", err)
		return err
	}
	return nil
}

func MarkImagePlaced(ctx context.Context, txn *gorm.DB, imageId uuid.UUID, finalKey string) error {
	updates := map[string]any{
		"status":          ImagePlaced,
		"final_key":       sql.NullString{String: finalKey, Valid: finalKey != ""},
		"error":           sql.NullString{},
		"completion_time": time.Now().UTC(),
	}
	if err := txn.WithContext(ctx).Model(&ImageRecord{Id: imageId}).Updates(updates).Error; err != nil {
		slog.Error("error marking image placed", "image_id", imageId, "error", err)
		return err
	}
	return nil
}

func markImageError(ctx context.Context, txn *gorm.DB, imageId uuid.UUID, status string, errorMessage string) error {
	updates := map[string]any{
		"status": status,
		"error":  sql.NullString{String: errorMessage, Valid: errorMessage != ""},
	}
	if status == ImageAbandoned {
		updates["completion_time"] = time.Now().UTC()
	}
	if err := txn.WithContext(ctx).Model(&ImageRecord{Id: imageId}).Updates(updates).Error; err != nil {
		slog.Error("error saving image error", "image_id", imageId, "status", status, "error", err)
		return err
	}
	return nil
}

func MarkImageFailed(ctx context.Context, txn *gorm.DB, imageId uuid.UUID, errorMessage string) error {
	return markImageError(ctx, txn, imageId, ImageFailed, errorMessage)
}

func MarkImageAbandoned(ctx context.Context, txn *gorm.DB, imageId uuid.UUID, errorMessage string) error {
	return markImageError(ctx, txn, imageId, ImageAbandoned, errorMessage)
}

func IncrementImageAttempts(ctx context.Context, txn *gorm.DB, imageId uuid.UUID) error {
	if err := txn.WithContext(ctx).Model(&ImageRecord{Id: imageId}).
		Update("attempts", gorm.Expr("attempts + ?", 1)).Error; err != nil {
		slog.Error("error incrementing image attempts", "image_id", imageId, "error", err)
		return err
	}
	return nil
}

func GetImageRecord(ctx context.Context, db *gorm.DB, imageId uuid.UUID) (ImageRecord, error) {
	var record ImageRecord
	if err := db.WithContext(ctx).First(&record, "id = ?", imageId).Error; err != nil {
		return ImageRecord{}, err
	}
	return record, nil
}

type ImageFilter struct {
	Status  string
	Bucket  string
	Flagged *bool
	Limit   int
}

const DefaultListLimit = 100

func ListImageRecords(ctx context.Context, db *gorm.DB, filter ImageFilter) ([]ImageRecord, error) {
	query := db.WithContext(ctx).Model(&ImageRecord{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Bucket != "" {
		query = query.Where("bucket = ?", filter.Bucket)
	}
	if filter.Flagged != nil {
		query = query.Where("flagged = ?", *filter.Flagged)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var records []ImageRecord
	if err := query.Order("creation_time DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("error listing image records: %w", err)
	}
	return records, nil
}

// LabelNames decodes the stored label list.
func (r *ImageRecord) LabelNames() ([]string, error) {
	labels := []string{}
	if len(r.Labels) == 0 {
		return labels, nil
	}
	if err := json.Unmarshal(r.Labels, &labels); err != nil {
		return nil, fmt.Errorf("invalid labels JSON: %w", err)
	}
	return labels, nil
}
