package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"image-moderation/internal/imaging"
	"image-moderation/internal/pipeline"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase("", filepath.Join(t.TempDir(), "db", "moderation.db"))
	require.NoError(t, err)
	return db
}

func registerAsset(t *testing.T, ledger *Ledger) *pipeline.Asset {
	t.Helper()
	id := uuid.New()
	asset := &pipeline.Asset{
		ID:        id,
		Bucket:    "images",
		FileName:  id.String() + ".jpg",
		StagedKey: "uploads/" + id.String() + ".jpg",
		Stage:     pipeline.StageReceived,
	}
	require.NoError(t, ledger.Register(context.Background(), asset, imaging.Info{Format: "jpeg", Width: 640, Height: 480}, 2048))
	return asset
}

func TestStatusMatchesPipelineStages(t *testing.T) {
	assert.Equal(t, ImageReceived, string(pipeline.StageReceived))
	assert.Equal(t, ImageStaged, string(pipeline.StageStaged))
	assert.Equal(t, ImageClassified, string(pipeline.StageClassified))
	assert.Equal(t, ImagePlaced, string(pipeline.StagePlaced))
	assert.Equal(t, ImageFailed, string(pipeline.StageFailed))
	assert.Equal(t, ImageAbandoned, string(pipeline.StageAbandoned))
}

func TestLedgerRegister(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	asset := registerAsset(t, ledger)

	record, err := GetImageRecord(context.Background(), db, asset.ID)
	require.NoError(t, err)

	assert.Equal(t, asset.FileName, record.FileName)
	assert.Equal(t, "images", record.Bucket)
	assert.Equal(t, asset.StagedKey, record.StagedKey)
	assert.False(t, record.FinalKey.Valid)
	assert.Equal(t, ImageReceived, record.Status)
	assert.Equal(t, int64(2048), record.SizeBytes)
	assert.Equal(t, "jpeg", record.Format)
	assert.Equal(t, 640, record.Width)
	assert.Equal(t, 480, record.Height)
	assert.Equal(t, 1, record.Attempts)
	assert.False(t, record.CompletionTime.Valid)
}

func TestLedgerSuccessfulRun(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	asset := registerAsset(t, ledger)
	ctx := context.Background()
	finalKey := "nsfw/" + asset.FileName

	require.NoError(t, ledger.Transition(ctx, asset.ID, pipeline.StageUpdate{Stage: pipeline.StageStaged}))

	record, err := GetImageRecord(ctx, db, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, ImageStaged, record.Status)

	require.NoError(t, ledger.Transition(ctx, asset.ID, pipeline.StageUpdate{
		Stage:    pipeline.StageClassified,
		Labels:   []string{"Violence", "Graphic Violence"},
		Flagged:  true,
		FinalKey: finalKey,
	}))

	record, err = GetImageRecord(ctx, db, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, ImageClassified, record.Status)
	assert.True(t, record.Flagged)
	labels, err := record.LabelNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Violence", "Graphic Violence"}, labels)

	require.NoError(t, ledger.Transition(ctx, asset.ID, pipeline.StageUpdate{
		Stage:    pipeline.StagePlaced,
		Labels:   labels,
		Flagged:  true,
		FinalKey: finalKey,
	}))

	record, err = GetImageRecord(ctx, db, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, ImagePlaced, record.Status)
	assert.Equal(t, finalKey, record.FinalKey.String)
	assert.True(t, record.CompletionTime.Valid)
	assert.False(t, record.Error.Valid)
}

func TestLedgerFailureAndResume(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	asset := registerAsset(t, ledger)
	ctx := context.Background()

	require.NoError(t, ledger.Transition(ctx, asset.ID, pipeline.StageUpdate{
		Stage: pipeline.StageFailed,
		Err:   errors.New("classifier unavailable"),
	}))

	record, err := GetImageRecord(ctx, db, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, ImageFailed, record.Status)
	assert.Equal(t, "classifier unavailable", record.Error.String)
	assert.False(t, record.CompletionTime.Valid)

	require.NoError(t, ledger.RecordAttempt(ctx, asset.ID))
	require.NoError(t, ledger.RecordAttempt(ctx, asset.ID))
	require.NoError(t, ledger.Transition(ctx, asset.ID, pipeline.StageUpdate{
		Stage: pipeline.StageAbandoned,
		Err:   errors.New("classifier still unavailable"),
	}))

	record, err = GetImageRecord(ctx, db, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, ImageAbandoned, record.Status)
	assert.Equal(t, 3, record.Attempts)
	assert.Equal(t, "classifier still unavailable", record.Error.String)
	assert.True(t, record.CompletionTime.Valid)
}

func TestGetImageRecordNotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := GetImageRecord(context.Background(), db, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListImageRecords(t *testing.T) {
	db := setupTestDB(t)
	ledger := NewLedger(db)
	ctx := context.Background()

	flaggedAsset := registerAsset(t, ledger)
	require.NoError(t, ledger.Transition(ctx, flaggedAsset.ID, pipeline.StageUpdate{Stage: pipeline.StageClassified, Labels: []string{"Drugs"}, Flagged: true}))
	require.NoError(t, ledger.Transition(ctx, flaggedAsset.ID, pipeline.StageUpdate{Stage: pipeline.StagePlaced, FinalKey: "nsfw/" + flaggedAsset.FileName}))

	clearAsset := registerAsset(t, ledger)
	require.NoError(t, ledger.Transition(ctx, clearAsset.ID, pipeline.StageUpdate{Stage: pipeline.StageClassified}))
	require.NoError(t, ledger.Transition(ctx, clearAsset.ID, pipeline.StageUpdate{Stage: pipeline.StagePlaced, FinalKey: "safe/" + clearAsset.FileName}))

	failedAsset := registerAsset(t, ledger)
	require.NoError(t, ledger.Transition(ctx, failedAsset.ID, pipeline.StageUpdate{Stage: pipeline.StageFailed, Err: errors.New("boom")}))

	all, err := ListImageRecords(ctx, db, ImageFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	placed, err := ListImageRecords(ctx, db, ImageFilter{Status: ImagePlaced})
	require.NoError(t, err)
	assert.Len(t, placed, 2)

	flagged := true
	flaggedRecords, err := ListImageRecords(ctx, db, ImageFilter{Flagged: &flagged})
	require.NoError(t, err)
	require.Len(t, flaggedRecords, 1)
	assert.Equal(t, flaggedAsset.ID, flaggedRecords[0].Id)

	notFlagged := false
	clearRecords, err := ListImageRecords(ctx, db, ImageFilter{Status: ImagePlaced, Flagged: &notFlagged})
	require.NoError(t, err)
	require.Len(t, clearRecords, 1)
	assert.Equal(t, clearAsset.ID, clearRecords[0].Id)

	limited, err := ListImageRecords(ctx, db, ImageFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	inBucket, err := ListImageRecords(ctx, db, ImageFilter{Bucket: "images"})
	require.NoError(t, err)
	assert.Len(t, inBucket, 3)

	otherBucket, err := ListImageRecords(ctx, db, ImageFilter{Bucket: "other"})
	require.NoError(t, err)
	assert.Empty(t, otherBucket)
}

func TestMigratorIsIdempotent(t *testing.T) {
	db := setupTestDB(t)

	require.NoError(t, GetMigrator(db).Migrate())
	assert.True(t, db.Migrator().HasTable(&ImageRecord{}))
	assert.True(t, db.Migrator().HasColumn(&ImageRecord{}, "Width"))
}
