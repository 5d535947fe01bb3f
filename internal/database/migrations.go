package database

import (
	"log/slog"

	"image-moderation/internal/database/versions/migration_0"
	"image-moderation/internal/database/versions/migration_1"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// ledgerMigrations must only ever be appended to. IDs are persisted in the
// migrations table of every deployed ledger.
var ledgerMigrations = []*gormigrate.Migration{
	{
		ID:      "0",
		Migrate: migration_0.Migration,
	},
	{
		ID:       "1",
		Migrate:  migration_1.Migration,
		Rollback: migration_1.Rollback,
	},
}

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, ledgerMigrations)

	// An empty database gets the current ImageRecord schema directly and every
	// migration above is marked as applied.
	migrator.InitSchema(func(txn *gorm.DB) error {
		slog.Info("empty ledger detected, creating image_records schema", "migrations", len(ledgerMigrations))
		return txn.AutoMigrate(&ImageRecord{})
	})

	return migrator
}
