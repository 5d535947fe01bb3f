package api

import (
	"log/slog"

	"image-moderation/internal/database"
	"image-moderation/pkg/api"
)

func convertImageRecord(r database.ImageRecord) api.ImageRecord {
	labels, err := r.LabelNames()
	if err != nil {
		slog.Error("error decoding stored labels", "image_id", r.Id, "error", err)
		labels = []string{}
	}

	record := api.ImageRecord{
		Id:           r.Id,
		FileName:     r.FileName,
		Bucket:       r.Bucket,
		StagedKey:    r.StagedKey,
		FinalKey:     r.FinalKey.String,
		Status:       r.Status,
		Flagged:      r.Flagged,
		Labels:       labels,
		Attempts:     r.Attempts,
		Error:        r.Error.String,
		SizeBytes:    r.SizeBytes,
		Format:       r.Format,
		Width:        r.Width,
		Height:       r.Height,
		CreationTime: r.CreationTime,
	}

	if r.CompletionTime.Valid {
		completion := r.CompletionTime.Time
		record.CompletionTime = &completion
	}

	return record
}

func convertImageRecords(rs []database.ImageRecord) []api.ImageRecord {
	records := make([]api.ImageRecord, 0, len(rs))
	for _, r := range rs {
		records = append(records, convertImageRecord(r))
	}
	return records
}
