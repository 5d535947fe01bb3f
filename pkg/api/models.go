package api

import (
	"time"

	"github.com/google/uuid"
)

// UploadResponse is returned for a successfully placed image.
type UploadResponse struct {
	FileName      string   `json:"file_name"`
	NsfwDetected  bool     `json:"nsfw_detected"`
	Labels        []string `json:"labels"`
	Message       string   `json:"message"`
	FinalLocation string   `json:"final_location"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type ImageRecord struct {
	Id        uuid.UUID
	FileName  string
	Bucket    string
	StagedKey string
	FinalKey  string `json:"FinalKey,omitempty"`

	Status   string
	Flagged  bool
	Labels   []string
	Attempts int
	Error    string `json:"Error,omitempty"`

	SizeBytes int64
	Format    string
	Width     int
	Height    int

	CreationTime   time.Time
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`
}

type ListImagesParams struct {
	Status  string `schema:"status"`
	Flagged *bool  `schema:"flagged"`
	Limit   int    `schema:"limit"`
}
