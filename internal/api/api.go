package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"image-moderation/internal/database"
	"image-moderation/internal/pipeline"
	"image-moderation/pkg/api"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const (
	DefaultMaxUploadBytes = 15 * 1024 * 1024
	maxListLimit          = 1000
)

var recordStatuses = map[string]struct{}{
	database.ImageReceived:   {},
	database.ImageStaged:     {},
	database.ImageClassified: {},
	database.ImagePlaced:     {},
	database.ImageFailed:     {},
	database.ImageAbandoned:  {},
}

type ModerationService struct {
	pipeline       *pipeline.Pipeline
	db             *gorm.DB
	maxUploadBytes int64
}

func NewModerationService(p *pipeline.Pipeline, db *gorm.DB, maxUploadBytes int64) *ModerationService {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &ModerationService{pipeline: p, db: db, maxUploadBytes: maxUploadBytes}
}

func (s *ModerationService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/images", func(r chi.Router) {
		r.Post("/", s.UploadImage)
		r.Get("/", RestHandler(s.ListImages))
		r.Get("/{image_id}", RestHandler(s.GetImage))
	})
}

func (s *ModerationService) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeUploadFailure(w, CodedErrorf(http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", s.maxUploadBytes))
			return
		}
		writeUploadFailure(w, CodedErrorf(http.StatusBadRequest, "unable to read request body: %w", err))
		return
	}

	isBase64 := strings.EqualFold(strings.TrimSpace(r.Header.Get("Content-Transfer-Encoding")), "base64")

	result, err := s.pipeline.Process(r.Context(), body, r.Header.Get("Content-Type"), isBase64)
	if err != nil {
		writeUploadFailure(w, err)
		return
	}

	slog.Info("image processed successfully", "file_name", result.FileName, "final_key", result.FinalKey)
	writeUploadSuccess(w, result)
}

func (s *ModerationService) GetImage(r *http.Request) (any, error) {
	imageId, err := URLParamUUID(r, "image_id")
	if err != nil {
		return nil, err
	}

	record, err := database.GetImageRecord(r.Context(), s.db, imageId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "image not found")
		}
		slog.Error("error getting image record", "image_id", imageId, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving image record")
	}

	return convertImageRecord(record), nil
}

func (s *ModerationService) ListImages(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListImagesParams](r)
	if err != nil {
		return nil, err
	}

	if params.Limit < 0 || params.Limit > maxListLimit {
		return nil, CodedErrorf(http.StatusBadRequest, "limit must be between 0 and %d", maxListLimit)
	}

	status := strings.ToUpper(params.Status)
	if status != "" {
		if _, ok := recordStatuses[status]; !ok {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid status '%s'", params.Status)
		}
	}

	records, err := database.ListImageRecords(r.Context(), s.db, database.ImageFilter{
		Status:  status,
		Flagged: params.Flagged,
		Limit:   params.Limit,
	})
	if err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}

	return convertImageRecords(records), nil
}
