package api

import (
	"errors"
	"log/slog"
	"net/http"

	"image-moderation/internal/pipeline"
	"image-moderation/pkg/api"
)

const failureMessage = "Failed to process image"

func uploadResponse(result *pipeline.Result) api.UploadResponse {
	labels := result.Labels
	if labels == nil {
		labels = []string{}
	}
	return api.UploadResponse{
		FileName:      result.FileName,
		NsfwDetected:  result.Flagged,
		Labels:        labels,
		Message:       result.Message,
		FinalLocation: result.FinalKey,
	}
}

func errorResponse(err error) api.ErrorResponse {
	return api.ErrorResponse{Error: err.Error(), Message: failureMessage}
}

func successHeaders() map[string]string {
	return map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type",
		"Access-Control-Allow-Methods": "POST,OPTIONS",
	}
}

func failureHeaders() map[string]string {
	return map[string]string{
		"Content-Type":                "application/json",
		"Access-Control-Allow-Origin": "*",
	}
}

// StatusForError maps a pipeline failure to the HTTP status returned to the
// uploader.
func StatusForError(err error) int {
	var cerr *codedError
	switch {
	case errors.As(err, &cerr):
		return cerr.code
	case errors.Is(err, pipeline.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, pipeline.ErrMalformedRequest), errors.Is(err, pipeline.ErrNoFileFound):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrServiceFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeUpload(w http.ResponseWriter, status int, headers map[string]string, body any) {
	for key, value := range headers {
		w.Header().Set(key, value)
	}
	writeJson(w, status, body)
}

func writeUploadSuccess(w http.ResponseWriter, result *pipeline.Result) {
	writeUpload(w, http.StatusOK, successHeaders(), uploadResponse(result))
}

func writeUploadFailure(w http.ResponseWriter, err error) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		slog.Error("error processing image", "status", status, "error", err)
	} else {
		slog.Warn("rejected image upload", "status", status, "error", err)
	}
	writeUpload(w, status, failureHeaders(), errorResponse(err))
}
