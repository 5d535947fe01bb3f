package pipeline

import (
	"errors"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrMalformedRequest = errors.New("malformed request")
	ErrNoFileFound      = errors.New("no file found in multipart/form-data payload")
	ErrServiceFailure   = errors.New("service failure")

	// ErrNothingToResume is returned by Resume when the staged object no
	// longer exists, either because it was placed or removed by a lifecycle rule.
	ErrNothingToResume = errors.New("staged object not found")
)

const (
	KindConfiguration    = "configuration"
	KindMalformedRequest = "malformed_request"
	KindNoFileFound      = "no_file_found"
	KindServiceFailure   = "service_failure"
	KindUnknown          = "unknown"
)

// ErrorKind names the failure class of err for metrics and logs.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrMalformedRequest):
		return KindMalformedRequest
	case errors.Is(err, ErrNoFileFound):
		return KindNoFileFound
	case errors.Is(err, ErrServiceFailure):
		return KindServiceFailure
	default:
		return KindUnknown
	}
}
