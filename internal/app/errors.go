package app

import (
	"errors"
	"net/http"

	"docqa/internal/chunker"
	"docqa/internal/extract"
	"docqa/internal/rag"
	"docqa/internal/source"
)

// ValidationError is a missing or malformed request field.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// statusFor maps an error to its HTTP status: caller mistakes and bad
// documents are 400, everything else is an internal failure.
func statusFor(err error) int {
	var (
		valErr *ValidationError
		dlErr  *source.DownloadError
	)
	switch {
	case errors.As(err, &valErr),
		errors.As(err, &dlErr),
		errors.Is(err, extract.ErrNoText),
		errors.Is(err, extract.ErrDecode),
		errors.Is(err, chunker.ErrEmptyInput),
		errors.Is(err, rag.ErrInvalidDocument):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
