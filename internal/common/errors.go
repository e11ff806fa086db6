// Package common defines sentinel errors shared by the ingestion pipeline,
// its storage adapters and the persistence layer. Callers should use
// errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Validation errors, surfaced synchronously before any processing starts.
	ErrUnsupportedType = errors.New("unsupported content type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrGroupNotFound   = errors.New("group not found")
	ErrEmptyUpload     = errors.New("empty upload")

	// Processing degradations. These are absorbed by the pipeline and never
	// fail a run.
	ErrProcessingDegraded = errors.New("processing degraded")
	ErrRenderingFailed    = errors.New("rendering failed")

	// Fatal run errors.
	ErrUploadFailed      = errors.New("upload failed")
	ErrPersistenceFailed = errors.New("persistence failed")

	// Configuration errors.
	ErrInvalidProfile = errors.New("invalid type profile")
)
