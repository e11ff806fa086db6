// Package models defines server-side data models persisted in the database.
package models

import "time"

// FileRecord describes one ingested file. The bytes themselves live in
// object storage; the record keeps their locators.
type FileRecord struct {
	// ID is also the base name of the main object.
	ID         string
	GroupID    string
	UploaderID string

	Name        string
	ContentType string
	Category    string
	Size        int64
	Caption     string

	// ObjectID is the object-store key of the original upload.
	ObjectID string
	URL      string
	// PreviewURL and ThumbnailURL are empty when no artifact was derived.
	PreviewURL   string
	ThumbnailURL string

	Metadata  *Metadata
	CreatedAt time.Time
}

// HasPreview reports whether a preview object was stored for the record.
func (f *FileRecord) HasPreview() bool {
	return f.PreviewURL != ""
}

// HasThumbnail reports whether a thumbnail object was stored for the record.
func (f *FileRecord) HasThumbnail() bool {
	return f.ThumbnailURL != ""
}
