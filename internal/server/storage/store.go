// Package storage puts ingested files and their derived artifacts into an
// S3-compatible object store.
package storage

import (
	"context"
	"path"
	"strings"
	"time"
)

// Resource kinds, also used as the name prefix of derived objects.
const (
	KindMain      = "main"
	KindPreview   = "preview"
	KindThumbnail = "thumb"
	KindStream    = "stream"
)

// Transform asks the store for server-side derivations of a stored object.
type Transform struct {
	// StreamingProfile names the transcode preset; empty disables it.
	StreamingProfile string
}

// ProgressFunc receives the bytes sent so far out of total.
type ProgressFunc func(sent, total int64)

type PutOptions struct {
	Folder       string
	ResourceKind string
	// ObjectID is the object name inside Folder.
	ObjectID    string
	ContentType string
	Format      string
	Tags        []string
	Progress    ProgressFunc
}

type PutResult struct {
	URL string
	// ObjectID is the full object key, folder included.
	ObjectID string
	Bytes    int64
	Format   string
}

// DerivedObject is an object that will be produced asynchronously from a
// stored one.
type DerivedObject struct {
	ObjectID string
	URL      string
}

// ObjectStore is the object-store collaborator used by the pipeline.
type ObjectStore interface {
	Put(ctx context.Context, data []byte, opts PutOptions) (*PutResult, error)
	// Derive schedules the derivations req.Transform asks for. A store
	// without derivation support returns nothing.
	Derive(ctx context.Context, req DeriveRequest) ([]DerivedObject, error)
	Delete(ctx context.Context, objectID string) error
	PresignGet(ctx context.Context, objectID string, ttl time.Duration) (string, error)
}

// DerivedID returns the key of the kind-derived object of mainID:
// "groups/g1/abc" becomes "groups/g1/preview-abc".
func DerivedID(mainID, kind string) string {
	dir, base := path.Split(mainID)
	return dir + DerivedName(base, kind)
}

// DerivedName prefixes an object name with its kind.
func DerivedName(name, kind string) string {
	return kind + "-" + name
}

// DerivedIDs lists every derived key that may exist for mainID.
func DerivedIDs(mainID string) []string {
	return []string{
		DerivedID(mainID, KindPreview),
		DerivedID(mainID, KindThumbnail),
		DerivedID(mainID, KindStream),
	}
}

func objectKey(folder, name string) string {
	return path.Join(strings.Trim(folder, "/"), name)
}

// formatOf falls back to the media subtype when no format was given.
func formatOf(opts PutOptions) string {
	if opts.Format != "" {
		return strings.TrimPrefix(opts.Format, ".")
	}
	if _, sub, ok := strings.Cut(opts.ContentType, "/"); ok {
		return sub
	}
	return ""
}
