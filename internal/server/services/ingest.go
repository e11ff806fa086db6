// Package services implements the ingestion use cases on top of the
// processing pipeline, the object store and the repositories.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/groupfiles/internal/common"
	"github.com/dmitrijs2005/groupfiles/internal/filex"
	"github.com/dmitrijs2005/groupfiles/internal/logging"
	"github.com/dmitrijs2005/groupfiles/internal/server/config"
	"github.com/dmitrijs2005/groupfiles/internal/server/dispatch"
	"github.com/dmitrijs2005/groupfiles/internal/server/metrics"
	"github.com/dmitrijs2005/groupfiles/internal/server/models"
	"github.com/dmitrijs2005/groupfiles/internal/server/profiles"
	"github.com/dmitrijs2005/groupfiles/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/groupfiles/internal/server/storage"
)

const octetStream = "application/octet-stream"

// UploadRequest is one inbound upload. It is owned by a single run.
type UploadRequest struct {
	Data        []byte
	UploaderID  string
	GroupID     string
	ContentType string
	FileName    string
	Caption     string
	Tags        []string
}

type Workspaces interface {
	With(fn func(ws *filex.Workspace) error) error
}

type Processor interface {
	Process(ctx context.Context, ws *filex.Workspace, data []byte, fileName string, profile profiles.Profile) (*dispatch.Envelope, error)
}

type ArtifactUploader interface {
	Upload(ctx context.Context, a storage.Artifacts, spec storage.UploadSpec, progress func(percent int)) (*storage.Outcome, error)
	Cleanup(ctx context.Context, ids ...string) error
}

type Recorder interface {
	ObserveIngest(category, outcome string, d time.Duration)
	Degradation(stage string)
}

// IngestDeps are the collaborators of IngestService.
type IngestDeps struct {
	Registry   *profiles.Registry
	Workspaces Workspaces
	Processor  Processor
	Uploader   ArtifactUploader
	Store      storage.ObjectStore
	// Metrics may be nil.
	Metrics Recorder
}

type IngestService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	deps        IngestDeps
	logger      logging.Logger

	folder          string
	streamingPreset string
	downloadTTL     time.Duration

	now   func() time.Time
	newID func() string
}

func NewIngestService(db *sql.DB, m repomanager.RepositoryManager, deps IngestDeps, cfg *config.Config, l logging.Logger) *IngestService {
	if deps.Metrics == nil {
		deps.Metrics = (*metrics.Metrics)(nil)
	}
	return &IngestService{
		db:              db,
		repomanager:     m,
		deps:            deps,
		logger:          l.With("module", "ingest"),
		folder:          cfg.S3Folder,
		streamingPreset: cfg.StreamingPreset,
		downloadTTL:     cfg.DownloadURLTTL,
		now:             time.Now,
		newID:           uuid.NewString,
	}
}

// Ingest validates req, derives its artifacts, stores everything and
// creates the file record.
//
// Validation failures (ErrUnsupportedType, ErrEmptyUpload, ErrFileTooLarge,
// ErrGroupNotFound, ErrUnauthorized) are returned before any workspace or
// network access and emit no event. Later failures emit a failed event;
// no record exists unless the call returns one.
func (s *IngestService) Ingest(ctx context.Context, req UploadRequest, n Notifier) (*models.FileRecord, error) {
	if n == nil {
		n = nopNotifier{}
	}
	start := s.now()
	runID := s.newID()
	log := s.logger.With("run_id", runID, "group_id", req.GroupID, "content_type", req.ContentType)

	profile, err := s.validate(ctx, req)
	if err != nil {
		s.deps.Metrics.ObserveIngest(profile.Category.String(), metrics.OutcomeRejected, 0)
		log.Info(ctx, "upload rejected", "file_name", req.FileName, "size", len(req.Data), "error", err)
		return nil, err
	}
	category := profile.Category.String()

	// every event of this run goes through one lock so percentages are
	// delivered in the order they were produced
	var mu sync.Mutex
	emit := func(e Event) {
		e.RunID = runID
		mu.Lock()
		defer mu.Unlock()
		n.Notify(ctx, e)
	}
	fail := func(err error) (*models.FileRecord, error) {
		outcome := metrics.OutcomeFailed
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			outcome = metrics.OutcomeCancelled
		}
		s.deps.Metrics.ObserveIngest(category, outcome, s.now().Sub(start))
		log.Error(ctx, "ingestion failed", "error", err)
		emit(Event{Kind: EventFailed, Reason: err.Error()})
		return nil, err
	}

	var env *dispatch.Envelope
	err = s.deps.Workspaces.With(func(ws *filex.Workspace) error {
		var perr error
		env, perr = s.deps.Processor.Process(ctx, ws, req.Data, req.FileName, profile)
		return perr
	})
	if err != nil {
		return fail(fmt.Errorf("processing: %w", err))
	}
	for _, stage := range env.Degraded {
		s.deps.Metrics.Degradation(stage)
	}

	id := s.newID()
	spec := storage.UploadSpec{
		Folder:      path.Join(s.folder, req.GroupID),
		ID:          id,
		ContentType: profile.ContentType,
		Format:      formatFor(req.FileName, profile),
		Tags:        req.Tags,
	}
	if profile.Category == profiles.CategoryVideo && s.streamingPreset != "" {
		spec.Transform = &storage.Transform{StreamingProfile: s.streamingPreset}
	}

	out, err := s.deps.Uploader.Upload(ctx, storage.Artifacts{
		Main:      req.Data,
		Preview:   env.Preview,
		Thumbnail: env.Thumbnail,
	}, spec, func(percent int) {
		emit(Event{Kind: EventProgress, Percent: percent})
	})
	if err != nil {
		return fail(err)
	}

	if err := ctx.Err(); err != nil {
		ids := out.ObjectIDs()
		if cerr := s.deps.Uploader.Cleanup(ctx, ids...); cerr != nil {
			log.Error(ctx, "cleanup after cancellation incomplete", "reconcile", true, "object_ids", ids, "error", cerr)
		}
		return fail(err)
	}

	record := s.buildRecord(id, req, profile, env, out)
	if err := s.repomanager.Files(s.db).Create(ctx, record); err != nil {
		log.Error(ctx, "file record not created, stored objects orphaned",
			"reconcile", true, "object_ids", out.ObjectIDs(), "error", err)
		return fail(fmt.Errorf("%w: %w", common.ErrPersistenceFailed, err))
	}

	s.deps.Metrics.ObserveIngest(category, metrics.OutcomeCompleted, s.now().Sub(start))
	log.Info(ctx, "file ingested", "file_id", record.ID, "size", record.Size, "degraded", env.Degraded)
	emit(Event{Kind: EventCompleted, RecordID: record.ID})
	return record, nil
}

// validate checks type, size and membership, in that order. The returned
// profile is set as soon as the type is known.
func (s *IngestService) validate(ctx context.Context, req UploadRequest) (profiles.Profile, error) {
	profile, ok := s.deps.Registry.Lookup(req.ContentType)
	if !ok {
		ct := profiles.NormalizeContentType(req.ContentType)
		if ct == "" || ct == octetStream {
			profile, ok = s.deps.Registry.LookupByExtension(req.FileName)
		}
	}
	if !ok {
		return profiles.Profile{}, fmt.Errorf("%w: %q", common.ErrUnsupportedType, req.ContentType)
	}

	size := int64(len(req.Data))
	if size == 0 {
		return profile, common.ErrEmptyUpload
	}
	if size > profile.MaxSizeBytes {
		return profile, fmt.Errorf("%w: %d bytes, limit %d for %s", common.ErrFileTooLarge, size, profile.MaxSizeBytes, profile.ContentType)
	}

	if _, err := s.membership(ctx, req.GroupID, req.UploaderID); err != nil {
		return profile, err
	}
	return profile, nil
}

func (s *IngestService) buildRecord(id string, req UploadRequest, profile profiles.Profile, env *dispatch.Envelope, out *storage.Outcome) *models.FileRecord {
	md := models.NewMetadata()
	md.Set("originalName", req.FileName)
	md.Set("contentType", profile.ContentType)
	md.Set("category", profile.Category.String())
	md.Set("uploadedAt", s.now().UTC().Format(time.RFC3339))
	md.Set("objectId", out.Main.ObjectID)
	if out.Preview != nil {
		md.Set("previewObjectId", out.Preview.ObjectID)
	}
	if out.Thumbnail != nil {
		md.Set("thumbnailObjectId", out.Thumbnail.ObjectID)
	}
	md.Merge(env.Metadata)
	if len(out.Derived) > 0 {
		md.Set("streamingUrl", out.Derived[0].URL)
	}
	if len(req.Tags) > 0 {
		md.Set("tags", slices.Clone(req.Tags))
	}

	record := &models.FileRecord{
		ID:          id,
		GroupID:     req.GroupID,
		UploaderID:  req.UploaderID,
		Name:        req.FileName,
		ContentType: profile.ContentType,
		Category:    profile.Category.String(),
		Size:        out.Main.Bytes,
		Caption:     req.Caption,
		ObjectID:    out.Main.ObjectID,
		URL:         out.Main.URL,
		Metadata:    md,
	}
	if out.Preview != nil {
		record.PreviewURL = out.Preview.URL
	}
	if out.Thumbnail != nil {
		record.ThumbnailURL = out.Thumbnail.URL
	}
	return record
}

// formatFor prefers the file's own extension when the profile lists it.
func formatFor(fileName string, profile profiles.Profile) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	if ext != "" && slices.Contains(profile.Extensions, ext) {
		return strings.TrimPrefix(ext, ".")
	}
	if len(profile.Extensions) > 0 {
		return strings.TrimPrefix(profile.Extensions[0], ".")
	}
	return ""
}
