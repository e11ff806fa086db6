package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/groupfiles/internal/common"
	"github.com/dmitrijs2005/groupfiles/internal/logging"
)

const defaultCleanupTimeout = 30 * time.Second

// BytesRecorder counts stored bytes per resource kind.
type BytesRecorder interface {
	AddUploadedBytes(kind string, n int64)
}

// Artifacts are the buffers of one ingestion. Preview and Thumbnail may be nil.
type Artifacts struct {
	Main      []byte
	Preview   []byte
	Thumbnail []byte
}

// UploadSpec names the main object; derived objects are named after it.
type UploadSpec struct {
	Folder      string
	ID          string
	ContentType string
	Format      string
	Tags        []string
	Transform   *Transform
}

// Outcome holds the locators of stored objects. Preview and Thumbnail are
// nil when the corresponding artifact was absent. Derived lists objects
// scheduled from the main one.
type Outcome struct {
	Main      *PutResult
	Preview   *PutResult
	Thumbnail *PutResult
	Derived   []DerivedObject
}

// ObjectIDs lists the keys of every stored or scheduled object.
func (o *Outcome) ObjectIDs() []string {
	var ids []string
	for _, r := range []*PutResult{o.Main, o.Preview, o.Thumbnail} {
		if r != nil {
			ids = append(ids, r.ObjectID)
		}
	}
	for _, d := range o.Derived {
		ids = append(ids, d.ObjectID)
	}
	return ids
}

// Uploader stores the artifacts of an ingestion concurrently and removes
// them again when any part fails.
type Uploader struct {
	store          ObjectStore
	recorder       BytesRecorder
	logger         logging.Logger
	cleanupTimeout time.Duration
}

func NewUploader(store ObjectStore, recorder BytesRecorder, l logging.Logger) *Uploader {
	return &Uploader{
		store:          store,
		recorder:       recorder,
		logger:         l.With("module", "uploader"),
		cleanupTimeout: defaultCleanupTimeout,
	}
}

// Upload stores main, preview and thumbnail in parallel. Only the main
// upload drives progress, reported as a non-decreasing percentage that
// ends at 100. Any failure or cancellation deletes whatever was attempted
// and returns an error wrapping common.ErrUploadFailed. Derivations asked
// for by spec.Transform are scheduled only once every upload succeeded.
func (u *Uploader) Upload(ctx context.Context, a Artifacts, spec UploadSpec, progress func(percent int)) (*Outcome, error) {
	out := &Outcome{}
	var (
		mu        sync.Mutex
		attempted []string
	)
	put := func(ctx context.Context, data []byte, opts PutOptions) (*PutResult, error) {
		mu.Lock()
		attempted = append(attempted, objectKey(opts.Folder, opts.ObjectID))
		mu.Unlock()

		res, err := u.store.Put(ctx, data, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", opts.ResourceKind, err)
		}
		if u.recorder != nil {
			u.recorder.AddUploadedBytes(opts.ResourceKind, res.Bytes)
		}
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		last := -1
		report := func(percent int) {
			if progress != nil && percent > last {
				last = percent
				progress(percent)
			}
		}
		report(0)
		res, err := put(gctx, a.Main, PutOptions{
			Folder:       spec.Folder,
			ResourceKind: KindMain,
			ObjectID:     spec.ID,
			ContentType:  spec.ContentType,
			Format:       spec.Format,
			Tags:         spec.Tags,
			Progress: func(sent, total int64) {
				if total > 0 {
					report(int(sent * 100 / total))
				}
			},
		})
		if err != nil {
			return err
		}
		report(100)
		out.Main = res
		return nil
	})

	if len(a.Preview) > 0 {
		g.Go(func() error {
			res, err := put(gctx, a.Preview, PutOptions{
				Folder:       spec.Folder,
				ResourceKind: KindPreview,
				ObjectID:     DerivedName(spec.ID, KindPreview),
				ContentType:  "image/jpeg",
				Format:       "jpg",
				Tags:         spec.Tags,
			})
			out.Preview = res
			return err
		})
	}

	if len(a.Thumbnail) > 0 {
		g.Go(func() error {
			res, err := put(gctx, a.Thumbnail, PutOptions{
				Folder:       spec.Folder,
				ResourceKind: KindThumbnail,
				ObjectID:     DerivedName(spec.ID, KindThumbnail),
				ContentType:  "image/jpeg",
				Format:       "jpg",
				Tags:         spec.Tags,
			})
			out.Thumbnail = res
			return err
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if cerr := u.Cleanup(ctx, attempted...); cerr != nil {
			u.logger.Error(ctx, "cleanup after failed upload incomplete", "object_ids", attempted, "error", cerr)
		}
		return nil, fmt.Errorf("%w: %w", common.ErrUploadFailed, err)
	}

	if spec.Transform != nil && spec.Transform.StreamingProfile != "" {
		derived, err := u.store.Derive(ctx, DeriveRequest{
			Folder:      spec.Folder,
			ObjectID:    spec.ID,
			ContentType: spec.ContentType,
			Tags:        spec.Tags,
			Data:        a.Main,
			Transform:   *spec.Transform,
		})
		if err != nil {
			u.logger.Warn(ctx, "derivation not scheduled", "object_id", out.Main.ObjectID, "error", err)
		}
		out.Derived = derived
	}
	return out, nil
}

// Cleanup deletes ids on a context detached from ctx's cancellation, so it
// still runs after the caller gave up. Every id is tried; failures are
// aggregated.
func (u *Uploader) Cleanup(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cleanupTimeout)
	defer cancel()

	var result *multierror.Error
	for _, id := range ids {
		if err := u.store.Delete(ctx, id); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		u.logger.Info(ctx, "object removed", "object_id", id)
	}
	return result.ErrorOrNil()
}
