package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/groupfiles/internal/filex"
	"github.com/dmitrijs2005/groupfiles/internal/logging"
)

var (
	ErrPoolClosed = errors.New("transcode pool closed")
	ErrQueueFull  = errors.New("transcode queue full")
)

type Transcoder interface {
	Transcode(ctx context.Context, input, output string) error
}

// StreamOutput describes the files a Transcoder produces.
type StreamOutput struct {
	Extension   string
	ContentType string
}

// TranscodePool is a Deriver that transcodes videos into a streaming
// rendition on a fixed number of workers and stores the result as
// stream-<id> next to the original.
type TranscodePool struct {
	transcoder Transcoder
	workspaces *filex.Provider
	store      ObjectStore
	output     StreamOutput
	workers    int
	recorder   BytesRecorder
	logger     logging.Logger

	jobs chan DeriveRequest
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
	// pending maps the key of every queued or running rendition to
	// whether it was discarded meanwhile.
	pending map[string]bool
}

func NewTranscodePool(tr Transcoder, wsp *filex.Provider, store ObjectStore, out StreamOutput, workers, queue int, l logging.Logger) *TranscodePool {
	if workers <= 0 {
		workers = 1
	}
	if queue < workers {
		queue = workers
	}
	return &TranscodePool{
		transcoder: tr,
		workspaces: wsp,
		store:      store,
		output:     out,
		workers:    workers,
		logger:     l.With("module", "transcode"),
		jobs:       make(chan DeriveRequest, queue),
		pending:    map[string]bool{},
	}
}

// SetRecorder reports bytes of stored renditions to r.
func (p *TranscodePool) SetRecorder(r BytesRecorder) {
	p.recorder = r
}

// Start launches the workers. They exit when ctx is done or after Stop.
func (p *TranscodePool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.work(ctx)
		}()
	}
}

// Stop refuses new jobs, lets queued ones finish and waits for the workers.
func (p *TranscodePool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Derive queues req without blocking and returns the key the rendition
// will be stored under.
func (p *TranscodePool) Derive(ctx context.Context, req DeriveRequest) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	key := streamKey(req)
	if _, ok := p.pending[key]; ok {
		return []string{key}, nil
	}
	select {
	case p.jobs <- req:
	default:
		return nil, ErrQueueFull
	}
	p.pending[key] = false
	return []string{key}, nil
}

// Discard drops the rendition stored under key if it is still queued or
// running. A rendition that is already being stored is deleted right after.
func (p *TranscodePool) Discard(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[key]; !ok {
		return false
	}
	p.pending[key] = true
	return true
}

func (p *TranscodePool) discarded(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending[key]
}

// finish forgets key and reports whether it was discarded.
func (p *TranscodePool) finish(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.pending[key]
	delete(p.pending, key)
	return d
}

func streamKey(req DeriveRequest) string {
	return objectKey(req.Folder, DerivedName(req.ObjectID, KindStream))
}

func (p *TranscodePool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-p.jobs:
			if !ok {
				return
			}
			if err := p.run(ctx, req); err != nil {
				p.logger.Error(ctx, "streaming rendition failed",
					"object_id", objectKey(req.Folder, req.ObjectID),
					"profile", req.Transform.StreamingProfile,
					"error", err)
			}
		}
	}
}

// run processes req unless it was discarded, and removes the stored
// rendition again when a discard raced with it.
func (p *TranscodePool) run(ctx context.Context, req DeriveRequest) error {
	key := streamKey(req)
	if p.discarded(key) {
		p.finish(key)
		p.logger.Info(ctx, "discarded rendition skipped", "object_id", key)
		return nil
	}
	err := p.process(ctx, req)
	if p.finish(key) && err == nil {
		if derr := p.store.Delete(context.WithoutCancel(ctx), key); derr != nil {
			return fmt.Errorf("remove discarded rendition: %w", derr)
		}
		p.logger.Info(ctx, "discarded rendition removed", "object_id", key)
	}
	return err
}

func (p *TranscodePool) process(ctx context.Context, req DeriveRequest) error {
	return p.workspaces.With(func(ws *filex.Workspace) error {
		input, err := ws.WriteFile("source", req.Data)
		if err != nil {
			return err
		}
		output := ws.Join(KindStream + p.output.Extension)
		if err := p.transcoder.Transcode(ctx, input, output); err != nil {
			return err
		}
		data, err := ws.ReadFile(filepath.Base(output))
		if err != nil {
			return fmt.Errorf("read rendition: %w", err)
		}
		if len(data) == 0 {
			return errors.New("empty rendition")
		}

		res, err := p.store.Put(ctx, data, PutOptions{
			Folder:       req.Folder,
			ResourceKind: KindStream,
			ObjectID:     DerivedName(req.ObjectID, KindStream),
			ContentType:  p.output.ContentType,
			Format:       p.output.Extension,
			Tags:         req.Tags,
		})
		if err != nil {
			return err
		}
		if p.recorder != nil {
			p.recorder.AddUploadedBytes(KindStream, res.Bytes)
		}
		p.logger.Info(ctx, "streaming rendition stored", "object_id", res.ObjectID, "bytes", res.Bytes)
		return nil
	})
}
