package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/groupfiles/internal/common"
	"github.com/dmitrijs2005/groupfiles/internal/document"
	"github.com/dmitrijs2005/groupfiles/internal/filex"
	"github.com/dmitrijs2005/groupfiles/internal/logging"
	"github.com/dmitrijs2005/groupfiles/internal/raster"
	"github.com/dmitrijs2005/groupfiles/internal/server/dispatch"
	"github.com/dmitrijs2005/groupfiles/internal/server/metrics"
	"github.com/dmitrijs2005/groupfiles/internal/server/models"
	"github.com/dmitrijs2005/groupfiles/internal/server/repositories/groups"
)

type fakeRenderer struct {
	res *document.Result
	err error
}

func (f *fakeRenderer) Supports(contentType string) bool { return true }

func (f *fakeRenderer) Render(ctx context.Context, ws *filex.Workspace, data []byte, contentType string) (*document.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func newDispatcher(renderer dispatch.DocumentRenderer) *dispatch.Dispatcher {
	proc := raster.NewProcessor(raster.Options{})
	return dispatch.New(nil, nil, proc, renderer, raster.NewPlaceholder(proc), logging.NewNop())
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: uint8(x ^ y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func request(data []byte, contentType, name string) UploadRequest {
	return UploadRequest{
		Data:        data,
		UploaderID:  "u1",
		GroupID:     "g1",
		ContentType: contentType,
		FileName:    name,
	}
}

func assertWorkspacesRemoved(t *testing.T, h *harness) {
	t.Helper()
	for _, p := range h.workspaces.acquired() {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "workspace %s still exists", p)
	}
}

func TestIngest_Image(t *testing.T) {
	h := newHarness(t, nil, newDispatcher(&fakeRenderer{}))
	n := &recordingNotifier{}

	req := request(pngBytes(t, 1600, 900), "image/png", "diagram.png")
	req.Caption = "architecture"
	req.Tags = []string{"design", "v2"}

	rec, err := h.svc.Ingest(context.Background(), req, n)
	require.NoError(t, err)

	assert.Equal(t, "file-1", rec.ID)
	assert.Equal(t, "image", rec.Category)
	assert.Equal(t, "groups/g1/file-1", rec.ObjectID)
	assert.Equal(t, "mem://groups/g1/file-1", rec.URL)
	assert.Equal(t, "mem://groups/g1/preview-file-1", rec.PreviewURL)
	assert.Equal(t, "mem://groups/g1/thumb-file-1", rec.ThumbnailURL)
	assert.Equal(t, int64(len(req.Data)), rec.Size)
	assert.Equal(t, "architecture", rec.Caption)

	w, _ := rec.Metadata.Get("width")
	hgt, _ := rec.Metadata.Get("height")
	assert.Equal(t, 1600, w)
	assert.Equal(t, 900, hgt)
	tags, _ := rec.Metadata.Get("tags")
	assert.Equal(t, []string{"design", "v2"}, tags)
	assert.Equal(t, []string{
		"originalName", "contentType", "category", "uploadedAt", "objectId",
		"previewObjectId", "thumbnailObjectId", "width", "height", "format", "tags",
	}, rec.Metadata.Keys())

	preview, _, err := image.DecodeConfig(bytes.NewReader(h.store.objects["groups/g1/preview-file-1"]))
	require.NoError(t, err)
	assert.LessOrEqual(t, preview.Width, 1280)
	assert.LessOrEqual(t, preview.Height, 1280)
	thumb, _, err := image.DecodeConfig(bytes.NewReader(h.store.objects["groups/g1/thumb-file-1"]))
	require.NoError(t, err)
	assert.Equal(t, 256, thumb.Width)
	assert.Equal(t, 256, thumb.Height)

	require.Len(t, h.files.created, 1)
	assert.Same(t, rec, h.files.created[0])

	kinds := n.kinds()
	assert.Equal(t, EventProgress, kinds[0])
	assert.Equal(t, Event{Kind: EventCompleted, RunID: "run-1", RecordID: "file-1"}, n.last())
	var percents []int
	for _, e := range n.events {
		if e.Kind == EventProgress {
			percents = append(percents, e.Percent)
		}
	}
	assert.IsNonDecreasing(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])

	assert.Len(t, h.workspaces.acquired(), 1)
	assertWorkspacesRemoved(t, h)
	assert.Equal(t, []string{"image/completed"}, h.metrics.outcomes)
}

func TestIngest_SizeCeiling(t *testing.T) {
	proc := &fakeProcessor{}
	h := newHarness(t, nil, proc)

	_, err := h.svc.Ingest(context.Background(), request(make([]byte, 10<<20), "image/png", "big.png"), nil)
	require.NoError(t, err)
	require.Len(t, h.workspaces.acquired(), 1)

	n := &recordingNotifier{}
	_, err = h.svc.Ingest(context.Background(), request(make([]byte, 20<<20), "image/png", "huge.png"), n)
	require.ErrorIs(t, err, common.ErrFileTooLarge)

	assert.Len(t, h.workspaces.acquired(), 1, "rejected upload must not acquire a workspace")
	assert.Equal(t, 1, proc.calls)
	assert.Len(t, h.files.created, 1)
	assert.Empty(t, n.events)
	assert.Equal(t, []string{"image/completed", "image/rejected"}, h.metrics.outcomes)
}

func TestIngest_Document(t *testing.T) {
	pdf := []byte("%PDF-1.7\n% five pages\n")

	t.Run("rendered", func(t *testing.T) {
		h := newHarness(t, nil, newDispatcher(&fakeRenderer{res: &document.Result{
			Preview:   []byte("page-1-preview"),
			Thumbnail: []byte("page-1-thumb"),
			PageCount: 5,
		}}))

		rec, err := h.svc.Ingest(context.Background(), request(pdf, "application/pdf", "report.pdf"), nil)
		require.NoError(t, err)

		pages, _ := rec.Metadata.Get("pageCount")
		assert.Equal(t, 5, pages)
		assert.True(t, rec.HasPreview())
		assert.True(t, rec.HasThumbnail())
		assert.Equal(t, []byte("page-1-thumb"), h.store.objects["groups/g1/thumb-file-1"])
	})

	t.Run("rendering failed", func(t *testing.T) {
		h := newHarness(t, nil, newDispatcher(&fakeRenderer{
			err: fmt.Errorf("%w: page image not found after 3 attempts", common.ErrRenderingFailed),
		}))
		n := &recordingNotifier{}

		rec, err := h.svc.Ingest(context.Background(), request(pdf, "application/pdf", "report.pdf"), n)
		require.NoError(t, err)

		require.Len(t, h.files.created, 1)
		assert.False(t, rec.HasPreview())
		assert.False(t, rec.HasThumbnail())
		_, ok := rec.Metadata.Get("pageCount")
		assert.False(t, ok)
		assert.ElementsMatch(t, []string{"groups/g1/file-1"}, h.store.keys())
		assert.Equal(t, EventCompleted, n.last().Kind)
		assert.Equal(t, []string{dispatch.StageDocument}, h.metrics.degradations)
		assertWorkspacesRemoved(t, h)
	})
}

func TestIngest_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		fileName    string
		data        []byte
		membership  groups.Membership
		groupErr    error
		want        error
		groupCalls  int
	}{
		{
			name:        "not a member",
			contentType: "image/png",
			fileName:    "a.png",
			data:        []byte("png"),
			want:        common.ErrUnauthorized,
			groupCalls:  1,
		},
		{
			name:        "group not found",
			contentType: "image/png",
			fileName:    "a.png",
			data:        []byte("png"),
			groupErr:    common.ErrGroupNotFound,
			want:        common.ErrGroupNotFound,
			groupCalls:  1,
		},
		{
			name:        "unsupported type",
			contentType: "application/x-msdownload",
			fileName:    "setup.exe",
			data:        []byte("MZ"),
			membership:  groups.Membership{IsMember: true},
			want:        common.ErrUnsupportedType,
		},
		{
			name:        "octet stream with unknown extension",
			contentType: "application/octet-stream",
			fileName:    "blob.bin",
			data:        []byte{1},
			membership:  groups.Membership{IsMember: true},
			want:        common.ErrUnsupportedType,
		},
		{
			name:        "empty upload",
			contentType: "text/plain",
			fileName:    "empty.txt",
			membership:  groups.Membership{IsMember: true},
			want:        common.ErrEmptyUpload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcessor{}
			h := newHarness(t, nil, proc)
			h.groups.m = tt.membership
			h.groups.err = tt.groupErr
			n := &recordingNotifier{}

			rec, err := h.svc.Ingest(context.Background(), request(tt.data, tt.contentType, tt.fileName), n)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, rec)

			assert.Equal(t, tt.groupCalls, h.groups.calls)
			assert.Empty(t, h.workspaces.acquired())
			assert.Zero(t, proc.calls)
			assert.Empty(t, h.store.keys())
			assert.Empty(t, h.files.created)
			assert.Empty(t, n.events)
		})
	}
}

func TestIngest_OctetStreamResolvedByExtension(t *testing.T) {
	h := newHarness(t, nil, &fakeProcessor{})

	rec, err := h.svc.Ingest(context.Background(), request([]byte("hello"), "application/octet-stream", "Notes.TXT"), nil)
	require.NoError(t, err)

	assert.Equal(t, "text/plain", rec.ContentType)
	assert.Equal(t, "text", rec.Category)
	assert.False(t, rec.HasPreview())
}

func TestIngest_VideoRequestsStreamingTranscode(t *testing.T) {
	env := &dispatch.Envelope{Metadata: models.NewMetadata(), Thumbnail: []byte("frame"), Degraded: []string{dispatch.StageProbe}}
	env.Metadata.Set("category", "video")
	env.Metadata.Set("duration", nil)
	h := newHarness(t, nil, &fakeProcessor{env: env})

	rec, err := h.svc.Ingest(context.Background(), request([]byte("mp4"), "video/mp4", "clip.mp4"), nil)
	require.NoError(t, err)

	streaming, ok := rec.Metadata.Get("streamingUrl")
	require.True(t, ok)
	assert.Equal(t, "mem://groups/g1/stream-file-1", streaming)
	assert.Equal(t, []string{"groups/g1/stream-file-1"}, h.store.derived)
	d, ok := rec.Metadata.Get("duration")
	assert.True(t, ok)
	assert.Nil(t, d)
	assert.True(t, rec.HasThumbnail())
	assert.False(t, rec.HasPreview())
	assert.Equal(t, []string{dispatch.StageProbe}, h.metrics.degradations)
}

func TestIngest_ProcessingFailure(t *testing.T) {
	h := newHarness(t, nil, &fakeProcessor{err: errBoom{}})
	n := &recordingNotifier{}

	_, err := h.svc.Ingest(context.Background(), request([]byte("x"), "text/plain", "a.txt"), n)
	require.Error(t, err)

	assert.Equal(t, []EventKind{EventFailed}, n.kinds())
	assert.Contains(t, n.last().Reason, "boom")
	assert.Empty(t, h.store.keys())
	assert.Empty(t, h.files.created)
	assertWorkspacesRemoved(t, h)
	assert.Equal(t, []string{"text/" + metrics.OutcomeFailed}, h.metrics.outcomes)
}

func TestIngest_UploadFailure(t *testing.T) {
	h := newHarness(t, nil, newDispatcher(&fakeRenderer{}))
	h.store.failKind = "thumb"
	n := &recordingNotifier{}

	_, err := h.svc.Ingest(context.Background(), request(pngBytes(t, 64, 64), "image/png", "a.png"), n)
	require.ErrorIs(t, err, common.ErrUploadFailed)

	assert.Empty(t, h.store.keys(), "stored objects must be removed")
	assert.Empty(t, h.files.created)
	assert.Equal(t, EventFailed, n.last().Kind)
	assert.Equal(t, []string{"image/failed"}, h.metrics.outcomes)
}

func TestIngest_PersistenceFailureKeepsObjects(t *testing.T) {
	h := newHarness(t, nil, &fakeProcessor{})
	h.files.createErr = errBoom{}
	n := &recordingNotifier{}

	_, err := h.svc.Ingest(context.Background(), request([]byte("x"), "text/plain", "a.txt"), n)
	require.ErrorIs(t, err, common.ErrPersistenceFailed)

	assert.Equal(t, []string{"groups/g1/file-1"}, h.store.keys())
	assert.Empty(t, h.store.deleted)
	assert.Equal(t, EventFailed, n.last().Kind)
}

func TestIngest_CancelledDuringUpload(t *testing.T) {
	h := newHarness(t, nil, &fakeProcessor{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := &recordingNotifier{onEvent: func(e Event) {
		if e.Kind == EventProgress && e.Percent == 100 {
			cancel()
		}
	}}

	_, err := h.svc.Ingest(ctx, request([]byte("some text"), "text/plain", "a.txt"), n)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	assert.Empty(t, h.store.keys())
	assert.Contains(t, h.store.deleted, "groups/g1/file-1")
	assert.Empty(t, h.files.created)
	assert.Equal(t, EventFailed, n.last().Kind)
	assert.Equal(t, []string{"text/" + metrics.OutcomeCancelled}, h.metrics.outcomes)
}

func TestIngest_CancelledAfterUploadDropsStream(t *testing.T) {
	env := &dispatch.Envelope{Metadata: models.NewMetadata()}
	h := newHarness(t, nil, &fakeProcessor{env: env})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.store.onDerive = cancel

	_, err := h.svc.Ingest(ctx, request([]byte("mp4"), "video/mp4", "clip.mp4"), nil)
	require.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, h.store.keys())
	assert.ElementsMatch(t, []string{"groups/g1/file-1", "groups/g1/stream-file-1"}, h.store.deleted)
	assert.Empty(t, h.files.created)
}

func TestIngest_UploadFailureSchedulesNoStream(t *testing.T) {
	env := &dispatch.Envelope{Metadata: models.NewMetadata(), Thumbnail: []byte("frame")}
	h := newHarness(t, nil, &fakeProcessor{env: env})
	h.store.failKind = "thumb"

	_, err := h.svc.Ingest(context.Background(), request([]byte("mp4"), "video/mp4", "clip.mp4"), nil)
	require.ErrorIs(t, err, common.ErrUploadFailed)

	assert.Empty(t, h.store.derived)
	assert.Empty(t, h.store.keys())
}

func TestFormatFor(t *testing.T) {
	h := newHarness(t, nil, &fakeProcessor{})
	jpeg, ok := h.svc.deps.Registry.Lookup("image/jpeg")
	require.True(t, ok)

	assert.Equal(t, "jpeg", formatFor("photo.JPEG", jpeg))
	assert.Equal(t, "jpg", formatFor("photo", jpeg))
	assert.Equal(t, "jpg", formatFor("photo.png", jpeg))
}
