// Package dispatch routes a validated upload to the processor for its
// category and collects the derived artifacts into one Envelope.
package dispatch

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/groupfiles/internal/common"
	"github.com/dmitrijs2005/groupfiles/internal/document"
	"github.com/dmitrijs2005/groupfiles/internal/ffmpeg"
	"github.com/dmitrijs2005/groupfiles/internal/filex"
	"github.com/dmitrijs2005/groupfiles/internal/logging"
	"github.com/dmitrijs2005/groupfiles/internal/raster"
	"github.com/dmitrijs2005/groupfiles/internal/server/models"
	"github.com/dmitrijs2005/groupfiles/internal/server/profiles"
)

// Degradation stages reported in Envelope.Degraded.
const (
	StageImage    = "image"
	StageProbe    = "probe"
	StageFrames   = "frames"
	StageDocument = "document"
)

// frameOffsets are the video sample points, in selection order.
var frameOffsets = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second, 10 * time.Second}

type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

type FrameSampler interface {
	ExtractFrame(ctx context.Context, input string, at time.Duration, output string) error
}

type ImageProcessor interface {
	Inspect(data []byte) (raster.ImageInfo, error)
	ToPreview(data []byte) ([]byte, error)
	ToThumbnail(data []byte) ([]byte, error)
}

type DocumentRenderer interface {
	Supports(contentType string) bool
	Render(ctx context.Context, ws *filex.Workspace, data []byte, contentType string) (*document.Result, error)
}

type PlaceholderGenerator interface {
	Generate(category profiles.Category) []byte
}

// Envelope is the normalized output of processing. Preview and Thumbnail are
// nil when no artifact was produced.
type Envelope struct {
	Preview   []byte
	Thumbnail []byte
	Metadata  *models.Metadata
	// Degraded lists the stages that failed and were recovered locally.
	Degraded []string
}

type Dispatcher struct {
	prober      Prober
	frames      FrameSampler
	images      ImageProcessor
	documents   DocumentRenderer
	placeholder PlaceholderGenerator
	logger      logging.Logger
}

func New(prober Prober, frames FrameSampler, images ImageProcessor, documents DocumentRenderer, placeholder PlaceholderGenerator, l logging.Logger) *Dispatcher {
	return &Dispatcher{
		prober:      prober,
		frames:      frames,
		images:      images,
		documents:   documents,
		placeholder: placeholder,
		logger:      l.With("module", "dispatch"),
	}
}

// Process derives artifacts for data according to profile. Category-specific
// failures are absorbed and listed in Envelope.Degraded; only cancellation,
// workspace I/O errors and an unknown category fail the call.
func (d *Dispatcher) Process(ctx context.Context, ws *filex.Workspace, data []byte, fileName string, profile profiles.Profile) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env := &Envelope{Metadata: models.NewMetadata()}
	env.Metadata.Set("category", profile.Category.String())

	var err error
	switch profile.Category {
	case profiles.CategoryImage:
		d.processImage(ctx, data, profile, env)
	case profiles.CategoryVideo:
		err = d.processVideo(ctx, ws, data, fileName, profile, env)
	case profiles.CategoryAudio:
		err = d.processAudio(ctx, ws, data, fileName, profile, env)
	case profiles.CategoryDocument, profiles.CategoryPresentation:
		err = d.processDocument(ctx, ws, data, profile, env)
	case profiles.CategoryText, profiles.CategoryCode, profiles.CategoryArchive:
	default:
		return nil, fmt.Errorf("dispatch: unhandled category %s", profile.Category)
	}
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (d *Dispatcher) processImage(ctx context.Context, data []byte, profile profiles.Profile, env *Envelope) {
	info, err := d.images.Inspect(data)
	if err != nil {
		d.degrade(ctx, env, StageImage, err)
	} else {
		env.Metadata.Set("width", info.Width)
		env.Metadata.Set("height", info.Height)
		env.Metadata.Set("format", info.Format)
	}

	if profile.GeneratePreview {
		preview, err := d.images.ToPreview(data)
		if err != nil {
			d.degrade(ctx, env, StageImage, err)
		} else {
			env.Preview = preview
		}
	}
	if profile.GenerateThumbnail {
		thumb, err := d.images.ToThumbnail(data)
		if err != nil {
			d.degrade(ctx, env, StageImage, err)
			thumb = d.placeholder.Generate(profile.Category)
		}
		env.Thumbnail = thumb
	}
}

func (d *Dispatcher) processVideo(ctx context.Context, ws *filex.Workspace, data []byte, fileName string, profile profiles.Profile, env *Envelope) error {
	input, err := ws.WriteFile(inputName(fileName, profile), data)
	if err != nil {
		return err
	}

	if profile.GenerateThumbnail || profile.GeneratePreview {
		frame := d.sampleFrame(ctx, ws, input)
		if err := ctx.Err(); err != nil {
			return err
		}
		d.applyFrame(ctx, frame, profile, env)
	}

	res := d.probe(ctx, input, env)
	env.Metadata.Set("duration", valueOrNil(res, func(r *ffmpeg.ProbeResult) *float64 { return r.DurationSeconds }))
	env.Metadata.Set("bitrate", valueOrNil(res, func(r *ffmpeg.ProbeResult) *int64 { return r.Bitrate }))
	env.Metadata.Set("codec", codecOrNil(res))
	env.Metadata.Set("width", valueOrNil(res, func(r *ffmpeg.ProbeResult) *int { return r.Width }))
	env.Metadata.Set("height", valueOrNil(res, func(r *ffmpeg.ProbeResult) *int { return r.Height }))
	env.Metadata.Set("fps", valueOrNil(res, func(r *ffmpeg.ProbeResult) *float64 { return r.FrameRate }))
	return ctx.Err()
}

// sampleFrame grabs all sample points concurrently and returns the first
// non-empty one in frameOffsets order, or nil.
func (d *Dispatcher) sampleFrame(ctx context.Context, ws *filex.Workspace, input string) []byte {
	outputs := make([]string, len(frameOffsets))
	var g errgroup.Group
	for i, at := range frameOffsets {
		outputs[i] = ws.Join("frame-" + strconv.Itoa(int(at.Seconds())) + ".jpg")
		g.Go(func() error {
			if err := d.frames.ExtractFrame(ctx, input, at, outputs[i]); err != nil {
				d.logger.Warn(ctx, "frame sample failed", "offset", at.String(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, out := range outputs {
		frame, err := ws.ReadFile(filepath.Base(out))
		if err == nil && len(frame) > 0 {
			d.logger.Debug(ctx, "frame selected", "offset", frameOffsets[i].String())
			return frame
		}
	}
	return nil
}

func (d *Dispatcher) applyFrame(ctx context.Context, frame []byte, profile profiles.Profile, env *Envelope) {
	if frame == nil {
		d.degrade(ctx, env, StageFrames, fmt.Errorf("no usable frame at %v", frameOffsets))
	}

	if frame != nil && profile.GeneratePreview {
		preview, err := d.images.ToPreview(frame)
		if err != nil {
			d.degrade(ctx, env, StageFrames, err)
		} else {
			env.Preview = preview
		}
	}
	if profile.GenerateThumbnail {
		var thumb []byte
		if frame != nil {
			var err error
			if thumb, err = d.images.ToThumbnail(frame); err != nil {
				d.degrade(ctx, env, StageFrames, err)
			}
		}
		if thumb == nil {
			thumb = d.placeholder.Generate(profile.Category)
		}
		env.Thumbnail = thumb
	}
}

func (d *Dispatcher) processAudio(ctx context.Context, ws *filex.Workspace, data []byte, fileName string, profile profiles.Profile, env *Envelope) error {
	input, err := ws.WriteFile(inputName(fileName, profile), data)
	if err != nil {
		return err
	}
	res := d.probe(ctx, input, env)
	env.Metadata.Set("duration", valueOrNil(res, func(r *ffmpeg.ProbeResult) *float64 { return r.DurationSeconds }))
	env.Metadata.Set("bitrate", valueOrNil(res, func(r *ffmpeg.ProbeResult) *int64 { return r.Bitrate }))
	env.Metadata.Set("codec", codecOrNil(res))
	env.Metadata.Set("sampleRate", valueOrNil(res, func(r *ffmpeg.ProbeResult) *int { return r.SampleRate }))
	env.Metadata.Set("channels", valueOrNil(res, func(r *ffmpeg.ProbeResult) *int { return r.Channels }))
	return ctx.Err()
}

func (d *Dispatcher) probe(ctx context.Context, input string, env *Envelope) *ffmpeg.ProbeResult {
	res, err := d.prober.Probe(ctx, input)
	if err != nil {
		d.degrade(ctx, env, StageProbe, err)
		return nil
	}
	return res
}

// processDocument degrades to "no preview" on rendering failure; documents do
// not get placeholders.
func (d *Dispatcher) processDocument(ctx context.Context, ws *filex.Workspace, data []byte, profile profiles.Profile, env *Envelope) error {
	if !d.documents.Supports(profile.ContentType) {
		d.logger.Debug(ctx, "no renderer for document type", "content_type", profile.ContentType)
		return nil
	}
	res, err := d.documents.Render(ctx, ws, data, profile.ContentType)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		d.degrade(ctx, env, StageDocument, err)
		return nil
	}

	env.Metadata.Set("pageCount", res.PageCount)
	if profile.GeneratePreview {
		env.Preview = res.Preview
	}
	if profile.GenerateThumbnail {
		env.Thumbnail = res.Thumbnail
	}
	return nil
}

func (d *Dispatcher) degrade(ctx context.Context, env *Envelope, stage string, err error) {
	if !slices.Contains(env.Degraded, stage) {
		env.Degraded = append(env.Degraded, stage)
	}
	d.logger.Warn(ctx, "processing degraded", "stage", stage, "error", fmt.Errorf("%w: %w", common.ErrProcessingDegraded, err))
}

// inputName keeps the upload's extension so external tools can sniff it.
func inputName(fileName string, profile profiles.Profile) string {
	ext := filepath.Ext(filepath.Base(fileName))
	if ext == "" && len(profile.Extensions) > 0 {
		ext = profile.Extensions[0]
	}
	return "input" + ext
}

func valueOrNil[T any](res *ffmpeg.ProbeResult, field func(*ffmpeg.ProbeResult) *T) any {
	if res == nil {
		return nil
	}
	if v := field(res); v != nil {
		return *v
	}
	return nil
}

func codecOrNil(res *ffmpeg.ProbeResult) any {
	if res == nil || res.Codec == "" {
		return nil
	}
	return res.Codec
}
