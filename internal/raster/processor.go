// Package raster turns image bytes into bounded preview and square thumbnail
// JPEGs, and draws labeled placeholders when no real thumbnail can be made.
package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrEmptyImage is returned for zero-length input.
var ErrEmptyImage = errors.New("empty image data")

// Options bound the generated renditions.
type Options struct {
	PreviewWidth  int
	PreviewHeight int
	ThumbnailSize int
	Quality       int
}

func DefaultOptions() Options {
	return Options{
		PreviewWidth:  1280,
		PreviewHeight: 1280,
		ThumbnailSize: 256,
		Quality:       80,
	}
}

// ImageInfo is what we report about a source image without decoding pixels.
type ImageInfo struct {
	Width  int
	Height int
	Format string
}

// Processor is safe for concurrent use; it holds no mutable state.
type Processor struct {
	opts Options
}

// NewProcessor fills zero fields of opts with defaults.
func NewProcessor(opts Options) *Processor {
	def := DefaultOptions()
	if opts.PreviewWidth <= 0 {
		opts.PreviewWidth = def.PreviewWidth
	}
	if opts.PreviewHeight <= 0 {
		opts.PreviewHeight = def.PreviewHeight
	}
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = def.ThumbnailSize
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = def.Quality
	}
	return &Processor{opts: opts}
}

func (p *Processor) Options() Options {
	return p.opts
}

// Inspect reads dimensions and format from the image header.
func (p *Processor) Inspect(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, ErrEmptyImage
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("inspect image: %w", err)
	}
	return ImageInfo{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// ToPreview fits the image into the preview box, keeping its aspect ratio.
// Images already inside the box are re-encoded at their own size.
func (p *Processor) ToPreview(data []byte) ([]byte, error) {
	img, err := p.decode(data)
	if err != nil {
		return nil, err
	}
	out := imaging.Fit(img, p.opts.PreviewWidth, p.opts.PreviewHeight, imaging.Lanczos)
	return p.encode(out)
}

// ToThumbnail center-crops the image to a ThumbnailSize square.
func (p *Processor) ToThumbnail(data []byte) ([]byte, error) {
	img, err := p.decode(data)
	if err != nil {
		return nil, err
	}
	out := imaging.Fill(img, p.opts.ThumbnailSize, p.opts.ThumbnailSize, imaging.Center, imaging.Lanczos)
	return p.encode(out)
}

func (p *Processor) decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return flatten(img), nil
}

// flatten paints img over white so transparent areas do not turn black in JPEG.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

func (p *Processor) encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.opts.Quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
