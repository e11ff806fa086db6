package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/dmitrijs2005/groupfiles/internal/server/profiles"
)

const placeholderNote = "preview unavailable"

var (
	placeholderBackground = color.RGBA{R: 0xEC, G: 0xEF, B: 0xF1, A: 0xFF}
	placeholderFrame      = color.RGBA{R: 0xB0, G: 0xBE, B: 0xC5, A: 0xFF}
	placeholderLabel      = color.RGBA{R: 0x37, G: 0x47, B: 0x4F, A: 0xFF}
	placeholderMuted      = color.RGBA{R: 0x78, G: 0x90, B: 0x9C, A: 0xFF}
)

// Placeholder draws a neutral ThumbnailSize square carrying the category
// name and a "preview unavailable" note. Output depends only on the category
// and the processor options, so results are cached.
type Placeholder struct {
	proc *Processor

	mu    sync.Mutex
	cache map[profiles.Category][]byte
}

func NewPlaceholder(proc *Processor) *Placeholder {
	return &Placeholder{proc: proc, cache: make(map[profiles.Category][]byte)}
}

// Generate never fails. Callers get their own copy of the bytes.
func (g *Placeholder) Generate(category profiles.Category) []byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.cache[category]; ok {
		return bytes.Clone(b)
	}
	b := g.render(category)
	g.cache[category] = b
	return bytes.Clone(b)
}

func (g *Placeholder) render(category profiles.Category) []byte {
	size := g.proc.opts.ThumbnailSize
	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(placeholderBackground), image.Point{}, draw.Src)

	inset := size / 16
	frame := image.Rect(inset, inset, size-inset, size-inset)
	strokeRect(canvas, frame, 2, placeholderFrame)

	face := basicfont.Face7x13
	label := strings.ToUpper(category.String())
	drawCentered(canvas, face, label, size*9/20, placeholderLabel)
	drawCentered(canvas, face, placeholderNote, size*9/20+face.Height+6, placeholderMuted)

	out, err := g.proc.encode(canvas)
	if err != nil {
		// unreachable: encoding an RGBA canvas into memory cannot fail.
		panic(err)
	}
	return out
}

func drawCentered(dst draw.Image, face font.Face, s string, baseline int, c color.Color) {
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(c), Face: face}
	width := d.MeasureString(s).Ceil()
	x := (dst.Bounds().Dx() - width) / 2
	if x < 0 {
		x = 0
	}
	d.Dot = fixed.P(x, baseline)
	d.DrawString(s)
}

func strokeRect(dst draw.Image, r image.Rectangle, w int, c color.Color) {
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w),
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y),
		image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e, src, image.Point{}, draw.Src)
	}
}
