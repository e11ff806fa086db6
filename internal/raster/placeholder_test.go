package raster

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/groupfiles/internal/server/profiles"
)

func TestPlaceholder_IsReproducible(t *testing.T) {
	opts := Options{ThumbnailSize: 128, Quality: 80}

	a := NewPlaceholder(NewProcessor(opts)).Generate(profiles.CategoryVideo)
	b := NewPlaceholder(NewProcessor(opts)).Generate(profiles.CategoryVideo)
	require.NotEmpty(t, a)
	assert.True(t, bytes.Equal(a, b), "separate generators must agree byte for byte")

	img := decodeJPEG(t, a)
	assert.Equal(t, 128, img.Bounds().Dx())
	assert.Equal(t, 128, img.Bounds().Dy())
}

func TestPlaceholder_DiffersPerCategory(t *testing.T) {
	g := NewPlaceholder(NewProcessor(Options{ThumbnailSize: 128}))
	video := g.Generate(profiles.CategoryVideo)
	doc := g.Generate(profiles.CategoryDocument)
	assert.False(t, bytes.Equal(video, doc))
}

func TestPlaceholder_ReturnsCopies(t *testing.T) {
	g := NewPlaceholder(NewProcessor(Options{ThumbnailSize: 64}))
	first := g.Generate(profiles.CategoryImage)
	first[0] ^= 0xFF

	second := g.Generate(profiles.CategoryImage)
	assert.NotEqual(t, first[0], second[0])
}
