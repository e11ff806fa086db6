package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_KeepsInsertionOrder(t *testing.T) {
	m := NewMetadata()
	m.Set("width", 640)
	m.Set("height", 480)
	m.Set("format", "png")
	m.Set("width", 800)

	assert.Equal(t, []string{"width", "height", "format"}, m.Keys())
	v, ok := m.Get("width")
	require.True(t, ok)
	assert.Equal(t, 800, v)

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"width":800,"height":480,"format":"png"}`, string(out))
}

func TestMetadata_ZeroValueAndNil(t *testing.T) {
	var m Metadata
	m.Set("k", "v")
	assert.Equal(t, 1, m.Len())

	var nilMeta *Metadata
	assert.Equal(t, 0, nilMeta.Len())
	assert.Nil(t, nilMeta.Keys())
	_, ok := nilMeta.Get("k")
	assert.False(t, ok)

	out, err := nilMeta.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(out))
}

func TestMetadata_UnmarshalPreservesOrder(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"z":1,"a":"x","m":{"nested":true},"n":null}`), &m))

	assert.Equal(t, []string{"z", "a", "m", "n"}, m.Keys())
	v, _ := m.Get("z")
	assert.Equal(t, float64(1), v)

	again, err := json.Marshal(&m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"z":1,"a":"x","m":{"nested":true},"n":null}`, string(again))
}

func TestMetadata_UnmarshalRejectsNonObject(t *testing.T) {
	var m Metadata
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &m))
	assert.Error(t, json.Unmarshal([]byte(`"text"`), &m))
	assert.Equal(t, 0, m.Len())
}

func TestMetadata_RoundTripThroughRecordColumn(t *testing.T) {
	m := NewMetadata()
	m.Set("originalName", "clip.mp4")
	m.Set("duration", nil)
	m.Set("tags", []string{"a", "b"})
	m.Set("width", 1280)

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"originalName":"clip.mp4","duration":null,"tags":["a","b"],"width":1280}`, string(raw))

	back := NewMetadata()
	require.NoError(t, json.Unmarshal(raw, back))
	assert.Equal(t, m.Keys(), back.Keys())
	d, ok := back.Get("duration")
	assert.True(t, ok)
	assert.Nil(t, d)
}

func TestMetadata_Merge(t *testing.T) {
	a := NewMetadata()
	a.Set("category", "image")
	b := NewMetadata()
	b.Set("tags", []string{"x"})
	b.Set("category", "video")

	a.Merge(b)
	a.Merge(nil)
	assert.Equal(t, []string{"category", "tags"}, a.Keys())
	v, _ := a.Get("category")
	assert.Equal(t, "video", v)
}

func TestFileRecord_Artifacts(t *testing.T) {
	r := &FileRecord{PreviewURL: "https://cdn/preview-1"}
	assert.True(t, r.HasPreview())
	assert.False(t, r.HasThumbnail())
}
