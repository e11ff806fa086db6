package ffmpeg

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Preset describes the output settings of a streaming transcode.
type Preset struct {
	Name         string
	Container    string
	Extension    string
	ContentType  string
	VideoCodec   string
	AudioCodec   string
	VideoBitrate string
	AudioBitrate string
	PixelFormat  string
	FrameRate    string
	Filters      []string
	ExtraArgs    []string
}

// DefaultStreamingPreset is a 720p H.264/AAC fragmented MP4 that players can
// start before the download finishes.
func DefaultStreamingPreset() Preset {
	return Preset{
		Name:         "stream_720p",
		Container:    "mp4",
		Extension:    ".mp4",
		ContentType:  "video/mp4",
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		VideoBitrate: "2500k",
		AudioBitrate: "128k",
		PixelFormat:  "yuv420p",
		Filters:      []string{"scale=-2:'min(720,ih)'"},
		ExtraArgs:    []string{"-preset", "veryfast", "-movflags", "+frag_keyframe+empty_moov+default_base_moof"},
	}
}

// Args returns the encoder arguments of the preset, without input/output.
func (p Preset) Args() []string {
	args := make([]string, 0, 16+len(p.ExtraArgs))
	if p.VideoCodec != "" {
		args = append(args, "-c:v", p.VideoCodec)
	}
	if p.AudioCodec != "" {
		args = append(args, "-c:a", p.AudioCodec)
	}
	if p.VideoBitrate != "" {
		args = append(args, "-b:v", p.VideoBitrate)
	}
	if p.AudioBitrate != "" {
		args = append(args, "-b:a", p.AudioBitrate)
	}
	if p.PixelFormat != "" {
		args = append(args, "-pix_fmt", p.PixelFormat)
	}
	if p.FrameRate != "" {
		args = append(args, "-r", p.FrameRate)
	}
	if len(p.Filters) > 0 {
		args = append(args, "-vf", strings.Join(p.Filters, ","))
	}
	if p.Container != "" {
		args = append(args, "-f", p.Container)
	}
	args = append(args, p.ExtraArgs...)
	return args
}

// LoadPresetFile reads a single named preset from a YAML file:
//
//	presets:
//	  stream_720p:
//	    video_codec: libx264
//	    ...
//
// An empty path or name returns the default preset.
func LoadPresetFile(path, name string) (Preset, error) {
	if path == "" {
		return DefaultStreamingPreset(), nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Preset{}, fmt.Errorf("load preset file: %w", err)
	}
	type rawPreset struct {
		Container    string   `yaml:"container"`
		Extension    string   `yaml:"extension"`
		ContentType  string   `yaml:"content_type"`
		VideoCodec   string   `yaml:"video_codec"`
		AudioCodec   string   `yaml:"audio_codec"`
		VideoBitrate string   `yaml:"video_bitrate"`
		AudioBitrate string   `yaml:"audio_bitrate"`
		PixelFormat  string   `yaml:"pixel_format"`
		FrameRate    string   `yaml:"frame_rate"`
		Filters      []string `yaml:"filters"`
		ExtraArgs    []string `yaml:"extra_args"`
	}
	var payload struct {
		Presets map[string]rawPreset `yaml:"presets"`
	}
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return Preset{}, fmt.Errorf("parse preset file: %w", err)
	}
	if name == "" {
		name = DefaultStreamingPreset().Name
	}
	rp, ok := payload.Presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("preset %q not found in %s", name, path)
	}

	def := DefaultStreamingPreset()
	p := Preset{
		Name:         name,
		Container:    orDefault(rp.Container, def.Container),
		Extension:    orDefault(rp.Extension, def.Extension),
		ContentType:  orDefault(rp.ContentType, def.ContentType),
		VideoCodec:   rp.VideoCodec,
		AudioCodec:   rp.AudioCodec,
		VideoBitrate: rp.VideoBitrate,
		AudioBitrate: rp.AudioBitrate,
		PixelFormat:  rp.PixelFormat,
		FrameRate:    rp.FrameRate,
		Filters:      append([]string(nil), rp.Filters...),
		ExtraArgs:    append([]string(nil), rp.ExtraArgs...),
	}
	return p, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
