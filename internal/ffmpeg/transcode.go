package ffmpeg

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/groupfiles/internal/execx"
)

// Transcoder converts a video file into a streaming-friendly rendition.
type Transcoder struct {
	Runner execx.Runner
	Path   string
	Preset Preset
}

func NewTranscoder(r execx.Runner, ffmpegPath string, preset Preset) *Transcoder {
	return &Transcoder{Runner: r, Path: ffmpegPath, Preset: preset}
}

// Transcode writes the transcoded rendition of input to output.
func (t *Transcoder) Transcode(ctx context.Context, input, output string) error {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", input}
	args = append(args, t.Preset.Args()...)
	args = append(args, "-y", output)
	if _, err := t.Runner.Run(ctx, t.Path, args...); err != nil {
		return fmt.Errorf("transcode with %s: %w", t.Preset.Name, err)
	}
	return nil
}
