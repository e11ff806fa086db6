package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/groupfiles/internal/execx"
)

// FrameExtractor grabs single frames from a video with ffmpeg.
type FrameExtractor struct {
	Runner execx.Runner
	Path   string
}

func NewFrameExtractor(r execx.Runner, ffmpegPath string) *FrameExtractor {
	return &FrameExtractor{Runner: r, Path: ffmpegPath}
}

// ExtractFrame writes the frame at offset `at` of input as a JPEG to output.
// Seeking past the end of the stream succeeds but leaves output empty or
// missing; callers must check.
func (f *FrameExtractor) ExtractFrame(ctx context.Context, input string, at time.Duration, output string) error {
	_, err := f.Runner.Run(ctx, f.Path, frameArgs(input, at, output)...)
	if err != nil {
		return fmt.Errorf("extract frame at %s: %w", at, err)
	}
	return nil
}

func frameArgs(input string, at time.Duration, output string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", output,
	}
}
