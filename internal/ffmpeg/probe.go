// Package ffmpeg wraps the ffprobe and ffmpeg command-line tools: container
// probing, single-frame extraction and streaming transcodes.
package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/groupfiles/internal/execx"
)

// ErrNoStreams is returned when a container has neither audio nor video.
var ErrNoStreams = errors.New("no audio or video streams")

// ProbeResult is what we keep from ffprobe. Pointer fields are nil when the
// tool did not report a usable value.
type ProbeResult struct {
	FormatName      string
	DurationSeconds *float64
	Bitrate         *int64
	Codec           string
	Width           *int
	Height          *int
	FrameRate       *float64
	SampleRate      *int
	Channels        *int
}

// LocalProber runs ffprobe from the local filesystem.
type LocalProber struct {
	Runner execx.Runner
	Path   string
}

func NewLocalProber(r execx.Runner, ffprobePath string) *LocalProber {
	return &LocalProber{Runner: r, Path: ffprobePath}
}

// Probe extracts container and stream metadata from the file at path.
func (p *LocalProber) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("probe: empty path")
	}
	out, err := p.Runner.Run(ctx, p.Path,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("probe: %w", err)
	}
	return parseProbeOutput(out)
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
	BitRate      string `json:"bit_rate"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

func parseProbeOutput(data []byte) (*ProbeResult, error) {
	var raw probeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("probe: decode output: %w", err)
	}

	var video, audio *probeStream
	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			if audio == nil {
				audio = s
			}
		}
	}
	if video == nil && audio == nil {
		return nil, ErrNoStreams
	}

	res := &ProbeResult{
		FormatName:      raw.Format.FormatName,
		DurationSeconds: parseFloat(raw.Format.Duration),
		Bitrate:         parseInt64(raw.Format.BitRate),
	}

	if video != nil {
		res.Codec = video.CodecName
		res.Width = positive(video.Width)
		res.Height = positive(video.Height)
		res.FrameRate = parseRate(video.AvgFrameRate)
		if res.FrameRate == nil {
			res.FrameRate = parseRate(video.RFrameRate)
		}
	}
	if audio != nil {
		if res.Codec == "" {
			res.Codec = audio.CodecName
		}
		res.SampleRate = parseInt(audio.SampleRate)
		res.Channels = positive(audio.Channels)
		if res.Bitrate == nil {
			res.Bitrate = parseInt64(audio.BitRate)
		}
	}
	return res, nil
}

// unavailable reports ffprobe's placeholders for unknown values.
func unavailable(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, "N/A") || s == "0/0"
}

func parseFloat(s string) *float64 {
	if unavailable(s) {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil
	}
	return &v
}

func parseInt64(s string) *int64 {
	if unavailable(s) {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

func parseInt(s string) *int {
	v := parseInt64(s)
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func positive(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

// parseRate turns "30000/1001" into 29.97.
func parseRate(s string) *float64 {
	if unavailable(s) {
		return nil
	}
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 || n <= 0 {
		return nil
	}
	v := n / d
	return &v
}
