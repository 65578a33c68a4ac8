// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Prober reads media metadata with ffprobe
type Prober interface {
	// Duration returns the container duration in seconds.
	Duration(ctx context.Context, path string) (float64, error)
	// Bitrate returns the first video stream's bitrate in kbit/s, falling back
	// to the container bitrate when the stream does not carry one.
	Bitrate(ctx context.Context, path string) (int, error)
}

type prober struct {
	binary string
}

// NewProber creates a Prober for the ffprobe binary
func NewProber(binary string) Prober {
	return &prober{binary: binary}
}

func (p *prober) Duration(ctx context.Context, path string) (float64, error) {
	out, err := p.run(ctx, path, "-show_entries", "format=duration")
	if err != nil {
		return 0, err
	}
	return ParseProbeDuration(out)
}

func (p *prober) Bitrate(ctx context.Context, path string) (int, error) {
	out, err := p.run(ctx, path, "-select_streams", "v:0", "-show_entries", "stream=bit_rate")
	if err != nil {
		return 0, err
	}
	if kbps, err := ParseProbeBitrate(out); err == nil {
		return kbps, nil
	}

	// mkv and some mp4 muxers only store the overall rate
	if out, err = p.run(ctx, path, "-show_entries", "format=bit_rate"); err != nil {
		return 0, err
	}
	return ParseProbeBitrate(out)
}

func (p *prober) run(ctx context.Context, path string, entries ...string) ([]byte, error) {
	args := append([]string{"-v", "error"}, entries...)
	args = append(args, "-of", "default=noprint_wrappers=1:nokey=1", path)

	out, err := exec.CommandContext(ctx, p.binary, args...).Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("ffprobe %s: %s", path, strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return out, nil
}

// ParseProbeDuration reads the bare number ffprobe prints for format=duration.
func ParseProbeDuration(out []byte) (float64, error) {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("no duration reported")
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// ParseProbeBitrate reads the bit/s figure ffprobe prints for bit_rate and
// returns it rounded to kbit/s.
func ParseProbeBitrate(out []byte) (int, error) {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("no bitrate reported")
	}
	bps, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse bitrate %q: %w", s, err)
	}
	kbps := int((bps + 500) / 1000)
	if kbps <= 0 {
		return 0, fmt.Errorf("bitrate %q too low", s)
	}
	return kbps, nil
}
