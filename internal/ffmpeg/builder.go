// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package ffmpeg

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ZSC714725/clipdesk/internal/job"
)

// DefaultVideoEncoder is used when no hardware encoder is selected
const DefaultVideoEncoder = "libx264"

// Encoding parameterises video re-encoding for burned subtitles
type Encoding struct {
	Encoder     string `json:"encoder,omitempty" yaml:"encoder"`
	BitrateKbps int    `json:"bitrate_kbps,omitempty" yaml:"bitrate_kbps"`
}

// DenoiseOptions for the audio cleanup chain
type DenoiseOptions struct {
	PreserveVoice bool    `json:"preserve_voice"`
	Strength      float64 `json:"strength"`
	BoostDB       float64 `json:"boost_db"`
}

// Builder turns operation parameters into fully resolved jobs. It does no I/O.
type Builder struct {
	Binary string
	// HWAccel is passed as -hwaccel for frame extraction when set.
	HWAccel string
	// Available reports whether an encoder exists in this build. nil accepts any.
	Available func(encoder string) bool
}

// NewBuilder creates a Builder for the given ffmpeg binary
func NewBuilder(binary string) *Builder {
	return &Builder{Binary: binary}
}

func (b *Builder) job(kind job.Kind, inputs []string, output string, duration float64, args ...string) job.Job {
	argv := append([]string{"-y", "-hide_banner"}, args...)
	argv = append(argv, output)
	return job.Job{
		Kind:             kind,
		Inputs:           inputs,
		OutputPath:       output,
		DeclaredDuration: math.Max(duration, 0),
		Binary:           b.Binary,
		Argv:             argv,
	}
}

// Trim cuts [start, end) without re-encoding. end <= 0 means until the end of the
// source, whose length is then taken from sourceDuration.
func (b *Builder) Trim(input, output string, start, end, sourceDuration float64) (job.Job, error) {
	if input == "" {
		return job.Job{}, ErrNoInputs
	}
	if output == "" {
		return job.Job{}, ErrNoOutput
	}
	if start < 0 || (end > 0 && end <= start) {
		return job.Job{}, fmt.Errorf("%w: %.3f-%.3f", ErrInvalidRange, start, end)
	}

	args := []string{"-ss", seconds(start), "-i", input}
	duration := sourceDuration - start
	if end > 0 {
		duration = end - start
		args = append(args, "-t", seconds(duration))
	}
	args = append(args, "-c", "copy", "-avoid_negative_ts", "1")

	return b.job(job.KindTrim, []string{input}, output, duration, args...), nil
}

// Merge concatenates the files listed in list (see WriteConcatList) without re-encoding.
func (b *Builder) Merge(list string, inputs []string, output string, duration float64, expectedBytes int64) (job.Job, error) {
	if len(inputs) < 2 {
		return job.Job{}, fmt.Errorf("%w: merge needs at least two inputs", ErrNoInputs)
	}
	if output == "" {
		return job.Job{}, ErrNoOutput
	}

	j := b.job(job.KindMerge, inputs, output, duration,
		"-f", "concat", "-safe", "0", "-i", list,
		"-c", "copy", "-avoid_negative_ts", "1",
	)
	j.ExpectedBytes = expectedBytes
	return j, nil
}

// BurnSubtitle renders the styled subtitle file into the video.
func (b *Builder) BurnSubtitle(input, subtitle, output string, enc Encoding, duration float64) (job.Job, error) {
	if input == "" {
		return job.Job{}, ErrNoInputs
	}
	if subtitle == "" {
		return job.Job{}, ErrNoSubtitle
	}
	if output == "" {
		return job.Job{}, ErrNoOutput
	}
	codec, err := b.VideoCodec(enc)
	if err != nil {
		return job.Job{}, err
	}

	args := []string{"-i", input, "-vf", "subtitles='" + EscapeFilterPath(subtitle) + "'"}
	args = append(args, codec...)
	args = append(args, "-c:a", "aac", "-avoid_negative_ts", "1", "-max_muxing_queue_size", "1024")
	if isMP4(output) {
		// moov atom up front keeps an interrupted file playable
		args = append(args, "-movflags", "+faststart")
	}

	return b.job(job.KindBurnSubtitle, []string{input, subtitle}, output, duration, args...), nil
}

// AttachSubtitle muxes the styled subtitle as a soft track.
func (b *Builder) AttachSubtitle(input, subtitle, output, language string, duration float64) (job.Job, error) {
	if input == "" {
		return job.Job{}, ErrNoInputs
	}
	if subtitle == "" {
		return job.Job{}, ErrNoSubtitle
	}
	if output == "" {
		return job.Job{}, ErrNoOutput
	}
	if language == "" {
		language = "chi"
	}

	args := []string{
		"-i", input, "-i", subtitle,
		"-map", "0:v", "-map", "0:a?", "-map", "1:s",
		"-c:v", "copy", "-c:a", "copy",
	}
	if isMP4(output) {
		args = append(args, "-c:s", "mov_text", "-f", "mp4")
	} else {
		args = append(args, "-c:s", "ass", "-f", "matroska")
	}
	args = append(args, "-metadata:s:s:0", "language="+language)

	return b.job(job.KindAttachSubtitle, []string{input, subtitle}, output, duration, args...), nil
}

// Denoise copies the video and runs the audio through the filter chain.
func (b *Builder) Denoise(input, output string, opts DenoiseOptions, duration float64) (job.Job, error) {
	if input == "" {
		return job.Job{}, ErrNoInputs
	}
	if output == "" {
		return job.Job{}, ErrNoOutput
	}
	if opts.Strength < 0 || opts.BoostDB < 0 {
		return job.Job{}, fmt.Errorf("%w: negative denoise strength or boost", ErrInvalidRange)
	}

	args := []string{"-i", input, "-c:v", "copy"}
	if chain := AudioFilters(opts); chain != "" {
		args = append(args, "-af", chain)
	} else {
		args = append(args, "-c:a", "copy")
	}

	return b.job(job.KindDenoise, []string{input}, output, duration, args...), nil
}

// ExtractFrame grabs one JPEG at position.
func (b *Builder) ExtractFrame(input, output string, position float64) (job.Job, error) {
	if input == "" {
		return job.Job{}, ErrNoInputs
	}
	if output == "" {
		return job.Job{}, ErrNoOutput
	}
	if position < 0 {
		return job.Job{}, fmt.Errorf("%w: position %.3f", ErrInvalidRange, position)
	}

	var args []string
	if b.HWAccel != "" {
		args = append(args, "-hwaccel", b.HWAccel)
	}
	args = append(args,
		"-ss", seconds(position), "-i", input,
		"-frames:v", "1", "-q:v", "5", "-f", "image2",
	)

	return b.job(job.KindExtractFrame, []string{input}, output, 0, args...), nil
}

// VideoCodec picks the video encoder arguments. Hardware encoders get a
// capped VBR (maxrate 1.5x, bufsize 2x) when a bitrate is given.
func (b *Builder) VideoCodec(enc Encoding) ([]string, error) {
	if enc.BitrateKbps < 0 {
		return nil, fmt.Errorf("%w: bitrate %d", ErrInvalidRange, enc.BitrateKbps)
	}

	if enc.Encoder == "" || enc.Encoder == DefaultVideoEncoder {
		args := []string{"-c:v", DefaultVideoEncoder, "-preset", "medium"}
		if enc.BitrateKbps > 0 {
			args = append(args, "-b:v", fmt.Sprintf("%dk", enc.BitrateKbps))
		}
		return args, nil
	}

	if b.Available != nil && !b.Available(enc.Encoder) {
		return nil, fmt.Errorf("%w: %s", ErrEncoderUnavailable, enc.Encoder)
	}

	args := []string{"-c:v", enc.Encoder}
	if n := enc.BitrateKbps; n > 0 {
		args = append(args,
			"-b:v", fmt.Sprintf("%dk", n),
			"-maxrate", fmt.Sprintf("%.0fk", float64(n)*1.5),
			"-bufsize", fmt.Sprintf("%dk", n*2),
		)
	}
	return args, nil
}

// AudioFilters builds the -af chain, "" when nothing is to be done.
func AudioFilters(opts DenoiseOptions) string {
	var filters []string
	if opts.Strength > 0 {
		if opts.PreserveVoice {
			filters = append(filters, "highpass=f=80", "lowpass=f=8000")
		}
		filters = append(filters, "anlmdn=s="+strconv.FormatFloat(opts.Strength, 'f', -1, 64))
	}
	if opts.BoostDB > 0 {
		gain := math.Pow(10, opts.BoostDB/20)
		filters = append(filters, "volume="+strconv.FormatFloat(gain, 'f', 4, 64))
	}
	return strings.Join(filters, ",")
}

// EscapeFilterPath makes a path safe inside a single-quoted filter argument.
func EscapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	path = strings.ReplaceAll(path, ":", `\:`)
	return strings.ReplaceAll(path, "'", `\'`)
}

// WriteConcatList writes a concat demuxer list for inputs into dir.
// The caller removes the file once the merge job has completed.
func WriteConcatList(dir string, inputs []string) (string, error) {
	var sb strings.Builder
	for _, in := range inputs {
		abs, err := filepath.Abs(in)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", in, err)
		}
		abs = strings.ReplaceAll(filepath.ToSlash(abs), "'", `'\''`)
		fmt.Fprintf(&sb, "file '%s'\n", abs)
	}

	path := filepath.Join(dir, "clipdesk-concat-"+uuid.NewString()+".txt")
	if err := os.WriteFile(path, []byte(sb.String()), 0600); err != nil {
		return "", fmt.Errorf("write concat list: %w", err)
	}
	return path, nil
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func isMP4(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v", ".mov":
		return true
	}
	return false
}
