// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package skills

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// KnownHardwareEncoders are the GPU encoder selectors a burn job may ask for.
var KnownHardwareEncoders = []string{
	"h264_nvenc",
	"hevc_nvenc",
	"h264_qsv",
	"hevc_qsv",
	"h264_amf",
	"av1_amf",
	"h264_vaapi",
	"h264_videotoolbox",
}

// Encoder is one entry of `ffmpeg -encoders`
type Encoder struct {
	Id   string
	Name string
}

// Filter represents a supported filter
type Filter struct {
	Id   string
	Name string
}

// HWAccel represents hardware acceleration
type HWAccel struct {
	Id   string
	Name string
}

type ffmpegInfo struct {
	Version       string
	Compiler      string
	Configuration string
}

// Skills are the detected capabilities of FFmpeg
type Skills struct {
	FFmpeg   ffmpegInfo
	Filters  []Filter
	HWAccels []HWAccel
	Encoders struct {
		Audio    []Encoder
		Video    []Encoder
		Subtitle []Encoder
	}
}

// New returns the skills the FFmpeg binary provides
func New(binary string) (Skills, error) {
	c := Skills{}

	ff, err := getVersion(binary)
	if ff.Version == "" || err != nil {
		if err != nil {
			return Skills{}, fmt.Errorf("can't parse ffmpeg version: %w", err)
		}
		return Skills{}, fmt.Errorf("can't parse ffmpeg version")
	}
	c.FFmpeg = ff

	c.Filters = parseFilters(run(binary, "-filters"))
	c.HWAccels = parseHWAccels(run(binary, "-hwaccels"))
	c.Encoders = parseEncoders(run(binary, "-encoders"))

	return c, nil
}

// HasEncoder reports whether any encoder (video, audio or subtitle) is called id.
func (s Skills) HasEncoder(id string) bool {
	for _, list := range [][]Encoder{s.Encoders.Video, s.Encoders.Audio, s.Encoders.Subtitle} {
		for _, e := range list {
			if e.Id == id {
				return true
			}
		}
	}
	return false
}

// HasFilter reports whether the filter is compiled in.
func (s Skills) HasFilter(id string) bool {
	for _, f := range s.Filters {
		if f.Id == id {
			return true
		}
	}
	return false
}

// HardwareEncoders lists the known GPU encoders this build offers.
func (s Skills) HardwareEncoders() []string {
	var out []string
	for _, id := range KnownHardwareEncoders {
		if s.HasEncoder(id) {
			out = append(out, id)
		}
	}
	return out
}

func run(binary string, arg string) []byte {
	cmd := exec.Command(binary, "-hide_banner", arg)
	cmd.Env = []string{}
	stdout, _ := cmd.Output()
	return stdout
}

func getVersion(binary string) (ffmpegInfo, error) {
	cmd := exec.Command(binary, "-version")
	cmd.Env = []string{}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return ffmpegInfo{}, err
	}
	return parseVersion(out), nil
}

var (
	reVersion       = regexp.MustCompile(`^ffmpeg version n?([0-9]+\.[0-9]+(\.[0-9]+)?)`)
	reCompiler      = regexp.MustCompile(`(?m)^\s*built with (.*)$`)
	reConfiguration = regexp.MustCompile(`(?m)^\s*configuration: (.*)$`)
	reFilter        = regexp.MustCompile(`^\s[TSC.]{3} ([0-9A-Za-z_]+)\s+(?:\S+)\s+(.*)?$`)
	reEncoder       = regexp.MustCompile(`^\s([VAS])[A-Z.]{5} ([0-9A-Za-z_\-]+)\s+(.*)$`)
	reHWAccel       = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

func parseVersion(data []byte) ffmpegInfo {
	f := ffmpegInfo{}
	if m := reVersion.FindSubmatch(data); m != nil {
		f.Version = string(m[1])
		if len(m[2]) == 0 {
			f.Version += ".0"
		}
	}
	if m := reCompiler.FindSubmatch(data); m != nil {
		f.Compiler = string(m[1])
	}
	if m := reConfiguration.FindSubmatch(data); m != nil {
		f.Configuration = string(m[1])
	}
	return f
}

func parseFilters(data []byte) []Filter {
	var filters []Filter
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if m := reFilter.FindStringSubmatch(scanner.Text()); m != nil {
			filters = append(filters, Filter{Id: m[1], Name: strings.TrimSpace(m[2])})
		}
	}
	return filters
}

func parseEncoders(data []byte) struct {
	Audio    []Encoder
	Video    []Encoder
	Subtitle []Encoder
} {
	encoders := struct {
		Audio    []Encoder
		Video    []Encoder
		Subtitle []Encoder
	}{}

	started := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		// the legend above the dashes uses the same layout
		if strings.HasPrefix(strings.TrimSpace(line), "------") {
			started = true
			continue
		}
		if !started {
			continue
		}
		m := reEncoder.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		e := Encoder{Id: m[2], Name: strings.TrimSpace(m[3])}
		switch m[1] {
		case "V":
			encoders.Video = append(encoders.Video, e)
		case "A":
			encoders.Audio = append(encoders.Audio, e)
		case "S":
			encoders.Subtitle = append(encoders.Subtitle, e)
		}
	}
	return encoders
}

func parseHWAccels(data []byte) []HWAccel {
	var accels []HWAccel
	start := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "Hardware acceleration methods:" {
			start = true
			continue
		}
		if !start || !reHWAccel.MatchString(line) {
			continue
		}
		accels = append(accels, HWAccel{Id: line, Name: line})
	}
	return accels
}
