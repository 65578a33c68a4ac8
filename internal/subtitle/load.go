// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package subtitle

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DetectFormat picks a format from the file extension, then from the content.
func DetectFormat(path, content string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".srt":
		return FormatSRT
	case ".ass", ".ssa":
		return FormatASS
	}
	lower := strings.ToLower(content)
	if strings.Contains(lower, "[events]") || strings.Contains(lower, "[script info]") {
		return FormatASS
	}
	return FormatSRT
}

// Decode reads r as text, honouring a UTF-8 or UTF-16 byte order mark.
func Decode(r io.Reader) (string, error) {
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	data, err := io.ReadAll(transform.NewReader(r, dec))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoadFile reads and normalizes a subtitle file against the video duration.
func LoadFile(path string, duration float64) (*Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("read subtitle %s: %w", path, err)
	}
	return Parse(content, DetectFormat(path, content), duration)
}

// WriteStyled renders track into a new .ass file under dir and returns its path.
// The caller owns the file and must remove it.
func WriteStyled(dir string, track *Track, style Style) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "clipdesk-sub-"+uuid.NewString()+".ass")
	if err := os.WriteFile(path, []byte(Render(track.Entries, style)), 0o600); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write styled subtitle: %w", err)
	}
	return path, nil
}
