// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package ffmpeg

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Validator holds the path rules for one side of a job, what it may read or
// what it may write.
type Validator interface {
	// Check returns a *PathError for the first path the rules refuse.
	Check(paths ...string) error
}

// PathError names the refused path and why
type PathError struct {
	Path   string
	Reason string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%q: %s", e.Path, e.Reason)
}

type rules struct {
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// NewValidator compiles allow and block expressions; blank ones are skipped.
// With no allow expression anything not blocked passes.
func NewValidator(allow, block []string) (Validator, error) {
	r := &rules{}
	var err error

	if r.allow, err = compileRules("allow", allow); err != nil {
		return nil, err
	}
	if r.block, err = compileRules("block", block); err != nil {
		return nil, err
	}
	return r, nil
}

func compileRules(side string, exps []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, exp := range exps {
		if exp = strings.TrimSpace(exp); exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("invalid %s expression '%s': %w", side, exp, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func (r *rules) Check(paths ...string) error {
	for _, p := range paths {
		if err := r.check(p); err != nil {
			return err
		}
	}
	return nil
}

// check matches the cleaned absolute path, so "a/../../etc" can't sneak past a prefix rule.
func (r *rules) check(path string) error {
	if strings.TrimSpace(path) == "" {
		return &PathError{Path: path, Reason: "empty path"}
	}
	target := path
	if abs, err := filepath.Abs(path); err == nil {
		target = filepath.ToSlash(abs)
	}

	for _, re := range r.block {
		if re.MatchString(target) {
			return &PathError{Path: path, Reason: "blocked by " + re.String()}
		}
	}
	if len(r.allow) == 0 {
		return nil
	}
	for _, re := range r.allow {
		if re.MatchString(target) {
			return nil
		}
	}
	return &PathError{Path: path, Reason: "not matched by any allow rule"}
}
