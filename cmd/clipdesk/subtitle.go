// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/ZSC714725/clipdesk/internal/ffmpeg"
	"github.com/ZSC714725/clipdesk/internal/subtitle"
)

func newSubtitleCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subtitle",
		Short: "Subtitle utilities",
	}
	cmd.AddCommand(newSubtitleCheckCommand(ctx))
	return cmd
}

func newSubtitleCheckCommand(ctx *commandContext) *cobra.Command {
	var (
		duration float64
		video    string
		entries  bool
	)

	cmd := &cobra.Command{
		Use:   "check <file>",
		Short: "Load a subtitle against a video duration and report what would be kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if video != "" {
				c, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				d, err := ffmpeg.NewProber(ctx.cfg.FFmpeg.ProbePath).Duration(c, video)
				if err != nil {
					return err
				}
				duration = d
			}

			track, err := subtitle.LoadFile(args[0], duration)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			st := track.Stats
			fmt.Fprintln(out, renderTable(
				[]string{"Format", "Duration", "Parsed", "Kept", "Dropped", "Clamped", "Invalid"},
				[][]string{{
					string(track.Format), durationLabel(track.Duration),
					strconv.Itoa(st.Parsed), strconv.Itoa(st.Kept), strconv.Itoa(st.Dropped),
					strconv.Itoa(st.Clamped), strconv.Itoa(st.Invalid),
				}},
				3, 4, 5, 6, 7,
			))

			if len(st.Errors) > 0 {
				rows := make([][]string, 0, len(st.Errors))
				for _, e := range st.Errors {
					rows = append(rows, []string{strconv.Itoa(e.Line), e.Reason, e.Raw})
				}
				fmt.Fprintln(out, renderTable([]string{"Line", "Reason", "Raw"}, rows, 1))
			}

			if entries {
				rows := make([][]string, 0, len(track.Entries))
				for i, e := range track.Entries {
					rows = append(rows, []string{strconv.Itoa(i + 1), clock(e.Start), clock(e.End), e.Text})
				}
				fmt.Fprintln(out, renderTable([]string{"#", "Start", "End", "Text"}, rows, 1))
			}
			return nil
		},
	}

	cmd.Flags().Float64Var(&duration, "duration", 0, "Video duration in seconds, 0 = unknown")
	cmd.Flags().StringVar(&video, "video", "", "Probe the duration from this video")
	cmd.Flags().BoolVar(&entries, "entries", false, "List the kept entries")
	return cmd
}

func durationLabel(d float64) string {
	if d <= 0 {
		return "unknown"
	}
	return clock(d)
}

func clock(sec float64) string {
	ms := int64(sec*1000 + 0.5)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3600000, ms/60000%60, ms/1000%60, ms%1000)
}
