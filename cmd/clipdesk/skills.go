// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSkillsCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Show the detected FFmpeg version, hardware acceleration and encoders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ff, err := ctx.ffmpeg()
			if err != nil {
				return err
			}
			s := ff.Skills()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "ffmpeg %s (%s)\n", s.FFmpeg.Version, ff.Binary())

			rows := make([][]string, 0, len(s.HWAccels))
			for _, h := range s.HWAccels {
				rows = append(rows, []string{h.Id})
			}
			fmt.Fprintln(out, renderTable([]string{"HWAccel"}, rows))

			hw := map[string]bool{}
			for _, id := range s.HardwareEncoders() {
				hw[id] = true
			}
			rows = rows[:0]
			for _, e := range s.Encoders.Video {
				if !all && !hw[e.Id] && e.Id != "libx264" {
					continue
				}
				rows = append(rows, []string{e.Id, yesNo(hw[e.Id]), e.Name})
			}
			fmt.Fprintln(out, renderTable([]string{"Encoder", "Hardware", "Description"}, rows))

			for _, f := range []string{"subtitles", "anlmdn"} {
				if !s.HasFilter(f) {
					fmt.Fprintf(out, "warning: filter %s missing, %s jobs will fail\n", f, filterUser(f))
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "List every video encoder")
	return cmd
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func filterUser(filter string) string {
	if filter == "subtitles" {
		return "burn"
	}
	return "denoise"
}
