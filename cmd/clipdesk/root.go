// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "clipdesk",
		Short:         "FFmpeg clip job orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configPath, "config", "c", "", "Path to YAML config file")
	flags.StringVar(&ctx.envFile, "env", "", "Load environment from this file instead of ./.env")
	flags.StringVar(&ctx.ffmpegBin, "ffmpeg", "", "FFmpeg binary path (overrides config)")
	flags.BoolVar(&ctx.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newSubtitleCommand(ctx))
	rootCmd.AddCommand(newSkillsCommand(ctx))

	return rootCmd
}
