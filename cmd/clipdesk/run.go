// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ZSC714725/clipdesk/internal/ffmpeg"
	"github.com/ZSC714725/clipdesk/internal/job"
	"github.com/ZSC714725/clipdesk/internal/logger"
	"github.com/ZSC714725/clipdesk/internal/process"
	"github.com/ZSC714725/clipdesk/internal/task"
)

// progress steps of the terminal bar
const barSteps = 1000

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		c     task.Config
		style task.StyleConfig
		enc   ffmpeg.Encoding
		noBar bool
		kinds []string
	)
	for _, k := range job.Kinds() {
		kinds = append(kinds, string(k))
	}

	cmd := &cobra.Command{
		Use:   "run <kind> <input>... -o <output>",
		Short: "Run one job in the foreground",
		Long: "Run one job in the foreground. Kinds: " + strings.Join(kinds, ", ") +
			" (short forms trim, merge, burn, attach, denoise, frame).",
		ValidArgs: kinds,
		Args:      cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Kind = args[0]
			c.Inputs = args[1:]
			if style != (task.StyleConfig{}) {
				c.Style = &style
			}
			if enc != (ffmpeg.Encoding{}) {
				c.Encoding = &enc
			}
			return runJob(ctx, &c, !noBar && isTerminal(os.Stderr))
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&c.Output, "output", "o", "", "Output file")
	flags.Float64Var(&c.Start, "start", 0, "trim: start in seconds")
	flags.Float64Var(&c.End, "end", 0, "trim: end in seconds, 0 = until the end")
	flags.Float64Var(&c.Position, "at", 0, "frame: position in seconds")
	flags.StringVar(&c.Subtitle, "subtitle", "", "burn/attach: SRT or ASS file")
	flags.StringVar(&c.Language, "language", "", "attach: subtitle language tag")
	flags.IntVar(&style.FontSize, "font-size", 0, "subtitle font size")
	flags.StringVar(&style.Color, "color", "", "subtitle color")
	flags.StringVar(&style.Position, "placement", "", "subtitle position: top, middle, bottom")
	flags.StringVar(&enc.Encoder, "encoder", "", "burn: video encoder, e.g. h264_nvenc")
	flags.IntVar(&enc.BitrateKbps, "bitrate", 0, "burn: video bitrate in kbit/s")
	flags.BoolVar(&c.Denoise.PreserveVoice, "preserve-voice", false, "denoise: band-limit to the voice range")
	flags.Float64Var(&c.Denoise.Strength, "strength", 0, "denoise: anlmdn strength")
	flags.Float64Var(&c.Denoise.BoostDB, "boost", 0, "denoise: volume boost in dB")
	flags.BoolVar(&noBar, "no-progress", false, "Log progress lines instead of drawing a bar")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runJob(ctx *commandContext, c *task.Config, showBar bool) error {
	log := ctx.logger("clipdesk")
	if showBar {
		// the bar owns the terminal, only warnings and errors get through
		log = quietLogger{log}
	}

	ff, err := ctx.ffmpeg()
	if err != nil {
		return fmt.Errorf("ffmpeg init: %w", err)
	}

	var bar *progressbar.ProgressBar
	if showBar {
		bar = progressbar.NewOptions(barSteps,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(c.Kind),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	registry := process.NewRegistry()
	opts := ctx.storeOptions(ff, registry, log)
	lastPercent := -1
	opts.OnProgress = func(t *task.Task, f float64) {
		if bar != nil {
			_ = bar.Set(int(f * barSteps))
			return
		}
		if p := int(f * 100); p != lastPercent {
			lastPercent = p
			log.Info("%s: %d%%", t.ID, p)
		}
	}
	store := task.NewStore(opts)

	started := time.Now()
	t, err := store.Submit(context.Background(), c)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			log.Warn("interrupted, stopping %s", t.ID)
			if err := store.Cancel(t.ID); err != nil {
				log.Error("stop: %v", err)
			}
		case <-t.Done():
		}
	}()

	res := t.Wait()
	if bar != nil {
		if res.Success() {
			_ = bar.Finish()
		}
		fmt.Fprintln(os.Stderr)
	}

	if !res.Success() {
		return res.Err
	}
	fmt.Printf("%s: %s (%s, %s)\n", res.Kind, res.OutputPath,
		humanize.Bytes(uint64(res.OutputSize)), time.Since(started).Round(time.Millisecond))
	return nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// quietLogger drops info and debug lines
type quietLogger struct {
	logger.Logger
}

func (quietLogger) Info(format string, args ...interface{})  {}
func (quietLogger) Debug(format string, args ...interface{}) {}
