// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/ZSC714725/clipdesk/internal/api"
	"github.com/ZSC714725/clipdesk/internal/logger"
	"github.com/ZSC714725/clipdesk/internal/preview"
	"github.com/ZSC714725/clipdesk/internal/process"
	"github.com/ZSC714725/clipdesk/internal/task"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control surface",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg
			if bind != "" {
				cfg.Server.Bind = bind
			}
			log := ctx.logger("clipdesk")

			lockPath := cfg.Server.LockFile
			if lockPath == "" {
				lockPath = filepath.Join(os.TempDir(), "clipdesk.lock")
			}
			lock := flock.New(lockPath)
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return fmt.Errorf("another clipdesk server holds %s", lockPath)
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					log.Warn("release lock: %v", err)
				}
			}()

			ff, err := ctx.ffmpeg()
			if err != nil {
				return fmt.Errorf("ffmpeg init: %w", err)
			}

			registry := process.NewRegistry()
			store := task.NewStore(ctx.storeOptions(ff, registry, logger.With(log, "task: ")))

			pc := preview.New(preview.Config{
				Extractor: preview.NewExtractor(ff.Builder(), ctx.processConfig(registry, logger.With(log, "preview: "))),
				Dir:       cfg.Preview.Dir,
				Logger:    log,
				OnApply: func(f preview.Frame) {
					log.Debug("preview %s applied at %.3fs", f.TaskID, f.Position)
				},
			})

			if !cfg.Debug {
				gin.SetMode(gin.ReleaseMode)
			}
			r := gin.New()
			r.Use(gin.Recovery(), cors.Default())
			api.NewHandler(store, ff, pc, ff.InputRules()).Register(r)

			srv := &http.Server{Addr: cfg.Server.Bind, Handler: r}
			serveErr := make(chan error, 1)
			go func() {
				log.Info("listening on %s (ffmpeg %s)", cfg.Server.Bind, ff.Skills().FFmpeg.Version)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			select {
			case <-sigCtx.Done():
				log.Info("shutting down")
			case err := <-serveErr:
				if err != nil {
					log.Error("server: %v", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("http shutdown: %v", err)
			}

			// 先停预览，再把退出信号扇出到所有还在跑的 ffmpeg
			pc.Close()
			if err := registry.ShutdownAll(); err != nil {
				log.Error("stop jobs: %v", err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Bind address (overrides config)")
	return cmd
}
