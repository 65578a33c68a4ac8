// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// ClipDesk - FFmpeg 剪辑任务编排工具

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ZSC714725/clipdesk/internal/ffmpeg"
	"github.com/ZSC714725/clipdesk/internal/ffmpeg/skills"
	"github.com/ZSC714725/clipdesk/internal/job"
	"github.com/ZSC714725/clipdesk/internal/preview"
	"github.com/ZSC714725/clipdesk/internal/process"
	"github.com/ZSC714725/clipdesk/internal/subtitle"
	"github.com/ZSC714725/clipdesk/internal/task"
)

// SkillsSource provides the detected FFmpeg capabilities
type SkillsSource interface {
	Skills() skills.Skills
	ReloadSkills() error
}

// Handler holds dependencies
type Handler struct {
	store   task.Store
	skills  SkillsSource
	preview *preview.Controller
	inputs  ffmpeg.Validator
}

// NewHandler creates API handler. preview and inputs may be nil.
func NewHandler(store task.Store, sk SkillsSource, pc *preview.Controller, inputs ffmpeg.Validator) *Handler {
	return &Handler{store: store, skills: sk, preview: pc, inputs: inputs}
}

// Register mounts the routes under /api/v1
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")
	{
		v1.GET("/skills", h.Skills)
		v1.POST("/skills/reload", h.ReloadSkills)

		v1.GET("/jobs", h.ListJobs)
		v1.POST("/jobs", h.AddJob)
		v1.POST("/jobs/stop", h.StopAll)
		v1.GET("/jobs/:id", h.GetJob)
		v1.DELETE("/jobs/:id", h.DeleteJob)
		v1.GET("/jobs/:id/report", h.GetReport)
		v1.PUT("/jobs/:id/command", h.Command)

		v1.POST("/preview", h.RequestPreview)
		v1.GET("/preview/frame", h.PreviewFrame)

		v1.POST("/subtitles/check", h.CheckSubtitle)
	}
}

func errResp(c *gin.Context, code int, msg, detail string) {
	c.JSON(code, ErrorResponse{Code: code, Message: msg, Detail: detail})
}

// AddJob POST /api/v1/jobs
func (h *Handler) AddJob(c *gin.Context) {
	var req JobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	t, err := h.store.Submit(c.Request.Context(), requestToConfig(&req))
	if err != nil {
		var le *job.LaunchError
		switch {
		case errors.Is(err, task.ErrOutputBusy):
			errResp(c, http.StatusConflict, "Output is being written", err.Error())
		case errors.Is(err, task.ErrTaskExists):
			errResp(c, http.StatusBadRequest, "Task exists", err.Error())
		case errors.Is(err, task.ErrInvalidInputAddress), errors.Is(err, task.ErrInvalidOutputAddress):
			errResp(c, http.StatusBadRequest, "Invalid address", err.Error())
		case errors.As(err, &le):
			errResp(c, http.StatusInternalServerError, "Launch failed", err.Error())
		default:
			errResp(c, http.StatusBadRequest, "Invalid job", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, taskToJob(t, "state"))
}

// ListJobs GET /api/v1/jobs
func (h *Handler) ListJobs(c *gin.Context) {
	filter := c.DefaultQuery("filter", "")
	reference := c.DefaultQuery("reference", "")
	idStr := c.DefaultQuery("id", "")

	var ids []string
	if idStr != "" {
		ids = strings.FieldsFunc(idStr, func(r rune) bool { return r == ',' })
		for i := range ids {
			ids[i] = strings.TrimSpace(ids[i])
		}
	}

	tasks := h.store.List(ids, reference)
	jobs := make([]Job, 0, len(tasks))
	for _, t := range tasks {
		jobs = append(jobs, taskToJob(t, filter))
	}

	c.JSON(http.StatusOK, jobs)
}

// GetJob GET /api/v1/jobs/:id
func (h *Handler) GetJob(c *gin.Context) {
	t, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}

	c.JSON(http.StatusOK, taskToJob(t, c.DefaultQuery("filter", "")))
}

// DeleteJob DELETE /api/v1/jobs/:id
func (h *Handler) DeleteJob(c *gin.Context) {
	err := h.store.Delete(c.Param("id"))
	switch {
	case errors.Is(err, task.ErrNotFound):
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
	case errors.Is(err, task.ErrTaskRunning):
		errResp(c, http.StatusConflict, "Job is running", err.Error())
	case err != nil:
		errResp(c, http.StatusInternalServerError, "Delete failed", err.Error())
	default:
		c.JSON(http.StatusOK, "OK")
	}
}

// GetReport GET /api/v1/jobs/:id/report
func (h *Handler) GetReport(c *gin.Context) {
	t, err := h.store.Get(c.Param("id"))
	if err != nil {
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
		return
	}

	c.JSON(http.StatusOK, taskReport(t))
}

// Command PUT /api/v1/jobs/:id/command
func (h *Handler) Command(c *gin.Context) {
	id := c.Param("id")

	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}

	switch req.Command {
	case "cancel", "stop":
	default:
		errResp(c, http.StatusBadRequest, "Unknown command", "Known: cancel")
		return
	}

	err := h.store.Cancel(id)
	switch {
	case errors.Is(err, task.ErrNotFound):
		errResp(c, http.StatusNotFound, "Unknown job ID", err.Error())
	case errors.Is(err, process.ErrShutdownTimeout):
		errResp(c, http.StatusInternalServerError, "Process did not exit", err.Error())
	case err != nil:
		errResp(c, http.StatusBadRequest, "Command failed", err.Error())
	default:
		c.JSON(http.StatusOK, "OK")
	}
}

// StopAll POST /api/v1/jobs/stop
func (h *Handler) StopAll(c *gin.Context) {
	if err := h.store.StopAll(); err != nil {
		errResp(c, http.StatusInternalServerError, "Some processes did not exit", err.Error())
		return
	}
	c.JSON(http.StatusOK, "OK")
}

// Skills GET /api/v1/skills
func (h *Handler) Skills(c *gin.Context) {
	c.JSON(http.StatusOK, skillsToAPI(h.skills.Skills()))
}

// ReloadSkills POST /api/v1/skills/reload
func (h *Handler) ReloadSkills(c *gin.Context) {
	if err := h.skills.ReloadSkills(); err != nil {
		errResp(c, http.StatusInternalServerError, "Reload failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, skillsToAPI(h.skills.Skills()))
}

// RequestPreview POST /api/v1/preview
func (h *Handler) RequestPreview(c *gin.Context) {
	if h.preview == nil {
		errResp(c, http.StatusNotImplemented, "Preview disabled", "")
		return
	}

	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if req.Position < 0 {
		errResp(c, http.StatusBadRequest, "Invalid position", "")
		return
	}
	if req.Input != "" {
		if h.inputs != nil {
			if err := h.inputs.Check(req.Input); err != nil {
				errResp(c, http.StatusBadRequest, "Invalid address", err.Error())
				return
			}
		}
		h.preview.SetInput(req.Input)
	}

	id, err := h.preview.Request(req.Position)
	if err != nil {
		errResp(c, http.StatusServiceUnavailable, "Preview closed", err.Error())
		return
	}
	c.JSON(http.StatusAccepted, PreviewResponse{TaskID: id})
}

// PreviewFrame GET /api/v1/preview/frame
func (h *Handler) PreviewFrame(c *gin.Context) {
	if h.preview == nil {
		errResp(c, http.StatusNotImplemented, "Preview disabled", "")
		return
	}

	f, data, err := h.preview.LatestImage()
	if errors.Is(err, preview.ErrNoFrame) {
		errResp(c, http.StatusNotFound, "No frame yet", "")
		return
	}
	if err != nil {
		errResp(c, http.StatusInternalServerError, "Read frame failed", err.Error())
		return
	}
	c.Header("X-Preview-Task", f.TaskID)
	c.Data(http.StatusOK, "image/jpeg", data)
}

// CheckSubtitle POST /api/v1/subtitles/check
func (h *Handler) CheckSubtitle(c *gin.Context) {
	var req SubtitleCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errResp(c, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if h.inputs != nil {
		if err := h.inputs.Check(req.Path); err != nil {
			errResp(c, http.StatusBadRequest, "Invalid address", err.Error())
			return
		}
	}

	track, err := subtitle.LoadFile(req.Path, req.Duration)
	if err != nil {
		errResp(c, http.StatusBadRequest, "Unreadable subtitle", err.Error())
		return
	}

	resp := SubtitleCheckResponse{
		Format:   track.Format,
		Duration: track.Duration,
		Stats:    track.Stats,
		Entries:  track.Entries,
	}
	if resp.Entries == nil {
		resp.Entries = []subtitle.Entry{}
	}
	c.JSON(http.StatusOK, resp)
}

func requestToConfig(req *JobRequest) *task.Config {
	cfg := &task.Config{
		ID:        req.ID,
		Reference: req.Reference,
		Kind:      req.Kind,
		Inputs:    req.Inputs,
		Output:    req.Output,
		Start:     req.Start,
		End:       req.End,
		Position:  req.Position,
		Subtitle:  req.Subtitle,
		Language:  req.Language,
		Denoise: ffmpeg.DenoiseOptions{
			PreserveVoice: req.Denoise.PreserveVoice,
			Strength:      req.Denoise.Strength,
			BoostDB:       req.Denoise.BoostDB,
		},
	}
	if req.Style != nil {
		cfg.Style = &task.StyleConfig{FontSize: req.Style.FontSize, Color: req.Style.Color, Position: req.Style.Position}
	}
	if req.Encoding != nil {
		cfg.Encoding = &ffmpeg.Encoding{Encoder: req.Encoding.Encoder, BitrateKbps: req.Encoding.BitrateKbps}
	}
	return cfg
}

func taskToJob(t *task.Task, filter string) Job {
	j := Job{
		ID:        t.ID,
		Kind:      string(t.Job.Kind),
		Reference: t.Reference,
		Inputs:    t.Job.Inputs,
		Output:    t.Job.OutputPath,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt(),
	}

	includeAll := filter == ""
	if includeAll || strings.Contains(filter, "state") {
		j.State = taskState(t)
	}
	if includeAll || strings.Contains(filter, "report") {
		r := taskReport(t)
		j.Report = &r
	}
	if res, done := t.Result(); done {
		j.Result = &JobResult{
			ExitCode:      res.ExitCode,
			OutputExisted: res.OutputExisted,
			OutputSize:    res.OutputSize,
			Cancelled:     res.Cancelled,
			Error:         res.Error(),
		}
	}
	return j
}

func taskState(t *task.Task) *JobState {
	status := t.Status()
	state := &JobState{
		State:    string(t.State()),
		Fraction: t.Fraction(),
		Pid:      status.Pid,
		Runtime:  int64(status.Duration.Seconds()),
		Memory:   status.Memory,
		CPU:      status.CPU,
		Command:  append([]string{t.Job.Binary}, t.Job.Argv...),
	}
	if lines := t.Log(); len(lines) > 0 {
		state.LastLog = lines[len(lines)-1].Data
	}

	prog := t.Progress()
	state.Progress = &Progress{
		Frame:     prog.Frame,
		Size:      prog.Size,
		Time:      prog.Time,
		Duration:  prog.Duration,
		Speed:     prog.Speed,
		Quantizer: prog.Quantizer,
	}
	return state
}

func taskReport(t *task.Task) JobReport {
	lines := t.Log()
	report := JobReport{Log: make([][2]string, len(lines))}
	for i, line := range lines {
		report.Log[i] = [2]string{line.Timestamp.Format("2006-01-02 15:04:05.000"), line.Data}
	}
	return report
}
