// Package httpapi exposes the job registry over HTTP for operators.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dhruvv90/xnode-scheduler/internal/history"
	"github.com/dhruvv90/xnode-scheduler/internal/shared"
	"github.com/dhruvv90/xnode-scheduler/pkg/scheduler"
)

// Registry is the scheduler surface the API drives.
type Registry interface {
	GetJob(id string) (*scheduler.Job, error)
	StartJob(id string) error
	StopJob(id string) error
	RemoveJob(id string)
	Status() scheduler.Status
}

// RunLister reads recorded runs.
type RunLister interface {
	Recent(ctx context.Context, jobID string, limit int) ([]history.Run, error)
}

var _ Registry = (*scheduler.Scheduler)(nil)

var errHistoryDisabled = shared.MarkKind(errors.New("run history is disabled"), shared.KindNotFound)

type handler struct {
	reg    Registry
	runs   RunLister
	logger *slog.Logger
}

// NewRouter builds the gin engine. runs may be nil when history is off.
func NewRouter(reg Registry, runs RunLister, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{reg: reg, runs: runs, logger: logger.With("component", "httpapi")}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.logger))

	r.GET("/healthz", h.health)
	jobs := r.Group("/jobs")
	jobs.GET("", h.listJobs)
	jobs.GET("/:id", h.getJob)
	jobs.POST("/:id/start", h.startJob)
	jobs.POST("/:id/stop", h.stopJob)
	jobs.DELETE("/:id", h.removeJob)
	jobs.GET("/:id/runs", h.listRuns)
	return r
}

type statusResponse struct {
	Total  int                 `json:"total"`
	Active []scheduler.JobInfo `json:"active"`
	Idle   []scheduler.JobInfo `json:"idle"`
}

type runResponse struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"job_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Panicked   bool      `json:"panicked,omitempty"`
}

type runsQuery struct {
	Limit *int `form:"limit" binding:"omitempty,min=1,max=500"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "jobs": h.reg.Status().TotalJobs})
}

func (h *handler) listJobs(c *gin.Context) {
	st := h.reg.Status()
	c.JSON(http.StatusOK, statusResponse{
		Total:  st.TotalJobs,
		Active: infos(st.ActiveJobs),
		Idle:   infos(st.IdleJobs),
	})
}

func (h *handler) getJob(c *gin.Context) {
	job, err := h.reg.GetJob(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, job.Info())
}

func (h *handler) startJob(c *gin.Context) {
	h.toggle(c, h.reg.StartJob)
}

func (h *handler) stopJob(c *gin.Context) {
	h.toggle(c, h.reg.StopJob)
}

func (h *handler) toggle(c *gin.Context, fn func(string) error) {
	id := c.Param("id")
	if err := fn(id); err != nil {
		h.fail(c, err)
		return
	}
	h.getJob(c)
}

func (h *handler) removeJob(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.reg.GetJob(id); err != nil {
		h.fail(c, err)
		return
	}
	h.reg.RemoveJob(id)
	h.logger.Info("job removed over http", "job", id)
	c.Status(http.StatusNoContent)
}

func (h *handler) listRuns(c *gin.Context) {
	if h.runs == nil {
		h.fail(c, errHistoryDisabled)
		return
	}
	var q runsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, shared.MarkKind(fmt.Errorf("limit: %w", err), shared.KindValidation))
		return
	}

	limit := 0
	if q.Limit != nil {
		limit = *q.Limit
	}
	runs, err := h.runs.Recent(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]runResponse, len(runs))
	for i, r := range runs {
		out[i] = runResponse{
			ID:         r.ID,
			JobID:      r.JobID,
			StartedAt:  r.StartedAt,
			DurationMs: float64(r.Duration) / float64(time.Millisecond),
			Error:      r.Err,
			Panicked:   r.Panicked,
		}
	}
	c.JSON(http.StatusOK, out)
}

// fail writes err with a status derived from its kind.
func (h *handler) fail(c *gin.Context, err error) {
	kind := shared.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": errorBody{Kind: kind.String(), Message: err.Error()}})
}

func statusFor(k shared.Kind) int {
	switch k {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindTimeout:
		return http.StatusGatewayTimeout
	case shared.KindDependencyFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func infos(jobs []*scheduler.Job) []scheduler.JobInfo {
	out := make([]scheduler.JobInfo, len(jobs))
	for i, j := range jobs {
		out[i] = j.Info()
	}
	return out
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
