package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tkhuang/riskcast/internal/domain"
	"github.com/tkhuang/riskcast/internal/service"
)

// JobHandler handles bulk job endpoints.
type JobHandler struct {
	jobs *service.JobService
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - jobs: job service instance.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(jobs *service.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// jobStatusResponse is the polling view of a job.
type jobStatusResponse struct {
	ID                 string              `json:"id"`
	JobType            domain.JobType      `json:"job_type"`
	Priority           domain.Priority     `json:"priority"`
	Status             domain.JobStatus    `json:"status"`
	TotalRows          int                 `json:"total_rows"`
	ProcessedRows      int                 `json:"processed_rows"`
	SuccessfulRows     int                 `json:"successful_rows"`
	FailedRows         int                 `json:"failed_rows"`
	ProgressPercentage float64             `json:"progress_percentage"`
	Errors             domain.JobErrorList `json:"errors"`
	CreatedAt          string              `json:"created_at"`
	StartedAt          *string             `json:"started_at,omitempty"`
	CompletedAt        *string             `json:"completed_at,omitempty"`
}

func toJobStatusResponse(job *domain.BulkJob) jobStatusResponse {
	resp := jobStatusResponse{
		ID:                 job.ID,
		JobType:            job.JobType,
		Priority:           job.Priority,
		Status:             job.Status,
		TotalRows:          job.TotalRows,
		ProcessedRows:      job.ProcessedRows,
		SuccessfulRows:     job.SuccessfulRows,
		FailedRows:         job.FailedRows,
		ProgressPercentage: job.ProgressPercentage(),
		Errors:             job.Errors,
		CreatedAt:          job.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if resp.Errors == nil {
		resp.Errors = domain.JobErrorList{}
	}
	if job.StartedAt != nil {
		s := job.StartedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.StartedAt = &s
	}
	if job.CompletedAt != nil {
		s := job.CompletedAt.Format("2006-01-02T15:04:05Z07:00")
		resp.CompletedAt = &s
	}
	return resp
}

// CreateJob handles POST /api/v1/jobs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req service.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if req.Scope == "" {
		req.Scope = c.GetHeader("X-Scope")
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
		"status": job.Status,
	})
}

// GetJob handles GET /api/v1/jobs/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, toJobStatusResponse(job))
}

// ListJobs handles GET /api/v1/jobs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) ListJobs(c *gin.Context) {
	scope := c.Query("scope")
	if scope == "" {
		scope = c.GetHeader("X-Scope")
	}
	status := domain.JobStatus(c.Query("status"))

	limit := intQuery(c, "limit", 20)
	offset := intQuery(c, "offset", 0)

	jobs, total, err := h.jobs.ListJobs(c.Request.Context(), scope, status, limit, offset)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}

	items := make([]jobStatusResponse, len(jobs))
	for i := range jobs {
		items[i] = toJobStatusResponse(&jobs[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":   items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// CancelJob handles POST /api/v1/jobs/:id/cancel.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *JobHandler) CancelJob(c *gin.Context) {
	job, err := h.jobs.CancelJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, domain.ErrInvalidState):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to cancel job: " + err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, toJobStatusResponse(job))
}

// intQuery parses an integer query parameter with a fallback.
func intQuery(c *gin.Context, key string, fallback int) int {
	val := c.Query(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}
