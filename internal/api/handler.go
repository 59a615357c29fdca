package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/devpulse-io/devpulse/internal/aggregator"
	"github.com/devpulse-io/devpulse/internal/domain"
	apperrors "github.com/devpulse-io/devpulse/internal/errors"
	"github.com/devpulse-io/devpulse/internal/storage"
)

// Handler handles API requests
type Handler struct {
	aggregator aggregator.Aggregator
	storage    storage.Storage
}

// NewHandler creates a new API handler
func NewHandler(agg aggregator.Aggregator, store storage.Storage) *Handler {
	return &Handler{
		aggregator: agg,
		storage:    store,
	}
}

// HealthCheck returns the health status of the API
// GET /health
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// GetOrgSummary returns the organization activity summary
// GET /api/v1/orgs/:org/summary
func (h *Handler) GetOrgSummary(c *gin.Context) {
	org := c.Param("org")
	timeRange := parseTimeRange(c)

	summary, err := h.aggregator.Summary(c.Request.Context(), org, timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": summary,
	})
}

// GetMembersActivity returns activity for every member in the window
// GET /api/v1/orgs/:org/members/activity
func (h *Handler) GetMembersActivity(c *gin.Context) {
	org := c.Param("org")
	timeRange := parseTimeRange(c)

	members, err := h.aggregator.MembersActivity(c.Request.Context(), org, timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": members,
	})
}

// GetMemberActivity returns activity for one member
// GET /api/v1/orgs/:org/members/:member/activity
func (h *Handler) GetMemberActivity(c *gin.Context) {
	org := c.Param("org")
	member := c.Param("member")
	timeRange := parseTimeRange(c)

	activity, err := h.aggregator.MemberActivity(c.Request.Context(), org, member, timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": activity,
	})
}

// GetTimeSeries returns bucketed counts for one record kind
// GET /api/v1/orgs/:org/timeseries?kind=pull_request
func (h *Handler) GetTimeSeries(c *gin.Context) {
	org := c.Param("org")
	kind := domain.RecordKind(c.DefaultQuery("kind", string(domain.RecordKindPullRequest)))
	timeRange := parseTimeRange(c)

	series, err := h.aggregator.TimeSeries(c.Request.Context(), org, kind, timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": series,
	})
}

// GetReleases returns releases, optionally filtered by environment
// GET /api/v1/orgs/:org/releases?env=production
func (h *Handler) GetReleases(c *gin.Context) {
	org := c.Param("org")
	env := domain.Environment(c.Query("env"))
	timeRange := parseTimeRange(c)

	switch env {
	case "", domain.EnvironmentProduction, domain.EnvironmentStaging:
	default:
		respondError(c, apperrors.NewInvalidInputError("env must be production or staging"))
		return
	}

	releases, err := h.aggregator.ReleasesByEnvironment(c.Request.Context(), org, env, timeRange)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": releases,
	})
}

// GetLatestRun returns the most recent collection run for an organization
// GET /api/v1/orgs/:org/runs/latest
func (h *Handler) GetLatestRun(c *gin.Context) {
	org := c.Param("org")

	run, err := h.storage.LatestRun(c.Request.Context(), org)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": run,
	})
}

// parseTimeRange parses time range from query parameters
func parseTimeRange(c *gin.Context) domain.TimeRange {
	// Default to the last 30 days
	now := time.Now().UTC()
	defaultStart := now.AddDate(0, -1, 0)
	defaultEnd := now

	startStr := c.Query("start")
	endStr := c.Query("end")
	granularity := c.DefaultQuery("granularity", "day")

	var start, end time.Time
	var err error

	if startStr != "" {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			start = defaultStart
		}
	} else {
		start = defaultStart
	}

	if endStr != "" {
		end, err = time.Parse("2006-01-02", endStr)
		if err != nil {
			end = defaultEnd
		}
	} else {
		end = defaultEnd
	}

	if granularity != "day" && granularity != "week" && granularity != "month" {
		granularity = "day"
	}

	return domain.TimeRange{
		Start:       start,
		End:         end,
		Granularity: granularity,
	}
}

// respondError sends an error response
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch appErr.Code {
		case apperrors.ErrCodeNotFound:
			status = http.StatusNotFound
		case apperrors.ErrCodeInvalidInput:
			status = http.StatusBadRequest
		case apperrors.ErrCodeAuthFailed:
			status = http.StatusUnauthorized
		case apperrors.ErrCodeRateLimited:
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			},
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error": gin.H{
			"code":    "INTERNAL_ERROR",
			"message": err.Error(),
		},
	})
}
