package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// SetupRoutes sets up the API routes
func SetupRoutes(handler *Handler, log *slog.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(RequestID())
	router.Use(Logger(log))
	router.Use(CORS())

	// Health check
	router.GET("/health", handler.HealthCheck)

	// API v1
	v1 := router.Group("/api/v1")
	{
		orgs := v1.Group("/orgs/:org")
		{
			orgs.GET("/summary", handler.GetOrgSummary)
			orgs.GET("/timeseries", handler.GetTimeSeries)
			orgs.GET("/releases", handler.GetReleases)
			orgs.GET("/runs/latest", handler.GetLatestRun)

			members := orgs.Group("/members")
			{
				members.GET("/activity", handler.GetMembersActivity)
				members.GET("/:member/activity", handler.GetMemberActivity)
			}
		}
	}

	return router
}
