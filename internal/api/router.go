package api

import (
	"github.com/gin-gonic/gin"
	"github.com/yourname/timetracker/internal/auth"
)

// NewRouter builds the full route table. remote selects which side of the
// auth Provider validates tokens.
func NewRouter(app App, provider auth.Provider, remote bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(auth.Middleware(provider, remote))

	timer := r.Group("/api/timer")
	{
		timer.POST("/start", StartTimer(app))
		timer.POST("/pause", PauseTimer(app))
		timer.POST("/resume", ResumeTimer(app))
		timer.POST("/stop", StopTimer(app))
		timer.GET("/status", TimerStatus(app))
	}

	sheets := r.Group("/api/timesheets")
	{
		sheets.GET("", ListTimesheets(app))
		sheets.GET("/:id", GetTimesheet(app))
		sheets.GET("/:id/entries", ListTimesheetEntries(app))
	}

	entries := r.Group("/api/entries")
	{
		entries.POST("", CreateEntry(app))
		entries.PUT("/:id", UpdateEntry(app))
		entries.DELETE("/:id", DeleteEntry(app))
		entries.POST("/bulk/billable", BulkSetBillable(app))
		entries.POST("/bulk/delete", BulkDeleteEntries(app))
	}

	return r
}
