package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourname/timetracker/internal"
	"github.com/yourname/timetracker/internal/service"
)

func StartTimer(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		var body service.StartRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), internal.ValidationError("invalid JSON: "+err.Error()))
			return
		}

		result, err := app.Timers().Start(c.Request.Context(), user, &body)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusCreated, result, nil)
	}
}

func PauseTimer(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		elapsed, err := app.Timers().Pause(c.Request.Context(), user)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusOK, nil, map[string]any{"elapsed_seconds": elapsed})
	}
}

func ResumeTimer(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		startedAt, err := app.Timers().Resume(c.Request.Context(), user)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusOK, nil, map[string]any{"started_at": startedAt})
	}
}

func StopTimer(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		result, err := app.Timers().Stop(c.Request.Context(), user)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusOK, result, nil)
	}
}

func TimerStatus(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		status, err := app.Timers().Status(c.Request.Context(), user)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusOK, status, nil)
	}
}
