package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourname/timetracker/internal/service"
)

func ListTimesheets(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		sheets, err := app.Timesheets().ListTimesheets(c.Request.Context(), user.ID)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusOK, sheets, nil)
	}
}

func GetTimesheet(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		sheet, err := service.GetTimesheetForUser(c.Request.Context(), app.Timesheets(), app.Authorizer(), user, c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusOK, sheet, nil)
	}
}

func ListTimesheetEntries(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		entries, err := app.Entries().ListForTimesheet(c.Request.Context(), user, c.Param("id"))
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusOK, entries, nil)
	}
}
