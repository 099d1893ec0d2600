package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourname/timetracker/internal"
	"github.com/yourname/timetracker/internal/response"
)

// HandleError maps a service error onto the response envelope. Taxonomy
// errors carry their own HTTP status; everything else is a 500.
func HandleError(c *gin.Context, logger internal.Logger, err error) {
	requestID := c.GetString("request_id")
	if appErr, ok := internal.AsAppError(err); ok {
		logger.Warnf("[request_id=%s] %s: %s", requestID, appErr.Kind, appErr.Message)
		c.JSON(appErr.Code, response.FromAppError(appErr))
		return
	}
	logger.Errorf("[request_id=%s] internal error: %v", requestID, err)
	c.JSON(http.StatusInternalServerError, response.InternalError("internal error"))
}

func HandleSuccess(c *gin.Context, logger internal.Logger, status int, data interface{}, meta map[string]any) {
	requestID := c.GetString("request_id")
	logger.Debugf("[request_id=%s] %d", requestID, status)
	c.JSON(status, response.Success(data, meta))
}

func currentUser(c *gin.Context) *internal.User {
	return c.MustGet("user").(*internal.User)
}
