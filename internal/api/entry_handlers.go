package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourname/timetracker/internal"
	"github.com/yourname/timetracker/internal/service"
)

// --- Request Structs ---

type bulkBillableRequest struct {
	EntryIDs   []string `json:"entry_ids"`
	IsBillable *bool    `json:"is_billable"`
}

type bulkDeleteRequest struct {
	EntryIDs []string `json:"entry_ids"`
}

// --- Handlers ---

func CreateEntry(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		var body service.EntryCreateRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), internal.ValidationError("invalid JSON: "+err.Error()))
			return
		}

		entry, err := app.Entries().Create(c.Request.Context(), user, &body)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusCreated, entry, nil)
	}
}

func UpdateEntry(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		var body service.EntryUpdateRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), internal.ValidationError("invalid JSON: "+err.Error()))
			return
		}

		entry, err := app.Entries().Update(c.Request.Context(), user, c.Param("id"), &body)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusOK, entry, nil)
	}
}

func DeleteEntry(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		if err := app.Entries().Delete(c.Request.Context(), user, c.Param("id")); err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusOK, nil, map[string]any{"deleted": 1})
	}
}

func BulkSetBillable(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		var body bulkBillableRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), internal.ValidationError("invalid JSON: "+err.Error()))
			return
		}
		if body.IsBillable == nil {
			HandleError(c, app.Logger(), internal.ValidationError("is_billable is required"))
			return
		}

		updated, err := app.Entries().BulkSetBillable(c.Request.Context(), user, body.EntryIDs, *body.IsBillable)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusOK, nil, map[string]any{"updated": updated})
	}
}

func BulkDeleteEntries(app App) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		var body bulkDeleteRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			HandleError(c, app.Logger(), internal.ValidationError("invalid JSON: "+err.Error()))
			return
		}

		deleted, err := app.Entries().BulkDelete(c.Request.Context(), user, body.EntryIDs)
		if err != nil {
			HandleError(c, app.Logger(), err)
			return
		}
		HandleSuccess(c, app.Logger(), http.StatusOK, nil, map[string]any{"deleted": deleted})
	}
}
