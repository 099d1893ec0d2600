package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourname/timetracker/internal"
	"github.com/yourname/timetracker/internal/auth"
	"github.com/yourname/timetracker/internal/service"
	"github.com/yourname/timetracker/internal/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Data  json.RawMessage    `json:"data"`
	Meta  map[string]any     `json:"meta"`
	Error *internal.AppError `json:"error"`
}

type testServer struct {
	router *gin.Engine
	app    App
	repos  *storage.Repositories
	clock  time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := internal.NopLogger{}
	repos, fs, err := storage.NewFileRepositories(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })

	require.NoError(t, fs.SeedUser(&internal.User{ID: "u1", Token: "tok-u1", Name: "Alice", WorkspaceIDs: []string{"ws1"}}))
	require.NoError(t, fs.SeedUser(&internal.User{ID: "u2", Token: "tok-u2", Name: "Bob", WorkspaceIDs: []string{"ws1"}}))
	require.NoError(t, fs.SeedUser(&internal.User{ID: "u3", Token: "tok-u3", Name: "Carol", WorkspaceIDs: []string{"ws1"}, Capabilities: []string{auth.CapabilityManageAnyTimesheets}}))
	require.NoError(t, fs.SeedProject(&internal.Project{ID: "p1", WorkspaceID: "ws1", Name: "Internal"}))
	require.NoError(t, fs.SeedTask(&internal.Task{ID: "t1", ProjectID: "p1", Name: "General"}))

	app := NewApp(logger, repos, auth.CapabilityAuthorizer{})
	provider := auth.NewLocalAuthProvider(repos.Users, logger)

	ts := &testServer{
		router: NewRouter(app, provider, false),
		app:    app,
		repos:  repos,
		clock:  time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC),
	}
	app.Timers().SetClock(func() time.Time { return ts.clock })
	return ts
}

func (ts *testServer) advance(d time.Duration) {
	ts.clock = ts.clock.Add(d)
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req, _ = http.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func TestUnauthorizedWithoutToken(t *testing.T) {
	ts := newTestServer(t)

	w, _ := ts.do(t, "GET", "/api/timer/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = ts.do(t, "GET", "/api/timer/status", "bogus", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTimerLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, "POST", "/api/timer/start", "tok-u1", `{"project_id":"p1","task_id":"t1","description":"api work"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var started service.StartResult
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.NotEmpty(t, started.EntryID)

	// Double start is rejected as a conflict.
	w, env = ts.do(t, "POST", "/api/timer/start", "tok-u1", `{"project_id":"p1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, internal.KindConflict, env.Error.Kind)

	ts.advance(10 * time.Minute)
	w, env = ts.do(t, "POST", "/api/timer/pause", "tok-u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 600, env.Meta["elapsed_seconds"])

	ts.advance(5 * time.Minute)
	w, _ = ts.do(t, "POST", "/api/timer/resume", "tok-u1", "")
	require.Equal(t, http.StatusOK, w.Code)

	ts.advance(5 * time.Minute)
	w, env = ts.do(t, "POST", "/api/timer/stop", "tok-u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stopped service.StopResult
	require.NoError(t, json.Unmarshal(env.Data, &stopped))
	assert.EqualValues(t, 900, stopped.TotalSeconds)
	assert.InDelta(t, 0.25, stopped.Hours, 1e-9)

	// Idle again: stop is now an invalid state.
	w, env = ts.do(t, "POST", "/api/timer/stop", "tok-u1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, internal.KindInvalidState, env.Error.Kind)

	// The finalized entry shows up under the week's timesheet.
	w, env = ts.do(t, "GET", "/api/timesheets/"+stopped.TimesheetID+"/entries", "tok-u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var entries []internal.TimesheetEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 1)
	assert.InDelta(t, 0.25, entries[0].Hours, 1e-9)
}

func TestTimerStatusOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	w, env := ts.do(t, "GET", "/api/timer/status", "tok-u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var status service.TimerStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Active)

	_, _ = ts.do(t, "POST", "/api/timer/start", "tok-u1", `{"project_id":"p1"}`)
	ts.advance(42 * time.Second)

	w, env = ts.do(t, "GET", "/api/timer/status", "tok-u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.True(t, status.Active)
	assert.EqualValues(t, 42, status.ElapsedSeconds)
}

func (ts *testServer) makeSheet(t *testing.T, userID string) *internal.Timesheet {
	t.Helper()
	sheet, err := service.FindOrCreateTimesheet(context.Background(), ts.repos.Timesheets, userID, "ws1", ts.clock)
	require.NoError(t, err)
	return sheet
}

func TestEntryCRUDOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	sheet := ts.makeSheet(t, "u1")
	date := ts.clock.Format(time.RFC3339)

	// Out-of-range hours fail validation.
	body := fmt.Sprintf(`{"timesheet_id":%q,"project_id":"p1","date":%q,"hours":25}`, sheet.ID, date)
	w, _ := ts.do(t, "POST", "/api/entries", "tok-u1", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = fmt.Sprintf(`{"timesheet_id":%q,"project_id":"p1","date":%q,"hours":0.1,"description":"standup"}`, sheet.ID, date)
	w, env := ts.do(t, "POST", "/api/entries", "tok-u1", body)
	require.Equal(t, http.StatusCreated, w.Code)
	var entry internal.TimesheetEntry
	require.NoError(t, json.Unmarshal(env.Data, &entry))
	assert.True(t, entry.IsBillable)

	// Another user without the capability may not touch it.
	w, env = ts.do(t, "PUT", "/api/entries/"+entry.ID, "tok-u2", `{"hours":2}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, internal.KindAccessDenied, env.Error.Kind)

	// A manager may.
	w, _ = ts.do(t, "PUT", "/api/entries/"+entry.ID, "tok-u3", `{"hours":2}`)
	assert.Equal(t, http.StatusOK, w.Code)

	// Totals follow.
	w, env = ts.do(t, "GET", "/api/timesheets/"+sheet.ID, "tok-u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got internal.Timesheet
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.InDelta(t, 2.0, got.TotalHours, 1e-9)

	w, env = ts.do(t, "DELETE", "/api/entries/"+entry.ID, "tok-u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, env.Meta["deleted"])

	w, _ = ts.do(t, "DELETE", "/api/entries/"+entry.ID, "tok-u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBulkEndpointsOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	sheet := ts.makeSheet(t, "u1")
	date := ts.clock.Format(time.RFC3339)

	var ids []string
	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"timesheet_id":%q,"project_id":"p1","date":%q,"hours":1}`, sheet.ID, date)
		w, env := ts.do(t, "POST", "/api/entries", "tok-u1", body)
		require.Equal(t, http.StatusCreated, w.Code)
		var entry internal.TimesheetEntry
		require.NoError(t, json.Unmarshal(env.Data, &entry))
		ids = append(ids, entry.ID)
	}

	idsJSON, _ := json.Marshal(ids)
	w, env := ts.do(t, "POST", "/api/entries/bulk/billable", "tok-u1", fmt.Sprintf(`{"entry_ids":%s,"is_billable":false}`, idsJSON))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, env.Meta["updated"])

	// Missing flag fails validation.
	w, _ = ts.do(t, "POST", "/api/entries/bulk/billable", "tok-u1", fmt.Sprintf(`{"entry_ids":%s}`, idsJSON))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = ts.do(t, "POST", "/api/entries/bulk/delete", "tok-u1", fmt.Sprintf(`{"entry_ids":%s}`, idsJSON))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, env.Meta["deleted"])

	w, env = ts.do(t, "GET", "/api/timesheets/"+sheet.ID, "tok-u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got internal.Timesheet
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Zero(t, got.TotalHours)
}

func TestTimesheetVisibility(t *testing.T) {
	ts := newTestServer(t)
	sheet := ts.makeSheet(t, "u1")

	// Owner and manager can read it; another user cannot.
	w, _ := ts.do(t, "GET", "/api/timesheets/"+sheet.ID, "tok-u1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, "GET", "/api/timesheets/"+sheet.ID, "tok-u3", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, "GET", "/api/timesheets/"+sheet.ID, "tok-u2", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := ts.do(t, "GET", "/api/timesheets", "tok-u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sheets []internal.Timesheet
	require.NoError(t, json.Unmarshal(env.Data, &sheets))
	assert.Len(t, sheets, 1)
}
