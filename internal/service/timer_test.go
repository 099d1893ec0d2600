package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourname/timetracker/internal"
	"github.com/yourname/timetracker/internal/auth"
	"github.com/yourname/timetracker/internal/storage"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newTestRepos(t *testing.T) *storage.Repositories {
	t.Helper()
	repos, fs, err := storage.NewFileRepositories(t.TempDir(), internal.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })

	require.NoError(t, fs.SeedUser(&internal.User{ID: "u1", Token: "tok-u1", Name: "Alice", WorkspaceIDs: []string{"ws1"}}))
	require.NoError(t, fs.SeedUser(&internal.User{ID: "u2", Token: "tok-u2", Name: "Bob", WorkspaceIDs: []string{"ws2"}}))
	require.NoError(t, fs.SeedUser(&internal.User{ID: "u3", Token: "tok-u3", Name: "Mallory", WorkspaceIDs: []string{"ws1"}, Capabilities: []string{auth.CapabilityManageAnyTimesheets}}))
	require.NoError(t, fs.SeedProject(&internal.Project{ID: "p1", WorkspaceID: "ws1", Name: "Internal"}))
	require.NoError(t, fs.SeedProject(&internal.Project{ID: "p2", WorkspaceID: "ws2", Name: "Client"}))
	require.NoError(t, fs.SeedTask(&internal.Task{ID: "t1", ProjectID: "p1", Name: "General"}))
	return repos
}

func newTimerService(t *testing.T) (*TimerService, *storage.Repositories, *fakeClock) {
	t.Helper()
	repos := newTestRepos(t)
	clock := &fakeClock{t: time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)} // a Wednesday
	svc := NewTimerService(repos, auth.CapabilityAuthorizer{}, internal.NopLogger{})
	svc.SetClock(clock.Now)
	return svc, repos, clock
}

func testUser(t *testing.T, repos *storage.Repositories, id string) *internal.User {
	t.Helper()
	u, err := repos.Users.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func assertKind(t *testing.T, err error, kind string) {
	t.Helper()
	appErr, ok := internal.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	assert.Equal(t, kind, appErr.Kind)
}

func TestTimerAccrualAcrossPauseCycle(t *testing.T) {
	svc, repos, clock := newTimerService(t)
	ctx := context.Background()
	user := testUser(t, repos, "u1")

	started, err := svc.Start(ctx, user, &StartRequest{ProjectID: "p1", TaskID: "t1", Description: "deep work"})
	require.NoError(t, err)
	assert.NotEmpty(t, started.EntryID)
	assert.Equal(t, clock.Now(), started.StartedAt)

	clock.Advance(10 * time.Minute)
	banked, err := svc.Pause(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(600), banked)

	// Paused time must not accrue.
	clock.Advance(5 * time.Minute)
	status, err := svc.Status(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, internal.TimerPaused, status.Phase)
	assert.Equal(t, int64(600), status.ElapsedSeconds)

	_, err = svc.Resume(ctx, user)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	result, err := svc.Stop(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(900), result.TotalSeconds)
	assert.InDelta(t, 0.25, result.Hours, 1e-9)

	entry, err := repos.Entries.GetEntry(ctx, started.EntryID)
	require.NoError(t, err)
	require.NotNil(t, entry.EndTime)
	assert.Equal(t, clock.Now(), *entry.EndTime)
	assert.InDelta(t, 0.25, entry.Hours, 1e-9)

	sheet, err := repos.Timesheets.GetTimesheet(ctx, started.TimesheetID)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, sheet.TotalHours, 1e-9)
	assert.InDelta(t, 0.25, sheet.BillableHours, 1e-9)

	// Back to idle.
	status, err = svc.Status(ctx, user)
	require.NoError(t, err)
	assert.False(t, status.Active)
	assert.Equal(t, internal.TimerIdle, status.Phase)
}

func TestTimerMultiplePauseCycles(t *testing.T) {
	svc, repos, clock := newTimerService(t)
	ctx := context.Background()
	user := testUser(t, repos, "u1")

	_, err := svc.Start(ctx, user, &StartRequest{ProjectID: "p1"})
	require.NoError(t, err)

	var want int64
	for i := 0; i < 4; i++ {
		clock.Advance(90 * time.Second)
		want += 90
		_, err = svc.Pause(ctx, user)
		require.NoError(t, err)
		clock.Advance(time.Duration(i+1) * time.Minute) // arbitrary pause length
		_, err = svc.Resume(ctx, user)
		require.NoError(t, err)
	}
	clock.Advance(40 * time.Second)
	want += 40

	result, err := svc.Stop(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, want, result.TotalSeconds)
	assert.InDelta(t, 0.11, result.Hours, 1e-9) // round(400/3600, 2)
}

func TestStartConflictWhileActive(t *testing.T) {
	svc, repos, clock := newTimerService(t)
	ctx := context.Background()
	user := testUser(t, repos, "u1")

	_, err := svc.Start(ctx, user, &StartRequest{ProjectID: "p1"})
	require.NoError(t, err)

	_, err = svc.Start(ctx, user, &StartRequest{ProjectID: "p1"})
	assertKind(t, err, internal.KindConflict)

	// Still a conflict from paused.
	clock.Advance(time.Minute)
	_, err = svc.Pause(ctx, user)
	require.NoError(t, err)
	_, err = svc.Start(ctx, user, &StartRequest{ProjectID: "p1"})
	assertKind(t, err, internal.KindConflict)
}

func TestInvalidTransitions(t *testing.T) {
	svc, repos, clock := newTimerService(t)
	ctx := context.Background()
	user := testUser(t, repos, "u1")

	// All operations except start are invalid from idle.
	_, err := svc.Pause(ctx, user)
	assertKind(t, err, internal.KindInvalidState)
	_, err = svc.Resume(ctx, user)
	assertKind(t, err, internal.KindInvalidState)
	_, err = svc.Stop(ctx, user)
	assertKind(t, err, internal.KindInvalidState)

	_, err = svc.Start(ctx, user, &StartRequest{ProjectID: "p1"})
	require.NoError(t, err)

	// Resume while running.
	_, err = svc.Resume(ctx, user)
	assertKind(t, err, internal.KindInvalidState)

	clock.Advance(time.Minute)
	_, err = svc.Pause(ctx, user)
	require.NoError(t, err)

	// Pause while paused.
	_, err = svc.Pause(ctx, user)
	assertKind(t, err, internal.KindInvalidState)

	// Stop is allowed from paused.
	result, err := svc.Stop(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(60), result.TotalSeconds)
}

func TestStartAuthorization(t *testing.T) {
	svc, repos, _ := newTimerService(t)
	ctx := context.Background()

	// u1 is not a member of p2's workspace.
	_, err := svc.Start(ctx, testUser(t, repos, "u1"), &StartRequest{ProjectID: "p2"})
	assertKind(t, err, internal.KindAccessDenied)

	_, err = svc.Start(ctx, testUser(t, repos, "u1"), &StartRequest{ProjectID: "nope"})
	assertKind(t, err, internal.KindNotFound)

	_, err = svc.Start(ctx, testUser(t, repos, "u1"), &StartRequest{ProjectID: "p1", TaskID: "missing"})
	assertKind(t, err, internal.KindNotFound)

	_, err = svc.Start(ctx, testUser(t, repos, "u1"), &StartRequest{})
	assertKind(t, err, internal.KindValidation)
}

func TestStartCreatesWeeklyTimesheetLazily(t *testing.T) {
	svc, repos, clock := newTimerService(t)
	ctx := context.Background()
	user := testUser(t, repos, "u1")

	started, err := svc.Start(ctx, user, &StartRequest{ProjectID: "p1"})
	require.NoError(t, err)

	sheet, err := repos.Timesheets.GetTimesheet(ctx, started.TimesheetID)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), sheet.StartDate) // Monday
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), sheet.EndDate)  // Sunday
	assert.Equal(t, internal.TimesheetStatusDraft, sheet.Status)
	assert.Zero(t, sheet.TotalHours)
	assert.True(t, sheet.CreatedAt.Equal(clock.Now()), "created at the clock's time, not the wall clock's")

	clock.Advance(time.Minute)
	_, err = svc.Stop(ctx, user)
	require.NoError(t, err)

	// A second start in the same week reuses the sheet.
	again, err := svc.Start(ctx, user, &StartRequest{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, started.TimesheetID, again.TimesheetID)
}

func TestStatusIsReadOnly(t *testing.T) {
	svc, repos, clock := newTimerService(t)
	ctx := context.Background()
	user := testUser(t, repos, "u1")

	_, err := svc.Start(ctx, user, &StartRequest{ProjectID: "p1"})
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	status, err := svc.Status(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(30), status.ElapsedSeconds)
	assert.Equal(t, internal.TimerRunning, status.Phase)

	clock.Advance(30 * time.Second)
	status, err = svc.Status(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(60), status.ElapsedSeconds)

	// Status must not have banked anything.
	state, err := repos.Timers.GetTimerState(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, state.BankedSeconds)
}

func TestTimersAreIndependentPerUser(t *testing.T) {
	svc, repos, clock := newTimerService(t)
	ctx := context.Background()
	alice := testUser(t, repos, "u1")
	bob := testUser(t, repos, "u2")

	_, err := svc.Start(ctx, alice, &StartRequest{ProjectID: "p1"})
	require.NoError(t, err)
	_, err = svc.Start(ctx, bob, &StartRequest{ProjectID: "p2"})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = svc.Pause(ctx, alice)
	require.NoError(t, err)

	bobStatus, err := svc.Status(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, internal.TimerRunning, bobStatus.Phase)
	assert.Equal(t, int64(120), bobStatus.ElapsedSeconds)
}
