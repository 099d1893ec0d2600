package storage

import (
	"context"
	"errors"
	"time"

	"github.com/yourname/timetracker/internal"
)

// ErrNotFound is returned by every backend when a looked-up record does not
// exist. Services translate it into the caller-facing taxonomy.
var ErrNotFound = errors.New("storage: not found")

type UserRepository interface {
	GetUserByToken(ctx context.Context, token string) (*internal.User, error)
	GetUser(ctx context.Context, id string) (*internal.User, error)
}

// ProjectRepository answers existence checks for referenced projects/tasks.
type ProjectRepository interface {
	GetProject(ctx context.Context, id string) (*internal.Project, error)
	GetTask(ctx context.Context, id string) (*internal.Task, error)
}

// TimerStateRepository stores the per-user singleton timer record.
// GetTimerState returns ErrNotFound when the user has no record, which the
// timer service treats as idle.
type TimerStateRepository interface {
	GetTimerState(ctx context.Context, userID string) (*internal.TimerState, error)
	SaveTimerState(ctx context.Context, state *internal.TimerState) error
	ClearTimerState(ctx context.Context, userID string) error
}

type TimesheetRepository interface {
	GetTimesheet(ctx context.Context, id string) (*internal.Timesheet, error)
	// FindTimesheet looks up the unique (user, workspace, week-start) sheet.
	FindTimesheet(ctx context.Context, userID, workspaceID string, startDate time.Time) (*internal.Timesheet, error)
	SaveTimesheet(ctx context.Context, sheet *internal.Timesheet) error
	ListTimesheets(ctx context.Context, userID string) ([]internal.Timesheet, error)
	// RecomputeTotals reloads the sheet's totals from its entries in one
	// guarded read-then-write so concurrent entry mutations cannot be lost.
	RecomputeTotals(ctx context.Context, timesheetID string) (*internal.Timesheet, error)
}

type EntryRepository interface {
	GetEntry(ctx context.Context, id string) (*internal.TimesheetEntry, error)
	SaveEntry(ctx context.Context, entry *internal.TimesheetEntry) error
	ListEntries(ctx context.Context, timesheetID string) ([]internal.TimesheetEntry, error)
	DeleteEntry(ctx context.Context, id string) error
}

// Repositories bundles one backend's views; every field is backed by the same
// store so cross-repository operations see consistent data.
type Repositories struct {
	Users      UserRepository
	Projects   ProjectRepository
	Timers     TimerStateRepository
	Timesheets TimesheetRepository
	Entries    EntryRepository
}
