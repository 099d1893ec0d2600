package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/yourname/timetracker/internal"
	"github.com/yourname/timetracker/internal/storage"
)

// Authorizer is the authorization collaborator boundary: workspace membership
// and the cross-user timesheet-management capability.
type Authorizer interface {
	CanAccessWorkspace(user *internal.User, workspaceID string) bool
	CanManageTimesheets(user *internal.User) bool
}

// WeekBounds returns the ISO week containing t as UTC dates: Monday 00:00:00
// through Sunday 00:00:00.
func WeekBounds(t time.Time) (start, end time.Time) {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	start = day.AddDate(0, 0, -offset)
	end = start.AddDate(0, 0, 6)
	return start, end
}

// FindOrCreateTimesheet returns the user's timesheet for the week containing
// at, creating it with zero totals on the week's first use.
func FindOrCreateTimesheet(ctx context.Context, sheets storage.TimesheetRepository, userID, workspaceID string, at time.Time) (*internal.Timesheet, error) {
	start, end := WeekBounds(at)
	sheet, err := sheets.FindTimesheet(ctx, userID, workspaceID, start)
	if err == nil {
		return sheet, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	sheet = &internal.Timesheet{
		ID:          uuid.NewString(),
		UserID:      userID,
		WorkspaceID: workspaceID,
		StartDate:   start,
		EndDate:     end,
		Status:      internal.TimesheetStatusDraft,
		CreatedAt:   at.UTC(),
	}
	if err := sheets.SaveTimesheet(ctx, sheet); err != nil {
		return nil, err
	}
	return sheet, nil
}

// GetTimesheetForUser loads a timesheet the requester may see: their own, or
// anyone's with the management capability.
func GetTimesheetForUser(ctx context.Context, sheets storage.TimesheetRepository, authz Authorizer, user *internal.User, id string) (*internal.Timesheet, error) {
	sheet, err := sheets.GetTimesheet(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, internal.NotFoundError("timesheet not found")
		}
		return nil, err
	}
	if sheet.UserID != user.ID && !authz.CanManageTimesheets(user) {
		return nil, internal.AccessDeniedError("not allowed to view this timesheet")
	}
	return sheet, nil
}
