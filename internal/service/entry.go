package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/yourname/timetracker/internal"
	"github.com/yourname/timetracker/internal/storage"
)

var validate = validator.New()

// EntryService handles manual timesheet entry CRUD with ownership-based
// authorization. Every mutation recomputes the affected timesheet's totals;
// bulk operations authorize the whole batch before touching anything and
// recompute once per distinct affected timesheet.
type EntryService struct {
	sheets   storage.TimesheetRepository
	entries  storage.EntryRepository
	projects storage.ProjectRepository
	authz    Authorizer
	logger   internal.Logger
}

func NewEntryService(repos *storage.Repositories, authz Authorizer, logger internal.Logger) *EntryService {
	return &EntryService{
		sheets:   repos.Timesheets,
		entries:  repos.Entries,
		projects: repos.Projects,
		authz:    authz,
		logger:   logger,
	}
}

type EntryCreateRequest struct {
	TimesheetID string    `json:"timesheet_id" validate:"required"`
	ProjectID   string    `json:"project_id" validate:"required"`
	TaskID      string    `json:"task_id,omitempty"`
	Date        time.Time `json:"date" validate:"required"`
	Hours       float64   `json:"hours" validate:"required,gte=0.1,lte=24"`
	Description string    `json:"description,omitempty" validate:"omitempty,max=500"`
	IsBillable  *bool     `json:"is_billable,omitempty"`
	HourlyRate  float64   `json:"hourly_rate,omitempty" validate:"gte=0"`
}

type EntryUpdateRequest struct {
	TaskID      *string    `json:"task_id,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Hours       *float64   `json:"hours,omitempty" validate:"omitempty,gte=0.1,lte=24"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=500"`
	IsBillable  *bool      `json:"is_billable,omitempty"`
	HourlyRate  *float64   `json:"hourly_rate,omitempty" validate:"omitempty,gte=0"`
}

func (s *EntryService) Create(ctx context.Context, user *internal.User, req *EntryCreateRequest) (*internal.TimesheetEntry, error) {
	if err := validate.Struct(req); err != nil {
		return nil, internal.ValidationError(err.Error())
	}

	sheet, err := s.sheets.GetTimesheet(ctx, req.TimesheetID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, internal.NotFoundError("timesheet not found")
		}
		return nil, err
	}
	if sheet.UserID != user.ID && !s.authz.CanManageTimesheets(user) {
		return nil, internal.AccessDeniedError("not allowed to add entries to this timesheet")
	}

	project, err := s.projects.GetProject(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, internal.NotFoundError("project not found")
		}
		return nil, err
	}
	if project.WorkspaceID != sheet.WorkspaceID {
		return nil, internal.ValidationError("project does not belong to the timesheet's workspace")
	}
	if !s.authz.CanAccessWorkspace(user, project.WorkspaceID) {
		return nil, internal.AccessDeniedError("no access to the project's workspace")
	}
	if req.TaskID != "" {
		task, err := s.projects.GetTask(ctx, req.TaskID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, internal.NotFoundError("task not found")
			}
			return nil, err
		}
		if task.ProjectID != project.ID {
			return nil, internal.ValidationError("task does not belong to the project")
		}
	}

	date := req.Date.UTC()
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(sheet.StartDate) || date.After(sheet.EndDate) {
		return nil, internal.ValidationError("date falls outside the timesheet week")
	}

	billable := true
	if req.IsBillable != nil {
		billable = *req.IsBillable
	}
	entry := &internal.TimesheetEntry{
		ID:          uuid.NewString(),
		TimesheetID: sheet.ID,
		UserID:      sheet.UserID,
		WorkspaceID: sheet.WorkspaceID,
		ProjectID:   project.ID,
		TaskID:      req.TaskID,
		Date:        date,
		Hours:       req.Hours,
		Description: req.Description,
		IsBillable:  billable,
		HourlyRate:  req.HourlyRate,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.entries.SaveEntry(ctx, entry); err != nil {
		return nil, err
	}
	if _, err := s.sheets.RecomputeTotals(ctx, sheet.ID); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *EntryService) Update(ctx context.Context, user *internal.User, entryID string, req *EntryUpdateRequest) (*internal.TimesheetEntry, error) {
	if err := validate.Struct(req); err != nil {
		return nil, internal.ValidationError(err.Error())
	}

	entry, err := s.authorizedEntry(ctx, user, entryID)
	if err != nil {
		return nil, err
	}

	if req.TaskID != nil {
		if *req.TaskID != "" {
			task, err := s.projects.GetTask(ctx, *req.TaskID)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return nil, internal.NotFoundError("task not found")
				}
				return nil, err
			}
			if task.ProjectID != entry.ProjectID {
				return nil, internal.ValidationError("task does not belong to the project")
			}
		}
		entry.TaskID = *req.TaskID
	}
	if req.Date != nil {
		sheet, err := s.sheets.GetTimesheet(ctx, entry.TimesheetID)
		if err != nil {
			return nil, err
		}
		date := req.Date.UTC()
		day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		if day.Before(sheet.StartDate) || day.After(sheet.EndDate) {
			return nil, internal.ValidationError("date falls outside the timesheet week")
		}
		entry.Date = day
	}
	if req.Hours != nil {
		entry.Hours = *req.Hours
	}
	if req.Description != nil {
		entry.Description = *req.Description
	}
	if req.IsBillable != nil {
		entry.IsBillable = *req.IsBillable
	}
	if req.HourlyRate != nil {
		entry.HourlyRate = *req.HourlyRate
	}

	if err := s.entries.SaveEntry(ctx, entry); err != nil {
		return nil, err
	}
	if _, err := s.sheets.RecomputeTotals(ctx, entry.TimesheetID); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *EntryService) Delete(ctx context.Context, user *internal.User, entryID string) error {
	entry, err := s.authorizedEntry(ctx, user, entryID)
	if err != nil {
		return err
	}
	if err := s.entries.DeleteEntry(ctx, entry.ID); err != nil {
		return err
	}
	_, err = s.sheets.RecomputeTotals(ctx, entry.TimesheetID)
	return err
}

// BulkSetBillable flips the billable flag on a batch. The whole batch is
// authorized before any entry is touched.
func (s *EntryService) BulkSetBillable(ctx context.Context, user *internal.User, entryIDs []string, billable bool) (int, error) {
	batch, err := s.authorizedBatch(ctx, user, entryIDs)
	if err != nil {
		return 0, err
	}
	for _, entry := range batch {
		entry.IsBillable = billable
		if err := s.entries.SaveEntry(ctx, entry); err != nil {
			return 0, err
		}
	}
	if err := s.recomputeDistinct(ctx, batch); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// BulkDelete removes a batch, then recomputes each distinct affected
// timesheet exactly once. Timesheets are recomputed even when a delete in
// the middle of the batch fails, so totals never go stale.
func (s *EntryService) BulkDelete(ctx context.Context, user *internal.User, entryIDs []string) (int, error) {
	batch, err := s.authorizedBatch(ctx, user, entryIDs)
	if err != nil {
		return 0, err
	}
	deleted := 0
	var firstErr error
	for _, entry := range batch {
		if err := s.entries.DeleteEntry(ctx, entry.ID); err != nil {
			// Already gone (raced with another request) is not a failure.
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted++
	}
	if err := s.recomputeDistinct(ctx, batch); err != nil && firstErr == nil {
		firstErr = err
	}
	return deleted, firstErr
}

func (s *EntryService) ListForTimesheet(ctx context.Context, user *internal.User, timesheetID string) ([]internal.TimesheetEntry, error) {
	if _, err := GetTimesheetForUser(ctx, s.sheets, s.authz, user, timesheetID); err != nil {
		return nil, err
	}
	return s.entries.ListEntries(ctx, timesheetID)
}

// authorizedEntry loads an entry and checks the requester owns it or holds
// the cross-user management capability.
func (s *EntryService) authorizedEntry(ctx context.Context, user *internal.User, entryID string) (*internal.TimesheetEntry, error) {
	entry, err := s.entries.GetEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, internal.NotFoundError("entry not found")
		}
		return nil, err
	}
	if entry.UserID != user.ID && !s.authz.CanManageTimesheets(user) {
		return nil, internal.AccessDeniedError("not allowed to modify this entry")
	}
	return entry, nil
}

// authorizedBatch resolves a batch of entry IDs, dropping duplicates so a
// repeated ID is mutated only once downstream.
func (s *EntryService) authorizedBatch(ctx context.Context, user *internal.User, entryIDs []string) ([]*internal.TimesheetEntry, error) {
	if len(entryIDs) == 0 {
		return nil, internal.ValidationError("entry_ids must not be empty")
	}
	batch := make([]*internal.TimesheetEntry, 0, len(entryIDs))
	seen := make(map[string]bool, len(entryIDs))
	for _, id := range entryIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		entry, err := s.authorizedEntry(ctx, user, id)
		if err != nil {
			return nil, err
		}
		batch = append(batch, entry)
	}
	return batch, nil
}

func (s *EntryService) recomputeDistinct(ctx context.Context, batch []*internal.TimesheetEntry) error {
	seen := make(map[string]bool)
	for _, entry := range batch {
		if seen[entry.TimesheetID] {
			continue
		}
		seen[entry.TimesheetID] = true
		if _, err := s.sheets.RecomputeTotals(ctx, entry.TimesheetID); err != nil {
			return err
		}
	}
	return nil
}
