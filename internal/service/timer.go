package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yourname/timetracker/internal"
	"github.com/yourname/timetracker/internal/storage"
)

// TimerService enforces the single-active-timer-per-user rule and tracks
// elapsed wall-clock time across pause/resume cycles. Elapsed time is the
// banked seconds of completed running intervals plus the live segment since
// the last resume; one definition is used by pause, stop and status alike.
type TimerService struct {
	timers   storage.TimerStateRepository
	sheets   storage.TimesheetRepository
	entries  storage.EntryRepository
	projects storage.ProjectRepository
	authz    Authorizer
	logger   internal.Logger

	now   func() time.Time
	locks sync.Map // userID -> *sync.Mutex
}

func NewTimerService(repos *storage.Repositories, authz Authorizer, logger internal.Logger) *TimerService {
	return &TimerService{
		timers:   repos.Timers,
		sheets:   repos.Timesheets,
		entries:  repos.Entries,
		projects: repos.Projects,
		authz:    authz,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the wall clock; tests use this to make accrual
// arithmetic deterministic.
func (s *TimerService) SetClock(now func() time.Time) {
	s.now = now
}

// userLock serializes timer operations for one user, so a double-click start
// cannot create two entries.
func (s *TimerService) userLock(userID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// elapsedSeconds is the single wall-clock-elapsed definition: whole seconds
// of now minus startedAt, truncated, banked value included.
func elapsedSeconds(state *internal.TimerState, now time.Time) int64 {
	elapsed := state.BankedSeconds
	if state.Phase == internal.TimerRunning && state.StartedAt != nil {
		elapsed += int64(now.Sub(*state.StartedAt).Seconds())
	}
	return elapsed
}

func secondsToHours(seconds int64) float64 {
	return math.Round(float64(seconds)/3600*100) / 100
}

type StartRequest struct {
	ProjectID   string `json:"project_id" validate:"required"`
	TaskID      string `json:"task_id,omitempty"`
	Description string `json:"description,omitempty" validate:"omitempty,max=500"`
}

type StartResult struct {
	EntryID     string    `json:"entry_id"`
	TimesheetID string    `json:"timesheet_id"`
	StartedAt   time.Time `json:"started_at"`
}

// Start begins a timer for the user: conflict if one is already active,
// access denied if the project's workspace is off limits. Creates the current
// week's timesheet if absent and a zero-hour entry the stop will finalize.
func (s *TimerService) Start(ctx context.Context, user *internal.User, req *StartRequest) (*StartResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, internal.ValidationError(err.Error())
	}

	mu := s.userLock(user.ID)
	mu.Lock()
	defer mu.Unlock()

	state, err := s.timers.GetTimerState(ctx, user.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if state != nil && state.Phase != internal.TimerIdle {
		return nil, internal.ConflictError("a timer is already active")
	}

	project, err := s.projects.GetProject(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, internal.NotFoundError("project not found")
		}
		return nil, err
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

	now := s.now()
	sheet, err := FindOrCreateTimesheet(ctx, s.sheets, user.ID, project.WorkspaceID, now)
	if err != nil {
		return nil, err
	}

	entry := &internal.TimesheetEntry{
		ID:          uuid.NewString(),
		TimesheetID: sheet.ID,
		UserID:      user.ID,
		WorkspaceID: project.WorkspaceID,
		ProjectID:   project.ID,
		TaskID:      req.TaskID,
		Date:        time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		StartTime:   &now,
		Hours:       0,
		Description: req.Description,
		IsBillable:  true,
		HourlyRate:  0,
		CreatedAt:   now,
	}
	if err := s.entries.SaveEntry(ctx, entry); err != nil {
		return nil, err
	}

	newState := &internal.TimerState{
		UserID:        user.ID,
		Phase:         internal.TimerRunning,
		WorkspaceID:   project.WorkspaceID,
		ProjectID:     project.ID,
		TaskID:        req.TaskID,
		Description:   req.Description,
		EntryID:       entry.ID,
		StartedAt:     &now,
		BankedSeconds: 0,
	}
	if err := s.timers.SaveTimerState(ctx, newState); err != nil {
		return nil, err
	}

	s.logger.Infof("timer started: user=%s project=%s entry=%s", user.ID, project.ID, entry.ID)
	return &StartResult{EntryID: entry.ID, TimesheetID: sheet.ID, StartedAt: now}, nil
}

// Pause banks the current running segment and suspends accrual.
func (s *TimerService) Pause(ctx context.Context, user *internal.User) (int64, error) {
	mu := s.userLock(user.ID)
	mu.Lock()
	defer mu.Unlock()

	state, err := s.activeState(ctx, user.ID)
	if err != nil {
		return 0, err
	}
	if state.Phase == internal.TimerPaused {
		return 0, internal.InvalidStateError("timer is already paused")
	}

	now := s.now()
	state.BankedSeconds = elapsedSeconds(state, now)
	state.StartedAt = nil
	state.Phase = internal.TimerPaused
	if err := s.timers.SaveTimerState(ctx, state); err != nil {
		return 0, err
	}

	s.logger.Infof("timer paused: user=%s banked=%ds", user.ID, state.BankedSeconds)
	return state.BankedSeconds, nil
}

// Resume restarts accrual; the banked value is untouched until the next
// pause or stop.
func (s *TimerService) Resume(ctx context.Context, user *internal.User) (time.Time, error) {
	mu := s.userLock(user.ID)
	mu.Lock()
	defer mu.Unlock()

	state, err := s.activeState(ctx, user.ID)
	if err != nil {
		return time.Time{}, err
	}
	if state.Phase == internal.TimerRunning {
		return time.Time{}, internal.InvalidStateError("timer is already running")
	}

	now := s.now()
	state.StartedAt = &now
	state.Phase = internal.TimerRunning
	if err := s.timers.SaveTimerState(ctx, state); err != nil {
		return time.Time{}, err
	}

	s.logger.Infof("timer resumed: user=%s", user.ID)
	return now, nil
}

type StopResult struct {
	EntryID      string  `json:"entry_id"`
	TimesheetID  string  `json:"timesheet_id"`
	TotalSeconds int64   `json:"total_seconds"`
	Hours        float64 `json:"hours"`
}

// Stop finalizes the entry with the total elapsed duration, recomputes the
// timesheet totals and returns the timer to idle. Valid from both running
// and paused.
func (s *TimerService) Stop(ctx context.Context, user *internal.User) (*StopResult, error) {
	mu := s.userLock(user.ID)
	mu.Lock()
	defer mu.Unlock()

	state, err := s.activeState(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	total := elapsedSeconds(state, now)
	hours := secondsToHours(total)

	result := &StopResult{EntryID: state.EntryID, TotalSeconds: total, Hours: hours}

	entry, err := s.entries.GetEntry(ctx, state.EntryID)
	if err != nil {
		// The entry is gone (deleted out from under the timer); the timer
		// itself still has to reset.
		s.logger.Warnf("timer stop: entry %s missing: %v", state.EntryID, err)
	} else {
		entry.EndTime = &now
		entry.Hours = hours
		if err := s.entries.SaveEntry(ctx, entry); err != nil {
			return nil, err
		}
		if _, err := s.sheets.RecomputeTotals(ctx, entry.TimesheetID); err != nil {
			return nil, err
		}
		result.TimesheetID = entry.TimesheetID
	}

	if err := s.timers.ClearTimerState(ctx, user.ID); err != nil {
		return nil, err
	}

	s.logger.Infof("timer stopped: user=%s total=%ds hours=%.2f", user.ID, total, hours)
	return result, nil
}

type TimerStatus struct {
	Active         bool                `json:"active"`
	Phase          internal.TimerPhase `json:"phase"`
	ElapsedSeconds int64               `json:"elapsed_seconds"`
	ProjectID      string              `json:"project_id,omitempty"`
	TaskID         string              `json:"task_id,omitempty"`
	Description    string              `json:"description,omitempty"`
	EntryID        string              `json:"entry_id,omitempty"`
	StartedAt      *time.Time          `json:"started_at,omitempty"`
}

// Status reports the live elapsed seconds without mutating anything.
func (s *TimerService) Status(ctx context.Context, user *internal.User) (*TimerStatus, error) {
	state, err := s.timers.GetTimerState(ctx, user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &TimerStatus{Active: false, Phase: internal.TimerIdle}, nil
		}
		return nil, err
	}
	if state.Phase == internal.TimerIdle {
		return &TimerStatus{Active: false, Phase: internal.TimerIdle}, nil
	}
	return &TimerStatus{
		Active:         true,
		Phase:          state.Phase,
		ElapsedSeconds: elapsedSeconds(state, s.now()),
		ProjectID:      state.ProjectID,
		TaskID:         state.TaskID,
		Description:    state.Description,
		EntryID:        state.EntryID,
		StartedAt:      state.StartedAt,
	}, nil
}

// activeState loads the user's timer and rejects idle/absent states.
func (s *TimerService) activeState(ctx context.Context, userID string) (*internal.TimerState, error) {
	state, err := s.timers.GetTimerState(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, internal.InvalidStateError("no active timer")
		}
		return nil, err
	}
	if state.Phase == internal.TimerIdle {
		return nil, internal.InvalidStateError("no active timer")
	}
	return state, nil
}
