package internal

import "time"

type User struct {
	ID           string   `json:"id"`
	Token        string   `json:"token"`
	Name         string   `json:"name"`
	WorkspaceIDs []string `json:"workspace_ids"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// CanAccessWorkspace reports workspace membership as recorded on the user.
func (u *User) CanAccessWorkspace(workspaceID string) bool {
	for _, id := range u.WorkspaceIDs {
		if id == workspaceID {
			return true
		}
	}
	return false
}

func (u *User) HasCapability(capability string) bool {
	for _, c := range u.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

type Project struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Name        string `json:"name"`
}

type Task struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// TimerPhase is the explicit state of a user's timer. The paused condition is
// a first-class phase, not an inferred null-check on StartedAt.
type TimerPhase string

const (
	TimerIdle    TimerPhase = "idle"
	TimerRunning TimerPhase = "running"
	TimerPaused  TimerPhase = "paused"
)

// TimerState is the per-user singleton timer record. Invariant: when Phase is
// TimerIdle every other field is zero. StartedAt is set exactly while running;
// BankedSeconds accumulates completed running intervals across pauses.
type TimerState struct {
	UserID        string     `json:"user_id"`
	Phase         TimerPhase `json:"phase"`
	WorkspaceID   string     `json:"workspace_id,omitempty"`
	ProjectID     string     `json:"project_id,omitempty"`
	TaskID        string     `json:"task_id,omitempty"`
	Description   string     `json:"description,omitempty"`
	EntryID       string     `json:"entry_id,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	BankedSeconds int64      `json:"banked_seconds"`
}

const TimesheetStatusDraft = "draft"

// Timesheet is one user's one workspace-week, unique per
// (user, workspace, start date). Created lazily on the week's first entry.
type Timesheet struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	WorkspaceID   string    `json:"workspace_id"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Status        string    `json:"status"`
	TotalHours    float64   `json:"total_hours"`
	BillableHours float64   `json:"billable_hours"`
	CreatedAt     time.Time `json:"created_at"`
}

type TimesheetEntry struct {
	ID          string     `json:"id"`
	TimesheetID string     `json:"timesheet_id"`
	UserID      string     `json:"user_id"`
	WorkspaceID string     `json:"workspace_id"`
	ProjectID   string     `json:"project_id"`
	TaskID      string     `json:"task_id,omitempty"`
	Date        time.Time  `json:"date"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	Hours       float64    `json:"hours"`
	Description string     `json:"description,omitempty"`
	IsBillable  bool       `json:"is_billable"`
	HourlyRate  float64    `json:"hourly_rate"`
	CreatedAt   time.Time  `json:"created_at"`
}
