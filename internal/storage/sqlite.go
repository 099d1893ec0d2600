package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yourname/timetracker/internal"
	_ "modernc.org/sqlite"
)

// SQLiteStorage is the embedded single-file backend, handy for desktop and
// development deployments where running postgres is overkill.
type SQLiteStorage struct {
	db     *sql.DB
	logger internal.Logger
}

func NewSQLiteStorage(path string, logger internal.Logger) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	// The sqlite driver serializes writes on a single connection anyway;
	// capping the pool avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			token TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			workspace_ids TEXT NOT NULL DEFAULT '[]',
			capabilities TEXT NOT NULL DEFAULT '[]'
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			workspace_id TEXT NOT NULL,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS timer_states (
			user_id TEXT PRIMARY KEY,
			phase TEXT NOT NULL,
			workspace_id TEXT NOT NULL DEFAULT '',
			project_id TEXT NOT NULL DEFAULT '',
			task_id TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			entry_id TEXT NOT NULL DEFAULT '',
			started_at TIMESTAMP,
			banked_seconds INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS timesheets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			start_date TIMESTAMP NOT NULL,
			end_date TIMESTAMP NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			total_hours REAL NOT NULL DEFAULT 0,
			billable_hours REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			UNIQUE (user_id, workspace_id, start_date)
		)`,
		`CREATE TABLE IF NOT EXISTS timesheet_entries (
			id TEXT PRIMARY KEY,
			timesheet_id TEXT NOT NULL REFERENCES timesheets(id),
			user_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			task_id TEXT NOT NULL DEFAULT '',
			date TIMESTAMP NOT NULL,
			start_time TIMESTAMP,
			end_time TIMESTAMP,
			hours REAL NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			is_billable INTEGER NOT NULL DEFAULT 1,
			hourly_rate REAL NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_timesheet ON timesheet_entries(timesheet_id)`,
		`CREATE INDEX IF NOT EXISTS idx_timesheets_user ON timesheets(user_id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func sqlNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// --- UserRepository ---

func (s *SQLiteStorage) scanUser(row *sql.Row) (*internal.User, error) {
	var u internal.User
	var workspaces, capabilities string
	if err := row.Scan(&u.ID, &u.Token, &u.Name, &workspaces, &capabilities); err != nil {
		return nil, sqlNotFound(err)
	}
	if err := json.Unmarshal([]byte(workspaces), &u.WorkspaceIDs); err != nil {
		return nil, fmt.Errorf("failed to decode workspace_ids: %w", err)
	}
	if err := json.Unmarshal([]byte(capabilities), &u.Capabilities); err != nil {
		return nil, fmt.Errorf("failed to decode capabilities: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStorage) GetUserByToken(ctx context.Context, token string) (*internal.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT id, token, name, workspace_ids, capabilities FROM users WHERE token = ?`, token))
}

func (s *SQLiteStorage) GetUser(ctx context.Context, id string) (*internal.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `SELECT id, token, name, workspace_ids, capabilities FROM users WHERE id = ?`, id))
}

// --- ProjectRepository ---

func (s *SQLiteStorage) GetProject(ctx context.Context, id string) (*internal.Project, error) {
	var p internal.Project
	err := s.db.QueryRowContext(ctx, `SELECT id, workspace_id, name FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.WorkspaceID, &p.Name)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	return &p, nil
}

func (s *SQLiteStorage) GetTask(ctx context.Context, id string) (*internal.Task, error) {
	var t internal.Task
	err := s.db.QueryRowContext(ctx, `SELECT id, project_id, name FROM tasks WHERE id = ?`, id).
		Scan(&t.ID, &t.ProjectID, &t.Name)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	return &t, nil
}

// --- TimerStateRepository ---

func (s *SQLiteStorage) GetTimerState(ctx context.Context, userID string) (*internal.TimerState, error) {
	var t internal.TimerState
	var startedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT user_id, phase, workspace_id, project_id, task_id, description, entry_id, started_at, banked_seconds
		FROM timer_states WHERE user_id = ?`, userID).
		Scan(&t.UserID, &t.Phase, &t.WorkspaceID, &t.ProjectID, &t.TaskID, &t.Description, &t.EntryID, &startedAt, &t.BankedSeconds)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	t.StartedAt = timePtr(startedAt)
	return &t, nil
}

func (s *SQLiteStorage) SaveTimerState(ctx context.Context, state *internal.TimerState) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO timer_states (user_id, phase, workspace_id, project_id, task_id, description, entry_id, started_at, banked_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			phase = excluded.phase,
			workspace_id = excluded.workspace_id,
			project_id = excluded.project_id,
			task_id = excluded.task_id,
			description = excluded.description,
			entry_id = excluded.entry_id,
			started_at = excluded.started_at,
			banked_seconds = excluded.banked_seconds`,
		state.UserID, state.Phase, state.WorkspaceID, state.ProjectID, state.TaskID, state.Description, state.EntryID, nullTime(state.StartedAt), state.BankedSeconds)
	if err != nil {
		return fmt.Errorf("failed to upsert timer state: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ClearTimerState(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM timer_states WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear timer state: %w", err)
	}
	return nil
}

// --- TimesheetRepository ---

func (s *SQLiteStorage) GetTimesheet(ctx context.Context, id string) (*internal.Timesheet, error) {
	var sh internal.Timesheet
	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, workspace_id, start_date, end_date, status, total_hours, billable_hours, created_at
		FROM timesheets WHERE id = ?`, id).
		Scan(&sh.ID, &sh.UserID, &sh.WorkspaceID, &sh.StartDate, &sh.EndDate, &sh.Status, &sh.TotalHours, &sh.BillableHours, &sh.CreatedAt)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	return &sh, nil
}

func (s *SQLiteStorage) FindTimesheet(ctx context.Context, userID, workspaceID string, startDate time.Time) (*internal.Timesheet, error) {
	var sh internal.Timesheet
	err := s.db.QueryRowContext(ctx, `SELECT id, user_id, workspace_id, start_date, end_date, status, total_hours, billable_hours, created_at
		FROM timesheets WHERE user_id = ? AND workspace_id = ? AND start_date = ?`, userID, workspaceID, startDate).
		Scan(&sh.ID, &sh.UserID, &sh.WorkspaceID, &sh.StartDate, &sh.EndDate, &sh.Status, &sh.TotalHours, &sh.BillableHours, &sh.CreatedAt)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	return &sh, nil
}

func (s *SQLiteStorage) SaveTimesheet(ctx context.Context, sheet *internal.Timesheet) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO timesheets (id, user_id, workspace_id, start_date, end_date, status, total_hours, billable_hours, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			total_hours = excluded.total_hours,
			billable_hours = excluded.billable_hours`,
		sheet.ID, sheet.UserID, sheet.WorkspaceID, sheet.StartDate, sheet.EndDate, sheet.Status, sheet.TotalHours, sheet.BillableHours, sheet.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert timesheet: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListTimesheets(ctx context.Context, userID string) ([]internal.Timesheet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, workspace_id, start_date, end_date, status, total_hours, billable_hours, created_at
		FROM timesheets WHERE user_id = ? ORDER BY start_date DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sheets := []internal.Timesheet{}
	for rows.Next() {
		var sh internal.Timesheet
		if err := rows.Scan(&sh.ID, &sh.UserID, &sh.WorkspaceID, &sh.StartDate, &sh.EndDate, &sh.Status, &sh.TotalHours, &sh.BillableHours, &sh.CreatedAt); err != nil {
			return nil, err
		}
		sheets = append(sheets, sh)
	}
	return sheets, rows.Err()
}

func (s *SQLiteStorage) RecomputeTotals(ctx context.Context, timesheetID string) (*internal.Timesheet, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE timesheets SET
			total_hours = ROUND(COALESCE((SELECT SUM(hours) FROM timesheet_entries WHERE timesheet_id = ?), 0), 2),
			billable_hours = ROUND(COALESCE((SELECT SUM(CASE WHEN is_billable THEN hours ELSE 0 END) FROM timesheet_entries WHERE timesheet_id = ?), 0), 2)
		WHERE id = ?`, timesheetID, timesheetID, timesheetID)
	if err != nil {
		return nil, fmt.Errorf("failed to recompute totals: %w", err)
	}
	return s.GetTimesheet(ctx, timesheetID)
}

// --- EntryRepository ---

const sqliteEntryCols = `id, timesheet_id, user_id, workspace_id, project_id, task_id, date, start_time, end_time, hours, description, is_billable, hourly_rate, created_at`

func (s *SQLiteStorage) GetEntry(ctx context.Context, id string) (*internal.TimesheetEntry, error) {
	var e internal.TimesheetEntry
	var startTime, endTime sql.NullTime
	err := s.db.QueryRowContext(ctx, `SELECT `+sqliteEntryCols+` FROM timesheet_entries WHERE id = ?`, id).
		Scan(&e.ID, &e.TimesheetID, &e.UserID, &e.WorkspaceID, &e.ProjectID, &e.TaskID, &e.Date, &startTime, &endTime, &e.Hours, &e.Description, &e.IsBillable, &e.HourlyRate, &e.CreatedAt)
	if err != nil {
		return nil, sqlNotFound(err)
	}
	e.StartTime = timePtr(startTime)
	e.EndTime = timePtr(endTime)
	return &e, nil
}

func (s *SQLiteStorage) SaveEntry(ctx context.Context, entry *internal.TimesheetEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO timesheet_entries (`+sqliteEntryCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			timesheet_id = excluded.timesheet_id,
			project_id = excluded.project_id,
			task_id = excluded.task_id,
			date = excluded.date,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			hours = excluded.hours,
			description = excluded.description,
			is_billable = excluded.is_billable,
			hourly_rate = excluded.hourly_rate`,
		entry.ID, entry.TimesheetID, entry.UserID, entry.WorkspaceID, entry.ProjectID, entry.TaskID, entry.Date, nullTime(entry.StartTime), nullTime(entry.EndTime), entry.Hours, entry.Description, entry.IsBillable, entry.HourlyRate, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListEntries(ctx context.Context, timesheetID string) ([]internal.TimesheetEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteEntryCols+` FROM timesheet_entries WHERE timesheet_id = ? ORDER BY date, created_at`, timesheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []internal.TimesheetEntry{}
	for rows.Next() {
		var e internal.TimesheetEntry
		var startTime, endTime sql.NullTime
		if err := rows.Scan(&e.ID, &e.TimesheetID, &e.UserID, &e.WorkspaceID, &e.ProjectID, &e.TaskID, &e.Date, &startTime, &endTime, &e.Hours, &e.Description, &e.IsBillable, &e.HourlyRate, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.StartTime = timePtr(startTime)
		e.EndTime = timePtr(endTime)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStorage) DeleteEntry(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM timesheet_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Compile-time assertions ---
var _ UserRepository = (*SQLiteStorage)(nil)
var _ ProjectRepository = (*SQLiteStorage)(nil)
var _ TimerStateRepository = (*SQLiteStorage)(nil)
var _ TimesheetRepository = (*SQLiteStorage)(nil)
var _ EntryRepository = (*SQLiteStorage)(nil)
