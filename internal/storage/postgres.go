package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yourname/timetracker/internal"
)

type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger internal.Logger
}

func NewPostgresStorage(dsn string, logger internal.Logger) (*PostgresStorage, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Errorf("failed to connect to postgres: %v", err)
		return nil, err
	}
	s := &PostgresStorage{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		logger.Errorf("failed to run migrations: %v", err)
		return nil, err
	}
	return s, nil
}

func (p *PostgresStorage) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			token TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			workspace_ids TEXT[] NOT NULL DEFAULT '{}',
			capabilities TEXT[] NOT NULL DEFAULT '{}'
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
			started_at TIMESTAMPTZ,
			banked_seconds BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS timesheets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			total_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
			billable_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE (user_id, workspace_id, start_date)
		)`,
		`CREATE TABLE IF NOT EXISTS timesheet_entries (
			id TEXT PRIMARY KEY,
			timesheet_id TEXT NOT NULL REFERENCES timesheets(id),
			user_id TEXT NOT NULL,
			workspace_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			task_id TEXT NOT NULL DEFAULT '',
			date DATE NOT NULL,
			start_time TIMESTAMPTZ,
			end_time TIMESTAMPTZ,
			hours DOUBLE PRECISION NOT NULL DEFAULT 0,
			description TEXT NOT NULL DEFAULT '',
			is_billable BOOLEAN NOT NULL DEFAULT TRUE,
			hourly_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_timesheet ON timesheet_entries(timesheet_id)`,
		`CREATE INDEX IF NOT EXISTS idx_timesheets_user ON timesheets(user_id)`,
	}
	for _, m := range migrations {
		if _, err := p.pool.Exec(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// --- UserRepository ---

func (p *PostgresStorage) GetUserByToken(ctx context.Context, token string) (*internal.User, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, token, name, workspace_ids, capabilities FROM users WHERE token = $1`, token)
	var u internal.User
	if err := row.Scan(&u.ID, &u.Token, &u.Name, &u.WorkspaceIDs, &u.Capabilities); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (p *PostgresStorage) GetUser(ctx context.Context, id string) (*internal.User, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, token, name, workspace_ids, capabilities FROM users WHERE id = $1`, id)
	var u internal.User
	if err := row.Scan(&u.ID, &u.Token, &u.Name, &u.WorkspaceIDs, &u.Capabilities); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// --- ProjectRepository ---

func (p *PostgresStorage) GetProject(ctx context.Context, id string) (*internal.Project, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, workspace_id, name FROM projects WHERE id = $1`, id)
	var pr internal.Project
	if err := row.Scan(&pr.ID, &pr.WorkspaceID, &pr.Name); err != nil {
		return nil, notFound(err)
	}
	return &pr, nil
}

func (p *PostgresStorage) GetTask(ctx context.Context, id string) (*internal.Task, error) {
	row := p.pool.QueryRow(ctx, `SELECT id, project_id, name FROM tasks WHERE id = $1`, id)
	var t internal.Task
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Name); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// --- TimerStateRepository ---

func (p *PostgresStorage) GetTimerState(ctx context.Context, userID string) (*internal.TimerState, error) {
	row := p.pool.QueryRow(ctx, `SELECT user_id, phase, workspace_id, project_id, task_id, description, entry_id, started_at, banked_seconds
		FROM timer_states WHERE user_id = $1`, userID)
	var t internal.TimerState
	if err := row.Scan(&t.UserID, &t.Phase, &t.WorkspaceID, &t.ProjectID, &t.TaskID, &t.Description, &t.EntryID, &t.StartedAt, &t.BankedSeconds); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (p *PostgresStorage) SaveTimerState(ctx context.Context, state *internal.TimerState) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO timer_states (user_id, phase, workspace_id, project_id, task_id, description, entry_id, started_at, banked_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			phase = EXCLUDED.phase,
			workspace_id = EXCLUDED.workspace_id,
			project_id = EXCLUDED.project_id,
			task_id = EXCLUDED.task_id,
			description = EXCLUDED.description,
			entry_id = EXCLUDED.entry_id,
			started_at = EXCLUDED.started_at,
			banked_seconds = EXCLUDED.banked_seconds`,
		state.UserID, state.Phase, state.WorkspaceID, state.ProjectID, state.TaskID, state.Description, state.EntryID, state.StartedAt, state.BankedSeconds)
	if err != nil {
		p.logger.Errorf("failed to upsert timer state: %v", err)
	}
	return err
}

func (p *PostgresStorage) ClearTimerState(ctx context.Context, userID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM timer_states WHERE user_id = $1`, userID)
	if err != nil {
		p.logger.Errorf("failed to clear timer state: %v", err)
	}
	return err
}

// --- TimesheetRepository ---

const timesheetCols = `id, user_id, workspace_id, start_date, end_date, status, total_hours, billable_hours, created_at`

func scanTimesheet(row pgx.Row) (*internal.Timesheet, error) {
	var sh internal.Timesheet
	if err := row.Scan(&sh.ID, &sh.UserID, &sh.WorkspaceID, &sh.StartDate, &sh.EndDate, &sh.Status, &sh.TotalHours, &sh.BillableHours, &sh.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &sh, nil
}

func (p *PostgresStorage) GetTimesheet(ctx context.Context, id string) (*internal.Timesheet, error) {
	return scanTimesheet(p.pool.QueryRow(ctx, `SELECT `+timesheetCols+` FROM timesheets WHERE id = $1`, id))
}

func (p *PostgresStorage) FindTimesheet(ctx context.Context, userID, workspaceID string, startDate time.Time) (*internal.Timesheet, error) {
	return scanTimesheet(p.pool.QueryRow(ctx, `SELECT `+timesheetCols+` FROM timesheets
		WHERE user_id = $1 AND workspace_id = $2 AND start_date = $3`, userID, workspaceID, startDate))
}

func (p *PostgresStorage) SaveTimesheet(ctx context.Context, sheet *internal.Timesheet) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO timesheets (`+timesheetCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_hours = EXCLUDED.total_hours,
			billable_hours = EXCLUDED.billable_hours`,
		sheet.ID, sheet.UserID, sheet.WorkspaceID, sheet.StartDate, sheet.EndDate, sheet.Status, sheet.TotalHours, sheet.BillableHours, sheet.CreatedAt)
	if err != nil {
		p.logger.Errorf("failed to upsert timesheet: %v", err)
	}
	return err
}

func (p *PostgresStorage) ListTimesheets(ctx context.Context, userID string) ([]internal.Timesheet, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+timesheetCols+` FROM timesheets WHERE user_id = $1 ORDER BY start_date DESC`, userID)
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

// RecomputeTotals runs as a single statement so the read of entries and the
// write of totals cannot interleave with a concurrent entry mutation. Totals
// are rounded to two decimals, matching the other backends.
func (p *PostgresStorage) RecomputeTotals(ctx context.Context, timesheetID string) (*internal.Timesheet, error) {
	row := p.pool.QueryRow(ctx, `UPDATE timesheets SET
			total_hours = ROUND(sums.total::numeric, 2)::double precision,
			billable_hours = ROUND(sums.billable::numeric, 2)::double precision
		FROM (
			SELECT
				COALESCE(SUM(hours), 0) AS total,
				COALESCE(SUM(hours) FILTER (WHERE is_billable), 0) AS billable
			FROM timesheet_entries WHERE timesheet_id = $1
		) AS sums
		WHERE id = $1
		RETURNING `+timesheetCols, timesheetID)
	return scanTimesheet(row)
}

// --- EntryRepository ---

const entryCols = `id, timesheet_id, user_id, workspace_id, project_id, task_id, date, start_time, end_time, hours, description, is_billable, hourly_rate, created_at`

func scanEntry(row pgx.Row) (*internal.TimesheetEntry, error) {
	var e internal.TimesheetEntry
	if err := row.Scan(&e.ID, &e.TimesheetID, &e.UserID, &e.WorkspaceID, &e.ProjectID, &e.TaskID, &e.Date, &e.StartTime, &e.EndTime, &e.Hours, &e.Description, &e.IsBillable, &e.HourlyRate, &e.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (p *PostgresStorage) GetEntry(ctx context.Context, id string) (*internal.TimesheetEntry, error) {
	return scanEntry(p.pool.QueryRow(ctx, `SELECT `+entryCols+` FROM timesheet_entries WHERE id = $1`, id))
}

func (p *PostgresStorage) SaveEntry(ctx context.Context, entry *internal.TimesheetEntry) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO timesheet_entries (`+entryCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			timesheet_id = EXCLUDED.timesheet_id,
			project_id = EXCLUDED.project_id,
			task_id = EXCLUDED.task_id,
			date = EXCLUDED.date,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			hours = EXCLUDED.hours,
			description = EXCLUDED.description,
			is_billable = EXCLUDED.is_billable,
			hourly_rate = EXCLUDED.hourly_rate`,
		entry.ID, entry.TimesheetID, entry.UserID, entry.WorkspaceID, entry.ProjectID, entry.TaskID, entry.Date, entry.StartTime, entry.EndTime, entry.Hours, entry.Description, entry.IsBillable, entry.HourlyRate, entry.CreatedAt)
	if err != nil {
		p.logger.Errorf("failed to upsert entry: %v", err)
	}
	return err
}

func (p *PostgresStorage) ListEntries(ctx context.Context, timesheetID string) ([]internal.TimesheetEntry, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+entryCols+` FROM timesheet_entries WHERE timesheet_id = $1 ORDER BY date, created_at`, timesheetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []internal.TimesheetEntry{}
	for rows.Next() {
		var e internal.TimesheetEntry
		if err := rows.Scan(&e.ID, &e.TimesheetID, &e.UserID, &e.WorkspaceID, &e.ProjectID, &e.TaskID, &e.Date, &e.StartTime, &e.EndTime, &e.Hours, &e.Description, &e.IsBillable, &e.HourlyRate, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (p *PostgresStorage) DeleteEntry(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM timesheet_entries WHERE id = $1`, id)
	if err != nil {
		p.logger.Errorf("failed to delete entry: %v", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Compile-time assertions ---
var _ UserRepository = (*PostgresStorage)(nil)
var _ ProjectRepository = (*PostgresStorage)(nil)
var _ TimerStateRepository = (*PostgresStorage)(nil)
var _ TimesheetRepository = (*PostgresStorage)(nil)
var _ EntryRepository = (*PostgresStorage)(nil)
