package storage

import "github.com/yourname/timetracker/internal"

func repositories(s interface {
	UserRepository
	ProjectRepository
	TimerStateRepository
	TimesheetRepository
	EntryRepository
}) *Repositories {
	return &Repositories{Users: s, Projects: s, Timers: s, Timesheets: s, Entries: s}
}

func NewFileRepositories(dir string, logger internal.Logger) (*Repositories, *FileStorage, error) {
	s, err := NewFileStorage(dir, logger)
	if err != nil {
		return nil, nil, err
	}
	return repositories(s), s, nil
}

func NewPostgresRepositories(dsn string, logger internal.Logger) (*Repositories, *PostgresStorage, error) {
	s, err := NewPostgresStorage(dsn, logger)
	if err != nil {
		return nil, nil, err
	}
	return repositories(s), s, nil
}

func NewSQLiteRepositories(path string, logger internal.Logger) (*Repositories, *SQLiteStorage, error) {
	s, err := NewSQLiteStorage(path, logger)
	if err != nil {
		return nil, nil, err
	}
	return repositories(s), s, nil
}
