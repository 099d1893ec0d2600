package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/yourname/timetracker/internal"
)

// FileStorage keeps everything in memory and persists the mutable aggregates
// (timer states, timesheets, entries) to JSON files through debounced save
// workers. Users/projects/tasks are read-mostly catalogs written synchronously
// when seeded.
type FileStorage struct {
	users      map[string]*internal.User              // id -> user
	tokens     map[string]*internal.User              // token -> user
	projects   map[string]*internal.Project           // id -> project
	tasks      map[string]*internal.Task              // id -> task
	timers     map[string]*internal.TimerState        // userID -> state
	sheets     map[string]*internal.Timesheet         // id -> timesheet
	sheetIndex map[string]*internal.Timesheet         // user|workspace|week-start -> timesheet
	entries    map[string]*internal.TimesheetEntry    // id -> entry
	entryIndex map[string]map[string]*internal.TimesheetEntry // timesheetID -> id -> entry

	mu  sync.RWMutex
	dir string

	saveTimersChan  chan struct{}
	saveSheetsChan  chan struct{}
	saveEntriesChan chan struct{}
	shutdownChan    chan struct{}
	saveDelay       time.Duration

	logger internal.Logger
}

func NewFileStorage(dir string, logger internal.Logger) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &FileStorage{
		users:           make(map[string]*internal.User),
		tokens:          make(map[string]*internal.User),
		projects:        make(map[string]*internal.Project),
		tasks:           make(map[string]*internal.Task),
		timers:          make(map[string]*internal.TimerState),
		sheets:          make(map[string]*internal.Timesheet),
		sheetIndex:      make(map[string]*internal.Timesheet),
		entries:         make(map[string]*internal.TimesheetEntry),
		entryIndex:      make(map[string]map[string]*internal.TimesheetEntry),
		dir:             dir,
		saveTimersChan:  make(chan struct{}, 1),
		saveSheetsChan:  make(chan struct{}, 1),
		saveEntriesChan: make(chan struct{}, 1),
		shutdownChan:    make(chan struct{}),
		saveDelay:       500 * time.Millisecond,
		logger:          logger,
	}

	if err := s.loadAll(); err != nil {
		logger.Errorf("storage: failed to load data dir %s: %v", dir, err)
		return nil, err
	}

	go s.saveWorker(s.saveTimersChan, s.saveTimerStates)
	go s.saveWorker(s.saveSheetsChan, s.saveTimesheets)
	go s.saveWorker(s.saveEntriesChan, s.saveEntries)

	return s, nil
}

func (s *FileStorage) path(name string) string {
	return filepath.Join(s.dir, name)
}

func loadJSONFile[T any](path string) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer file.Close()

	var items []T
	if err := json.NewDecoder(file).Decode(&items); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return items, nil
}

func (s *FileStorage) loadAll() error {
	users, err := loadJSONFile[*internal.User](s.path("users.json"))
	if err != nil {
		return err
	}
	projects, err := loadJSONFile[*internal.Project](s.path("projects.json"))
	if err != nil {
		return err
	}
	tasks, err := loadJSONFile[*internal.Task](s.path("tasks.json"))
	if err != nil {
		return err
	}
	timers, err := loadJSONFile[*internal.TimerState](s.path("timer_states.json"))
	if err != nil {
		return err
	}
	sheets, err := loadJSONFile[*internal.Timesheet](s.path("timesheets.json"))
	if err != nil {
		return err
	}
	entries, err := loadJSONFile[*internal.TimesheetEntry](s.path("entries.json"))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		s.users[u.ID] = u
		s.tokens[u.Token] = u
	}
	for _, p := range projects {
		s.projects[p.ID] = p
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t
	}
	for _, t := range timers {
		s.timers[t.UserID] = t
	}
	for _, sh := range sheets {
		s.sheets[sh.ID] = sh
		s.sheetIndex[sheetKey(sh.UserID, sh.WorkspaceID, sh.StartDate)] = sh
	}
	for _, e := range entries {
		s.entries[e.ID] = e
		if s.entryIndex[e.TimesheetID] == nil {
			s.entryIndex[e.TimesheetID] = make(map[string]*internal.TimesheetEntry)
		}
		s.entryIndex[e.TimesheetID][e.ID] = e
	}
	return nil
}

func sheetKey(userID, workspaceID string, startDate time.Time) string {
	return userID + "|" + workspaceID + "|" + startDate.UTC().Format("2006-01-02")
}

func atomicWriteFileJSON(filePath string, data interface{}) error {
	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, filePath)
}

func (s *FileStorage) saveTimerStates() error {
	s.mu.RLock()
	timers := make([]*internal.TimerState, 0, len(s.timers))
	for _, t := range s.timers {
		timers = append(timers, t)
	}
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.path("timer_states.json"), timers)
}

func (s *FileStorage) saveTimesheets() error {
	s.mu.RLock()
	sheets := make([]*internal.Timesheet, 0, len(s.sheets))
	for _, sh := range s.sheets {
		sheets = append(sheets, sh)
	}
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.path("timesheets.json"), sheets)
}

func (s *FileStorage) saveEntries() error {
	s.mu.RLock()
	entries := make([]*internal.TimesheetEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()
	return atomicWriteFileJSON(s.path("entries.json"), entries)
}

func (s *FileStorage) saveWorker(signal chan struct{}, save func() error) {
	timer := time.NewTimer(s.saveDelay)
	defer timer.Stop()

	for {
		select {
		case <-signal:
			timer.Reset(s.saveDelay)
		case <-timer.C:
			if err := save(); err != nil {
				s.logger.Errorf("storage: error saving: %v", err)
			}
		case <-s.shutdownChan:
			return
		}
	}
}

func signalSave(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *FileStorage) Close() error {
	close(s.shutdownChan)

	// Flush pending data synchronously on shutdown.
	if err := s.saveTimerStates(); err != nil {
		return err
	}
	if err := s.saveTimesheets(); err != nil {
		return err
	}
	return s.saveEntries()
}

// --- Seeding (catalog data: users, projects, tasks) ---

func (s *FileStorage) SeedUser(u *internal.User) error {
	s.mu.Lock()
	s.users[u.ID] = u
	s.tokens[u.Token] = u
	users := make([]*internal.User, 0, len(s.users))
	for _, x := range s.users {
		users = append(users, x)
	}
	s.mu.Unlock()
	return atomicWriteFileJSON(s.path("users.json"), users)
}

func (s *FileStorage) SeedProject(p *internal.Project) error {
	s.mu.Lock()
	s.projects[p.ID] = p
	projects := make([]*internal.Project, 0, len(s.projects))
	for _, x := range s.projects {
		projects = append(projects, x)
	}
	s.mu.Unlock()
	return atomicWriteFileJSON(s.path("projects.json"), projects)
}

func (s *FileStorage) SeedTask(t *internal.Task) error {
	s.mu.Lock()
	s.tasks[t.ID] = t
	tasks := make([]*internal.Task, 0, len(s.tasks))
	for _, x := range s.tasks {
		tasks = append(tasks, x)
	}
	s.mu.Unlock()
	return atomicWriteFileJSON(s.path("tasks.json"), tasks)
}

// --- UserRepository ---

func (s *FileStorage) GetUserByToken(ctx context.Context, token string) (*internal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *FileStorage) GetUser(ctx context.Context, id string) (*internal.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// --- ProjectRepository ---

func (s *FileStorage) GetProject(ctx context.Context, id string) (*internal.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *FileStorage) GetTask(ctx context.Context, id string) (*internal.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// --- TimerStateRepository ---

func (s *FileStorage) GetTimerState(ctx context.Context, userID string) (*internal.TimerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.timers[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *FileStorage) SaveTimerState(ctx context.Context, state *internal.TimerState) error {
	s.mu.Lock()
	cp := *state
	s.timers[state.UserID] = &cp
	s.mu.Unlock()
	signalSave(s.saveTimersChan)
	return nil
}

func (s *FileStorage) ClearTimerState(ctx context.Context, userID string) error {
	s.mu.Lock()
	delete(s.timers, userID)
	s.mu.Unlock()
	signalSave(s.saveTimersChan)
	return nil
}

// --- TimesheetRepository ---

func (s *FileStorage) GetTimesheet(ctx context.Context, id string) (*internal.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.sheets[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sh
	return &cp, nil
}

func (s *FileStorage) FindTimesheet(ctx context.Context, userID, workspaceID string, startDate time.Time) (*internal.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.sheetIndex[sheetKey(userID, workspaceID, startDate)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sh
	return &cp, nil
}

func (s *FileStorage) SaveTimesheet(ctx context.Context, sheet *internal.Timesheet) error {
	s.mu.Lock()
	cp := *sheet
	s.sheets[sheet.ID] = &cp
	s.sheetIndex[sheetKey(sheet.UserID, sheet.WorkspaceID, sheet.StartDate)] = &cp
	s.mu.Unlock()
	signalSave(s.saveSheetsChan)
	return nil
}

func (s *FileStorage) ListTimesheets(ctx context.Context, userID string) ([]internal.Timesheet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sheets []internal.Timesheet
	for _, sh := range s.sheets {
		if sh.UserID == userID {
			sheets = append(sheets, *sh)
		}
	}
	sort.Slice(sheets, func(i, j int) bool {
		return sheets[i].StartDate.After(sheets[j].StartDate)
	})
	if sheets == nil {
		sheets = []internal.Timesheet{}
	}
	return sheets, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *FileStorage) RecomputeTotals(ctx context.Context, timesheetID string) (*internal.Timesheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.sheets[timesheetID]
	if !ok {
		return nil, ErrNotFound
	}
	var total, billable float64
	for _, e := range s.entryIndex[timesheetID] {
		total += e.Hours
		if e.IsBillable {
			billable += e.Hours
		}
	}
	sh.TotalHours = round2(total)
	sh.BillableHours = round2(billable)
	signalSave(s.saveSheetsChan)
	cp := *sh
	return &cp, nil
}

// --- EntryRepository ---

func (s *FileStorage) GetEntry(ctx context.Context, id string) (*internal.TimesheetEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *FileStorage) SaveEntry(ctx context.Context, entry *internal.TimesheetEntry) error {
	s.mu.Lock()
	cp := *entry
	if old, ok := s.entries[entry.ID]; ok && old.TimesheetID != entry.TimesheetID {
		delete(s.entryIndex[old.TimesheetID], entry.ID)
	}
	s.entries[entry.ID] = &cp
	if s.entryIndex[entry.TimesheetID] == nil {
		s.entryIndex[entry.TimesheetID] = make(map[string]*internal.TimesheetEntry)
	}
	s.entryIndex[entry.TimesheetID][entry.ID] = &cp
	s.mu.Unlock()
	signalSave(s.saveEntriesChan)
	return nil
}

func (s *FileStorage) ListEntries(ctx context.Context, timesheetID string) ([]internal.TimesheetEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byID := s.entryIndex[timesheetID]
	entries := make([]internal.TimesheetEntry, 0, len(byID))
	for _, e := range byID {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

func (s *FileStorage) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.entries, id)
	delete(s.entryIndex[e.TimesheetID], id)
	signalSave(s.saveEntriesChan)
	return nil
}

// --- Compile-time assertions ---
var _ UserRepository = (*FileStorage)(nil)
var _ ProjectRepository = (*FileStorage)(nil)
var _ TimerStateRepository = (*FileStorage)(nil)
var _ TimesheetRepository = (*FileStorage)(nil)
var _ EntryRepository = (*FileStorage)(nil)
