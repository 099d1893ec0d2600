package api

import (
	"github.com/yourname/timetracker/internal"
	"github.com/yourname/timetracker/internal/service"
	"github.com/yourname/timetracker/internal/storage"
)

type App interface {
	Logger() internal.Logger
	Timers() *service.TimerService
	Entries() *service.EntryService
	Timesheets() storage.TimesheetRepository
	Authorizer() service.Authorizer
}

type app struct {
	logger  internal.Logger
	timers  *service.TimerService
	entries *service.EntryService
	repos   *storage.Repositories
	authz   service.Authorizer
}

// NewApp wires the services over one set of repositories.
func NewApp(logger internal.Logger, repos *storage.Repositories, authz service.Authorizer) App {
	return &app{
		logger:  logger,
		timers:  service.NewTimerService(repos, authz, logger),
		entries: service.NewEntryService(repos, authz, logger),
		repos:   repos,
		authz:   authz,
	}
}

func (a *app) Logger() internal.Logger                 { return a.logger }
func (a *app) Timers() *service.TimerService           { return a.timers }
func (a *app) Entries() *service.EntryService          { return a.entries }
func (a *app) Timesheets() storage.TimesheetRepository { return a.repos.Timesheets }
func (a *app) Authorizer() service.Authorizer          { return a.authz }
