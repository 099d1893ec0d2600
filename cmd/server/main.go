package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourname/timetracker/internal"
	"github.com/yourname/timetracker/internal/api"
	"github.com/yourname/timetracker/internal/auth"
	"github.com/yourname/timetracker/internal/config"
	"github.com/yourname/timetracker/internal/storage"
)

func main() {
	cfg := config.Load()

	logger, err := internal.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	repos, closer, err := openStorage(cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init storage: %v", err)
	}
	defer closer.Close()

	if cfg.Env == "development" {
		if fs, ok := closer.(*storage.FileStorage); ok {
			seedDemoData(fs, logger)
		}
	}

	var provider auth.Provider
	remote := cfg.AuthMode == "remote"
	if remote {
		provider = auth.NewRemoteAuthProvider(cfg.AuthServiceURL, logger)
	} else {
		provider = auth.NewLocalAuthProvider(repos.Users, logger)
	}

	app := api.NewApp(logger, repos, auth.CapabilityAuthorizer{})
	router := api.NewRouter(app, provider, remote)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
	go func() {
		logger.Infof("server running on %s (storage=%s auth=%s)", cfg.HTTPAddr, cfg.StorageBackend, cfg.AuthMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
}

func openStorage(cfg *config.Config, logger internal.Logger) (*storage.Repositories, io.Closer, error) {
	switch cfg.StorageBackend {
	case "postgres":
		repos, s, err := storage.NewPostgresRepositories(cfg.PostgresDSN, logger)
		return repos, s, err
	case "sqlite":
		repos, s, err := storage.NewSQLiteRepositories(cfg.SQLitePath, logger)
		return repos, s, err
	default:
		repos, s, err := storage.NewFileRepositories(cfg.DataDir, logger)
		return repos, s, err
	}
}

// seedDemoData makes a fresh development instance usable out of the box.
func seedDemoData(fs *storage.FileStorage, logger internal.Logger) {
	if _, err := fs.GetUserByToken(context.Background(), "MOCK-TOKEN"); err == nil {
		return
	}
	seeds := []func() error{
		func() error {
			return fs.SeedUser(&internal.User{ID: "u1", Token: "MOCK-TOKEN", Name: "Demo User", WorkspaceIDs: []string{"ws1"}})
		},
		func() error {
			return fs.SeedUser(&internal.User{ID: "u2", Token: "ADMIN-TOKEN", Name: "Demo Manager", WorkspaceIDs: []string{"ws1"}, Capabilities: []string{auth.CapabilityManageAnyTimesheets}})
		},
		func() error {
			return fs.SeedProject(&internal.Project{ID: "p1", WorkspaceID: "ws1", Name: "Internal"})
		},
		func() error {
			return fs.SeedTask(&internal.Task{ID: "t1", ProjectID: "p1", Name: "General"})
		},
	}
	for _, seed := range seeds {
		if err := seed(); err != nil {
			logger.Warnf("failed to seed demo data: %v", err)
			return
		}
	}
	logger.Info("seeded demo user/project data")
}
