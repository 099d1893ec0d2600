package config

import (
	"errors"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `env:"APP_ENV" env-default:"development"`
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
	HTTPAddr string `env:"HTTP_ADDR" env-default:":8088"`

	StorageBackend string `env:"STORAGE_BACKEND" env-default:"file"`
	PostgresDSN    string `env:"POSTGRES_DSN"`
	SQLitePath     string `env:"SQLITE_PATH" env-default:"data/timetracker.db"`
	DataDir        string `env:"DATA_DIR" env-default:"data"`

	AuthMode       string `env:"AUTH_MODE" env-default:"local"`
	AuthServiceURL string `env:"AUTH_SERVICE_URL"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load() *Config {
	once.Do(func() {
		cfg = &Config{}
		// .env is optional; plain environment wins either way.
		_ = cleanenv.ReadConfig(".env", cfg)
		if err := cleanenv.ReadEnv(cfg); err != nil {
			panic("Invalid config: " + err.Error())
		}
		if err := cfg.Validate(); err != nil {
			panic("Invalid config: " + err.Error())
		}
	})
	return cfg
}

func (c *Config) Validate() error {
	switch c.StorageBackend {
	case "file":
		if c.DataDir == "" {
			return errors.New("DATA_DIR is required when STORAGE_BACKEND=file")
		}
	case "postgres":
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required when STORAGE_BACKEND=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when STORAGE_BACKEND=sqlite")
		}
	default:
		return errors.New("STORAGE_BACKEND must be one of: file, postgres, sqlite")
	}
	if c.AuthMode != "local" && c.AuthMode != "remote" {
		return errors.New("AUTH_MODE must be one of: local, remote")
	}
	if c.AuthMode == "remote" && c.AuthServiceURL == "" {
		return errors.New("AUTH_SERVICE_URL is required when AUTH_MODE=remote")
	}
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return errors.New("APP_ENV must be one of: development, staging, production")
	}
	return nil
}
