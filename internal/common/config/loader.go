package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	stderrors "survey-sync/internal/common/errors"
)

const (
	DefaultBaseURL       = "https://restcontroller-scpi.onrender.com/api"
	DefaultDataRemoteURL = "https://sgvcpa-admin.web.app/data/"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig()

	return finish(v)
}

func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg, v)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
	}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if val := os.Getenv("SURVEY_API_BASE_URL"); val != "" && cfg.API.BaseURL == DefaultBaseURL {
		cfg.API.BaseURL = val
	}
	if val := os.Getenv("SURVEY_DATA_DIR"); val != "" && cfg.Storage.DSN == "" {
		cfg.Storage.DataDir = val
	}
	if cfg.Auth.Admin.Password == "" {
		cfg.Auth.Admin.Password = os.Getenv("SURVEY_ADMIN_PASSWORD")
	}
	if cfg.Auth.User.Password == "" {
		cfg.Auth.User.Password = os.Getenv("SURVEY_USER_PASSWORD")
	}
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

// applyDefaults fills unset keys. Retry counts are checked against v rather
// than their zero value, so an explicit 0 disables retries.
func applyDefaults(cfg *Config, v *viper.Viper) {
	if cfg.App.Name == "" {
		cfg.App.Name = "survey-sync"
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.DataRemoteURL == "" {
		cfg.API.DataRemoteURL = DefaultDataRemoteURL
	}
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 15000
	}
	if cfg.API.ProbePath == "" {
		cfg.API.ProbePath = "/clientes"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "file"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "./data"
	}
	if cfg.Storage.Namespace == "" {
		cfg.Storage.Namespace = "survey"
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 10
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 2
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if len(cfg.Sync.Models) == 0 {
		cfg.Sync.Models = append([]string(nil), DefaultModels...)
	}
	if cfg.Sync.PullMode == "" {
		cfg.Sync.PullMode = "static"
	}
	cfg.Sync.RootRetries = retryCount(v, "sync.root_retries", stderrors.ErrCodeRootCreateFailed)
	cfg.Sync.DependentRetries = retryCount(v, "sync.dependent_retries", stderrors.ErrCodeDependentWriteFailed)
	if cfg.Sync.RetryDelay == 0 {
		cfg.Sync.RetryDelay = 600
	}
	if cfg.Sync.UpdateDelay == 0 {
		cfg.Sync.UpdateDelay = 500
	}
	if cfg.Sync.AnswersPath == "" {
		cfg.Sync.AnswersPath = "/respuestas/lote"
	}
	if cfg.Sync.InstrumentID == 0 {
		cfg.Sync.InstrumentID = 1
	}

	if cfg.Auth.User.Username == "" {
		cfg.Auth.User.Username = "user"
	}
	if cfg.Auth.Admin.Username == "" {
		cfg.Auth.Admin.Username = "admin"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = ":9090"
	}
}

func retryCount(v *viper.Viper, key string, code stderrors.ErrorCode) int {
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return stderrors.GetRetryCount(code)
}

func validateConfig(cfg *Config) error {
	switch cfg.Sync.PullMode {
	case "static", "api":
	default:
		return fmt.Errorf("sync.pull_mode must be static or api, got %q", cfg.Sync.PullMode)
	}

	if cfg.Storage.DSN == "" {
		switch cfg.Storage.Backend {
		case "file", "memory":
		case "redis":
			if cfg.Database.Redis.Address == "" {
				return fmt.Errorf("database.redis.address is required for the redis storage backend")
			}
		case "postgres":
			if cfg.Database.Postgres.Host == "" {
				return fmt.Errorf("database.postgres.host is required for the postgres storage backend")
			}
			if cfg.Database.Postgres.Database == "" {
				return fmt.Errorf("database.postgres.database is required for the postgres storage backend")
			}
		default:
			return fmt.Errorf("unsupported storage.backend %q", cfg.Storage.Backend)
		}
	}

	if cfg.Sync.RootRetries < 0 || cfg.Sync.DependentRetries < 0 {
		return fmt.Errorf("sync retry counts must not be negative")
	}
	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

// PulledModels returns the configured collections minus the locally owned
// client list.
func (c *Config) PulledModels() []string {
	out := make([]string, 0, len(c.Sync.Models))
	for _, m := range c.Sync.Models {
		if m != "clientes" {
			out = append(out, m)
		}
	}
	return out
}
