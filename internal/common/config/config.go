package config

import "fmt"

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	API      APIConfig      `mapstructure:"api"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type APIConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	DataRemoteURL string `mapstructure:"data_remote_url"`
	Timeout       int    `mapstructure:"timeout"` // milliseconds
	ProbePath     string `mapstructure:"probe_path"`
}

// StorageConfig selects the document backend. DSN wins over Backend when set
// (file:///path, memory://, redis://host:port/db, postgres://...).
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	DSN       string `mapstructure:"dsn"`
	DataDir   string `mapstructure:"data_dir"`
	Namespace string `mapstructure:"namespace"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SyncConfig struct {
	Models           []string `mapstructure:"models"`
	PullMode         string   `mapstructure:"pull_mode"` // static | api
	RootRetries      int      `mapstructure:"root_retries"`
	DependentRetries int      `mapstructure:"dependent_retries"`
	RetryDelay       int      `mapstructure:"retry_delay"`  // milliseconds
	UpdateDelay      int      `mapstructure:"update_delay"` // milliseconds
	StrictDependents bool     `mapstructure:"strict_dependents"`
	AnswersPath      string   `mapstructure:"answers_path"`
	InstrumentID     int      `mapstructure:"instrument_id"`
}

type Credential struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type AuthConfig struct {
	User  Credential `mapstructure:"user"`
	Admin Credential `mapstructure:"admin"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// DefaultModels is the full list of persisted collections; "clientes" is
// owned locally and never pulled.
var DefaultModels = []string{
	"clientes",
	"redes-sociales",
	"estados",
	"municipios",
	"parroquias",
	"ciudades",
	"categorias",
	"preguntas",
	"formas-pago",
	"condiciones-pago",
}
