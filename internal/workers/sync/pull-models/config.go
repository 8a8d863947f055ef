// internal/workers/sync/pull-models/config.go
package pullmodels

import (
	"time"

	"survey-sync/internal/common/config"
)

const (
	ModeStatic = "static"
	ModeAPI    = "api"
)

type Config struct {
	Models        []string
	Mode          string
	DataRemoteURL string
	UpdateDelay   time.Duration
	Timeout       time.Duration
}

// LoadConfig derives the pull settings from the application config. The
// locally owned "clientes" collection is never part of the list.
func LoadConfig(appConfig *config.Config) *Config {
	mode := appConfig.Sync.PullMode
	if mode == "" {
		mode = ModeStatic
	}
	return &Config{
		Models:        appConfig.PulledModels(),
		Mode:          mode,
		DataRemoteURL: appConfig.API.DataRemoteURL,
		UpdateDelay:   config.GetDuration(appConfig.Sync.UpdateDelay),
		Timeout:       config.GetDuration(appConfig.API.Timeout),
	}
}
