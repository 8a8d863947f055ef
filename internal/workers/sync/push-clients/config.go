// internal/workers/sync/push-clients/config.go
package pushclients

import (
	"time"

	"survey-sync/internal/common/config"
)

type Config struct {
	DefaultBaseURL   string
	RootRetries      int
	DependentRetries int
	RetryDelay       time.Duration
	// StrictDependents withholds the sync stamp when any dependent write
	// fails; the record is reported "parcial" and pushed again next run.
	StrictDependents bool
	AnswersPath      string
	InstrumentID     int
}

func LoadConfig(appConfig *config.Config) *Config {
	return &Config{
		DefaultBaseURL:   appConfig.API.BaseURL,
		RootRetries:      appConfig.Sync.RootRetries,
		DependentRetries: appConfig.Sync.DependentRetries,
		RetryDelay:       config.GetDuration(appConfig.Sync.RetryDelay),
		StrictDependents: appConfig.Sync.StrictDependents,
		AnswersPath:      appConfig.Sync.AnswersPath,
		InstrumentID:     appConfig.Sync.InstrumentID,
	}
}
