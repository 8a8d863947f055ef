// cmd/sync-manager/app.go
package main

import (
	"context"
	"fmt"
	"time"

	"survey-sync/internal/cache"
	"survey-sync/internal/common/config"
	httpclient "survey-sync/internal/common/http"
	"survey-sync/internal/common/logger"
	"survey-sync/internal/common/observability"
	"survey-sync/internal/notify"
	"survey-sync/internal/records"
	"survey-sync/internal/settings"
	"survey-sync/internal/storage"
	pullmodels "survey-sync/internal/workers/sync/pull-models"
	pushclients "survey-sync/internal/workers/sync/push-clients"

	"go.uber.org/zap"
)

// app holds every wired component of one process.
type app struct {
	cfg    *config.Config
	zapLog *zap.Logger
	log    logger.Logger
	obs    *observability.Observability

	storage      *storage.Store
	records      *records.Store
	settings     *settings.Settings
	client       *httpclient.Client
	connectivity httpclient.Connectivity
	bus          *notify.Bus
	cache        *cache.MasterCache
	pull         *pullmodels.Handler
	push         *pushclients.Handler
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func newApp(ctx context.Context, cfg *config.Config, zapLog *zap.Logger, obs *observability.Observability) (*app, error) {
	log := logger.NewZapAdapter(zapLog)

	backend, err := storage.NewBackend(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage backend: %w", err)
	}
	st := storage.New(backend, log)
	err = retryWithBackoff(func() error {
		return st.Ping(ctx)
	}, startupRetries, startupDelay, zapLog, "storage backend connection")
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		zapLog:  zapLog,
		log:     log,
		obs:     obs,
		storage: st,
		records: records.NewStore(st, log),
		client:  httpclient.NewClient(config.GetDuration(cfg.API.Timeout)),
		bus:     notify.NewBus(log),
		cache:   cache.New(log),
	}
	a.settings = settings.New(st, a.client, cfg.API.ProbePath, log)
	a.connectivity = httpclient.NewHTTPConnectivity(a.client, func() string {
		return a.baseURL(context.Background())
	})

	// Static pulls are online when the data host answers, whatever the state
	// of the API.
	pullCfg := pullmodels.LoadConfig(cfg)
	var (
		remote           pullmodels.RemoteSource
		pullConnectivity httpclient.Connectivity = a.connectivity
	)
	switch pullCfg.Mode {
	case pullmodels.ModeAPI:
		remote = pullmodels.NewAPISource(a.client, func() string { return a.baseURL(context.Background()) })
	default:
		remote = pullmodels.NewStaticSource(a.client, pullCfg.DataRemoteURL)
		pullConnectivity = httpclient.NewHTTPConnectivity(a.client, func() string { return pullCfg.DataRemoteURL })
	}
	a.pull = pullmodels.NewHandler(pullCfg, st, remote, pullConnectivity, obs, log)

	a.push = pushclients.NewHandler(
		pushclients.LoadConfig(cfg),
		a.records,
		a.client,
		a.connectivity,
		a.settings,
		a.bus,
		obs,
		log,
	)

	return a, nil
}

// baseURL is the administrator's URL when one was saved, the configured
// default otherwise.
func (a *app) baseURL(ctx context.Context) string {
	return a.settings.GetAPIBaseURLOrDefault(ctx, a.cfg.API.BaseURL)
}

func (a *app) close() {
	if err := a.storage.Close(); err != nil {
		a.log.Warn("storage close failed", map[string]interface{}{"error": err.Error()})
	}
}
