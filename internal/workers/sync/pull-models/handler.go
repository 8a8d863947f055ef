// internal/workers/sync/pull-models/handler.go
package pullmodels

import (
	"context"
	"errors"
	"fmt"
	"time"

	"survey-sync/internal/cache"
	stderrors "survey-sync/internal/common/errors"
	httpclient "survey-sync/internal/common/http"
	"survey-sync/internal/common/logger"
	"survey-sync/internal/common/metrics"
	"survey-sync/internal/common/observability"
	"survey-sync/internal/models"
	"survey-sync/internal/storage"

	"github.com/google/uuid"
)

const (
	TaskType = "pull-models"
)

var (
	ErrRemoteFetchFailed = errors.New("REMOTE_FETCH_FAILED")
	ErrInvalidMeta       = errors.New("INVALID_COLLECTION_META")
)

// DataDocument is the local document holding a collection's rows.
func DataDocument(name string) string { return name + ".json" }

// MetaDocument is the local document holding a collection's descriptor.
func MetaDocument(name string) string { return name + ".meta.json" }

type Handler struct {
	config       *Config
	storage      *storage.Store
	remote       RemoteSource
	connectivity httpclient.Connectivity
	obs          *observability.Observability
	errors       *stderrors.ErrorHandler
	logger       logger.Logger
	now          func() time.Time
}

func NewHandler(
	config *Config,
	st *storage.Store,
	remote RemoteSource,
	connectivity httpclient.Connectivity,
	obs *observability.Observability,
	log logger.Logger,
) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		storage:      st,
		remote:       remote,
		connectivity: connectivity,
		obs:          obs,
		errors:       stderrors.NewErrorHandler(log),
		logger:       log,
		now:          time.Now,
	}
}

// Execute resolves every configured collection, from the remote source when
// it is stale and reachable, from local storage otherwise. A failing
// collection falls back to its local copy and never aborts the run; only a
// cancelled context does.
func (h *Handler) Execute(ctx context.Context, progress Progress) (*Output, error) {
	return h.execute(ctx, progress)
}

// Source adapts a pull run to the master cache loader.
func (h *Handler) Source(progress Progress) cache.Source {
	return func(ctx context.Context) (map[string]models.Collection, error) {
		out, err := h.execute(ctx, progress)
		if err != nil {
			return nil, err
		}
		return out.Collections, nil
	}
}

func (h *Handler) execute(ctx context.Context, progress Progress) (*Output, error) {
	out := &Output{
		RunID:       uuid.New().String(),
		StartedAt:   h.now().UTC(),
		Collections: make(map[string]models.Collection, len(h.config.Models)),
	}
	log := h.logger.WithFields(map[string]interface{}{"runId": out.RunID})

	out.Online = h.isOnline(ctx, log)
	refresh := out.Online && h.storage.Durable()
	if !h.storage.Durable() {
		log.Info("storage is not durable, using local data only", nil)
	}

	total := len(h.config.Models)
	degraded := false
	for i, name := range h.config.Models {
		if err := ctx.Err(); err != nil {
			h.obs.RecordRun(ctx, "pull", "cancelled", h.now().Sub(out.StartedAt))
			return nil, err
		}

		rows, res := h.syncCollection(ctx, log, name, refresh, i+1, total, progress)
		out.Collections[name] = rows
		out.Results = append(out.Results, res)
		metrics.PullCollections.WithLabelValues(res.Source).Inc()
		if res.Source == SourceFallback {
			degraded = true
		}
	}
	progress.finish()

	out.FinishedAt = h.now().UTC()
	result := "ok"
	switch {
	case !refresh:
		result = "local"
	case degraded:
		result = "degraded"
	}
	h.obs.RecordRun(ctx, "pull", result, out.FinishedAt.Sub(out.StartedAt))

	log.Info("pull finished", map[string]interface{}{
		"collections": total,
		"online":      out.Online,
		"result":      result,
	})
	return out, nil
}

func (h *Handler) syncCollection(
	ctx context.Context,
	log logger.Logger,
	name string,
	refresh bool,
	done, total int,
	progress Progress,
) (models.Collection, CollectionResult) {
	log = log.WithFields(map[string]interface{}{"collection": name})

	if !refresh {
		progress.report(fmt.Sprintf("%s loaded locally", name), done, total)
		rows := h.readLocal(ctx, name)
		return rows, CollectionResult{Name: name, Source: SourceLocal, Rows: len(rows)}
	}

	stale, remoteMeta := h.isStale(ctx, log, name)
	if !stale {
		progress.report(fmt.Sprintf("%s already up to date", name), done, total)
		rows := h.readLocal(ctx, name)
		return rows, CollectionResult{Name: name, Source: SourceLocal, Rows: len(rows)}
	}

	progress.report(fmt.Sprintf("Updating %s...", name), done, total)
	rows, err := h.fetch(ctx, name)
	if err != nil {
		h.errors.Handle(TaskType, stderrors.NewRemoteFetchFailedError(name, err), map[string]interface{}{
			"collection": name,
		})
		rows = h.readLocal(ctx, name)
		return rows, CollectionResult{
			Name:   name,
			Source: SourceFallback,
			Rows:   len(rows),
			Error:  fmt.Sprintf("%v: %v", ErrRemoteFetchFailed, err),
		}
	}

	if err := h.storage.WriteJSON(ctx, DataDocument(name), rows); err != nil {
		log.Warn("collection kept in memory only", map[string]interface{}{"error": err.Error()})
	} else if remoteMeta != nil {
		if err := h.storage.WriteJSON(ctx, MetaDocument(name), remoteMeta); err != nil {
			log.Warn("collection descriptor not saved", map[string]interface{}{"error": err.Error()})
		}
	}

	log.Info("collection refreshed", map[string]interface{}{"rows": len(rows)})
	return rows, CollectionResult{Name: name, Source: SourceRemote, Rows: len(rows)}
}

func (h *Handler) fetch(ctx context.Context, name string) (models.Collection, error) {
	if err := wait(ctx, h.config.UpdateDelay); err != nil {
		return nil, err
	}
	if h.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Timeout)
		defer cancel()
	}
	rows, err := h.remote.FetchCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = models.Collection{}
	}
	return rows, nil
}

// isStale decides whether name must be downloaded. Missing local rows or a
// missing local descriptor always count as stale; when the remote side has
// no descriptor the local copy is kept.
func (h *Handler) isStale(ctx context.Context, log logger.Logger, name string) (bool, *models.CollectionMeta) {
	if !h.remote.Versioned() {
		return true, nil
	}

	remoteMeta, err := h.remote.FetchMeta(ctx, name)
	if err != nil {
		log.Debug("remote descriptor unavailable", map[string]interface{}{"error": err.Error()})
		remoteMeta = nil
	}

	if !h.storage.Exists(ctx, DataDocument(name)) || !h.storage.Exists(ctx, MetaDocument(name)) {
		return true, remoteMeta
	}
	if remoteMeta == nil {
		return false, nil
	}

	var local models.CollectionMeta
	if !h.storage.ReadJSON(ctx, MetaDocument(name), &local) {
		return true, remoteMeta
	}
	return !local.SameVersion(*remoteMeta), remoteMeta
}

// ReadLocal returns the persisted rows of name, empty when there are none.
func (h *Handler) ReadLocal(ctx context.Context, name string) models.Collection {
	return h.readLocal(ctx, name)
}

func (h *Handler) readLocal(ctx context.Context, name string) models.Collection {
	rows := models.Collection{}
	h.storage.ReadJSON(ctx, DataDocument(name), &rows)
	if rows == nil {
		rows = models.Collection{}
	}
	return rows
}

func (h *Handler) isOnline(ctx context.Context, log logger.Logger) bool {
	if h.connectivity == nil {
		return false
	}
	online, err := h.connectivity.IsOnline(ctx)
	if err != nil {
		log.Warn("connectivity check failed, treating as offline", map[string]interface{}{"error": err.Error()})
		return false
	}
	return online
}

func (p Progress) report(message string, done, total int) {
	if p == nil {
		return
	}
	p(message, &done, &total)
}

func (p Progress) finish() {
	if p == nil {
		return
	}
	p("Starting...", nil, nil)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
