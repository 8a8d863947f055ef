// internal/workers/sync/pull-models/handler_test.go
package pullmodels

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"survey-sync/internal/cache"
	"survey-sync/internal/common/config"
	httpclient "survey-sync/internal/common/http"
	"survey-sync/internal/common/logger"
	"survey-sync/internal/models"
	"survey-sync/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type assetServer struct {
	mu    sync.Mutex
	files map[string]string
	hits  map[string]int
	srv   *httptest.Server
}

func newAssetServer(t *testing.T, files map[string]string) *assetServer {
	t.Helper()
	a := &assetServer{files: files, hits: map[string]int{}}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.hits[r.URL.Path]++
		body, ok := a.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		if body == "!500" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *assetServer) set(path, body string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.files[path] = body
}

func (a *assetServer) hitCount(path string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hits[path]
}

func online(v bool) httpclient.Connectivity {
	return httpclient.ConnectivityFunc(func(context.Context) (bool, error) { return v, nil })
}

func createTestConfig(models ...string) *Config {
	return &Config{
		Models:      models,
		Mode:        ModeStatic,
		UpdateDelay: 0,
		Timeout:     2 * time.Second,
	}
}

func newStaticHandler(t *testing.T, a *assetServer, st *storage.Store, conn httpclient.Connectivity, names ...string) *Handler {
	t.Helper()
	client := httpclient.NewClient(2 * time.Second)
	remote := NewStaticSource(client, a.srv.URL+"/data/")
	return NewHandler(createTestConfig(names...), st, remote, conn, nil, logger.NewTestLogger(t))
}

func fileStore(t *testing.T) *storage.Store {
	t.Helper()
	return storage.New(storage.NewFileBackend(t.TempDir()), logger.NewTestLogger(t))
}

const metaV1 = `{"fecha_creacion":"2024-01-01","fecha_modificacion":"2024-02-01"}`

type progressCall struct {
	msg         string
	done, total *int
}

func recordProgress(calls *[]progressCall) Progress {
	return func(msg string, done, total *int) {
		*calls = append(*calls, progressCall{msg: msg, done: done, total: total})
	}
}

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_FreshInstallDownloadsAndPersists(t *testing.T) {
	ctx := context.Background()
	a := newAssetServer(t, map[string]string{
		"/data/estados.json":         `[{"idEstado":1,"descripcion":"Zulia"},{"idEstado":2,"descripcion":"Lara"}]`,
		"/data/estados.meta.json":    metaV1,
		"/data/categorias.json":      `{"rows":[{"idCategoria":7,"descripcion":"Carnes"}]}`,
		"/data/categorias.meta.json": metaV1,
	})
	st := fileStore(t)
	h := newStaticHandler(t, a, st, online(true), "estados", "categorias")

	var calls []progressCall
	out, err := h.Execute(ctx, recordProgress(&calls))
	require.NoError(t, err)

	assert.True(t, out.Online)
	assert.NotEmpty(t, out.RunID)
	require.Len(t, out.Collections["estados"], 2)
	assert.Equal(t, "Zulia", out.Collections["estados"][0].Description())
	require.Len(t, out.Collections["categorias"], 1)
	assert.Equal(t, int64(7), out.Collections["categorias"][0].Int("idCategoria"))
	for _, r := range out.Results {
		assert.Equal(t, SourceRemote, r.Source, r.Name)
	}

	assert.True(t, st.Exists(ctx, "estados.json"))
	var meta models.CollectionMeta
	require.True(t, st.ReadJSON(ctx, "estados.meta.json", &meta))
	assert.Equal(t, "2024-02-01", meta.FechaModificacion)

	require.Len(t, calls, 3)
	assert.Equal(t, 1, *calls[0].done)
	assert.Equal(t, 2, *calls[0].total)
	assert.Equal(t, 2, *calls[1].done)
	assert.Nil(t, calls[2].done, "final call signals the end of the load phase")
	assert.Nil(t, calls[2].total)
}

func TestHandler_Execute_StalenessRules(t *testing.T) {
	ctx := context.Background()
	a := newAssetServer(t, map[string]string{
		"/data/estados.json":      `[{"idEstado":1}]`,
		"/data/estados.meta.json": metaV1,
	})
	st := fileStore(t)
	h := newStaticHandler(t, a, st, online(true), "estados")

	_, err := h.Execute(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, 1, a.hitCount("/data/estados.json"))

	t.Run("same descriptor keeps local copy", func(t *testing.T) {
		out, err := h.Execute(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, SourceLocal, out.Results[0].Source)
		assert.Equal(t, 1, a.hitCount("/data/estados.json"))
	})

	t.Run("changed descriptor downloads again", func(t *testing.T) {
		a.set("/data/estados.meta.json", `{"fecha_creacion":"2024-01-01","fecha_modificacion":"2024-03-01"}`)
		a.set("/data/estados.json", `[{"idEstado":1},{"idEstado":2}]`)
		out, err := h.Execute(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, SourceRemote, out.Results[0].Source)
		assert.Len(t, out.Collections["estados"], 2)
		assert.Equal(t, 2, a.hitCount("/data/estados.json"))
	})

	t.Run("missing remote descriptor is not stale", func(t *testing.T) {
		a.set("/data/estados.meta.json", "!500")
		out, err := h.Execute(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, SourceLocal, out.Results[0].Source)
		assert.Len(t, out.Collections["estados"], 2)
	})

	t.Run("invalid remote descriptor is ignored", func(t *testing.T) {
		a.set("/data/estados.meta.json", `{"version":3}`)
		out, err := h.Execute(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, SourceLocal, out.Results[0].Source)
	})

	t.Run("missing local descriptor is stale", func(t *testing.T) {
		a.set("/data/estados.meta.json", metaV1)
		require.NoError(t, st.Remove(ctx, "estados.meta.json"))
		out, err := h.Execute(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, SourceRemote, out.Results[0].Source)
	})
}

func TestHandler_Execute_OfflineUsesLocalData(t *testing.T) {
	ctx := context.Background()
	a := newAssetServer(t, map[string]string{})
	st := fileStore(t)
	require.NoError(t, st.WriteJSON(ctx, "estados.json", []map[string]interface{}{{"idEstado": 3}}))

	h := newStaticHandler(t, a, st, online(false), "estados", "ciudades")
	out, err := h.Execute(ctx, nil)
	require.NoError(t, err)

	assert.False(t, out.Online)
	assert.Len(t, out.Collections["estados"], 1)
	assert.NotNil(t, out.Collections["ciudades"])
	assert.Empty(t, out.Collections["ciudades"])
	assert.Equal(t, 0, a.hitCount("/data/estados.meta.json"), "offline runs never reach the network")
}

func TestHandler_Execute_ConnectivityErrorTreatedAsOffline(t *testing.T) {
	a := newAssetServer(t, map[string]string{})
	conn := httpclient.ConnectivityFunc(func(context.Context) (bool, error) {
		return false, assert.AnError
	})
	h := newStaticHandler(t, a, fileStore(t), conn, "estados")

	out, err := h.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, out.Online)
	assert.Equal(t, SourceLocal, out.Results[0].Source)
}

func TestHandler_Execute_NonDurableStorageStaysLocal(t *testing.T) {
	a := newAssetServer(t, map[string]string{
		"/data/estados.json":      `[{"idEstado":1}]`,
		"/data/estados.meta.json": metaV1,
	})
	st := storage.New(storage.NewMemoryBackend(), logger.NewTestLogger(t))
	h := newStaticHandler(t, a, st, online(true), "estados")

	out, err := h.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, out.Results[0].Source)
	assert.Empty(t, out.Collections["estados"])
	assert.Equal(t, 0, a.hitCount("/data/estados.json"))
}

func TestHandler_Execute_FailingCollectionFallsBackAlone(t *testing.T) {
	ctx := context.Background()
	a := newAssetServer(t, map[string]string{
		"/data/estados.json":         "!500",
		"/data/estados.meta.json":    metaV1,
		"/data/categorias.json":      `[{"idCategoria":1}]`,
		"/data/categorias.meta.json": metaV1,
	})
	st := fileStore(t)
	require.NoError(t, st.WriteJSON(ctx, "estados.json", []map[string]interface{}{{"idEstado": 9}}))

	h := newStaticHandler(t, a, st, online(true), "estados", "categorias")
	out, err := h.Execute(ctx, nil)
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.Equal(t, SourceFallback, out.Results[0].Source)
	assert.Contains(t, out.Results[0].Error, "REMOTE_FETCH_FAILED")
	assert.Equal(t, int64(9), out.Collections["estados"][0].Int("idEstado"))
	assert.False(t, st.Exists(ctx, "estados.meta.json"), "descriptor is only saved with its rows")

	assert.Equal(t, SourceRemote, out.Results[1].Source)
	assert.Len(t, out.Collections["categorias"], 1)
}

func TestHandler_Execute_APIModeAlwaysRefreshes(t *testing.T) {
	ctx := context.Background()
	a := newAssetServer(t, map[string]string{
		"/api/formas-pago": `{"rows":[{"idFormaPago":1,"descripcion":"Efectivo"},{"idFormaPago":2,"descripcion":"Transferencia"}]}`,
	})
	st := fileStore(t)
	cfg := createTestConfig("formas-pago")
	cfg.Mode = ModeAPI
	remote := NewAPISource(httpclient.NewClient(time.Second), func() string { return a.srv.URL + "/api" })
	h := NewHandler(cfg, st, remote, online(true), nil, logger.NewTestLogger(t))

	for i := 0; i < 2; i++ {
		out, err := h.Execute(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, SourceRemote, out.Results[0].Source)
		assert.Len(t, out.Collections["formas-pago"], 2)
	}
	assert.Equal(t, 2, a.hitCount("/api/formas-pago"))
	assert.False(t, st.Exists(ctx, "formas-pago.meta.json"))
}

func TestHandler_RoundTripPreservesOrder(t *testing.T) {
	ctx := context.Background()
	a := newAssetServer(t, map[string]string{
		"/data/parroquias.json":      `[{"idParroquia":30},{"idParroquia":10},{"idParroquia":20}]`,
		"/data/parroquias.meta.json": metaV1,
	})
	h := newStaticHandler(t, a, fileStore(t), online(true), "parroquias")

	out, err := h.Execute(ctx, nil)
	require.NoError(t, err)

	local := h.ReadLocal(ctx, "parroquias")
	assert.Equal(t, out.Collections["parroquias"], local)

	var ids []int64
	for _, e := range local {
		ids = append(ids, e.Int("idParroquia"))
	}
	assert.Equal(t, []int64{30, 10, 20}, ids)
}

func TestHandler_Execute_CancelledContext(t *testing.T) {
	a := newAssetServer(t, map[string]string{})
	h := newStaticHandler(t, a, fileStore(t), online(false), "estados")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Execute(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandler_Source_FeedsMasterCache(t *testing.T) {
	a := newAssetServer(t, map[string]string{
		"/data/preguntas.json":      `[{"idPregunta":1,"descripcion":"Proveedores","questionKind":"SUPPLIER_COUNT"},{"idPregunta":2}]`,
		"/data/preguntas.meta.json": metaV1,
	})
	h := newStaticHandler(t, a, fileStore(t), online(true), "preguntas")

	c := cache.New(logger.NewTestLogger(t))
	var ready cache.Snapshot
	c.OnReady(func(s cache.Snapshot) { ready = s })

	require.NoError(t, c.Load(context.Background(), h.Source(nil)))
	assert.True(t, ready.Loaded)
	assert.Len(t, ready.Collection("preguntas"), 2)
	supplier := ready.QuestionsOfKind(models.QuestionSupplierCount)
	require.Len(t, supplier, 1)
	assert.True(t, strings.HasPrefix(supplier[0].Description(), "Proveedores"))
}

func TestLoadConfig(t *testing.T) {
	appCfg := &config.Config{}
	appCfg.Sync.Models = []string{"clientes", "estados", "preguntas"}
	appCfg.Sync.UpdateDelay = 500
	appCfg.API.Timeout = 15000
	appCfg.API.DataRemoteURL = "https://assets.example/data/"

	cfg := LoadConfig(appCfg)
	assert.Equal(t, []string{"estados", "preguntas"}, cfg.Models)
	assert.Equal(t, ModeStatic, cfg.Mode)
	assert.Equal(t, 500*time.Millisecond, cfg.UpdateDelay)
	assert.Equal(t, 15*time.Second, cfg.Timeout)
	assert.Equal(t, "https://assets.example/data/", cfg.DataRemoteURL)
}
