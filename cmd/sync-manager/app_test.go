package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"survey-sync/internal/common/config"
	pushclients "survey-sync/internal/workers/sync/push-clients"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T, apiURL string) *config.Config {
	t.Helper()
	return &config.Config{
		App: config.AppConfig{Name: "survey-sync"},
		API: config.APIConfig{
			BaseURL:       apiURL,
			DataRemoteURL: apiURL + "/data/",
			Timeout:       2000,
			ProbePath:     "/clientes",
		},
		Storage: config.StorageConfig{Backend: "file", DataDir: t.TempDir(), Namespace: "survey"},
		Sync: config.SyncConfig{
			Models:           []string{"clientes", "estados"},
			PullMode:         "api",
			RootRetries:      2,
			DependentRetries: 1,
			RetryDelay:       1,
			AnswersPath:      "/respuestas/lote",
			InstrumentID:     1,
		},
	}
}

func TestNewApp_WiresPullAndPush(t *testing.T) {
	ctx := context.Background()
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/estados":
			_, _ = w.Write([]byte(`[{"idEstado":1,"nombre":"Lara"}]`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/clientes":
			_, _ = w.Write([]byte(`{"idCliente":7}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	a, err := newApp(ctx, testConfig(t, srv.URL+"/api"), zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer a.close()

	out, err := runPull(ctx, a, nil)
	require.NoError(t, err)
	assert.True(t, out.Online)
	assert.True(t, a.cache.IsLoaded())
	assert.Len(t, a.cache.Get().Collection("estados"), 1)

	id, err := a.records.CreateClientRecord(ctx, map[string]interface{}{"nombre": "Acme"})
	require.NoError(t, err)

	changed := 0
	a.bus.On("clientesActualizados", func(interface{}) { changed++ })

	res, err := a.push.Execute(ctx)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Summary.OK)
	assert.Equal(t, 1, changed)

	rec, ok := a.records.GetClientRecord(ctx, id)
	require.True(t, ok)
	assert.False(t, rec.IsPending())
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, paths, "POST /api/clientes")
}

func TestNewApp_StaticPullChecksDataHost(t *testing.T) {
	ctx := context.Background()
	dataSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/data/estados.json":
			_, _ = w.Write([]byte(`[{"idEstado":1,"nombre":"Lara"},{"idEstado":2,"nombre":"Zulia"}]`))
		case "/data/estados.meta.json":
			_, _ = w.Write([]byte(`{"fecha_creacion":"2024-01-01","fecha_modificacion":"2024-02-01"}`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer dataSrv.Close()

	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadAPI := apiSrv.URL + "/api"
	apiSrv.Close()

	cfg := testConfig(t, deadAPI)
	cfg.API.DataRemoteURL = dataSrv.URL + "/data/"
	cfg.Sync.PullMode = "static"
	cfg.Sync.Models = []string{"estados"}

	a, err := newApp(ctx, cfg, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer a.close()

	out, err := runPull(ctx, a, nil)
	require.NoError(t, err)
	assert.True(t, out.Online, "the data host answers although the API is down")
	assert.Len(t, a.cache.Get().Collection("estados"), 2)

	res, err := a.push.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, pushclients.ReasonNoConnection, res.Reason, "push still checks the API")
}

func TestNewApp_SavedBaseURLWins(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := newApp(ctx, testConfig(t, "http://default.invalid/api"), zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer a.close()

	assert.Equal(t, "http://default.invalid/api", a.baseURL(ctx))
	_, err = a.settings.SetAPIBaseURL(ctx, srv.URL+"/api/")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/api", a.baseURL(ctx))
}

func TestNewApp_UnsupportedBackend(t *testing.T) {
	cfg := testConfig(t, "http://localhost")
	cfg.Storage.Backend = "s3"

	_, err := newApp(context.Background(), cfg, zaptest.NewLogger(t), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage backend: s3")
}

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	err := retryWithBackoff(func() error {
		calls++
		if calls < 3 {
			return assert.AnError
		}
		return nil
	}, 5, time.Millisecond, zaptest.NewLogger(t), "op")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryWithBackoff(func() error {
		calls++
		return assert.AnError
	}, 2, time.Millisecond, zaptest.NewLogger(t), "op")
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, calls)
}

func TestCollectFields(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]interface{}
		wantErr bool
	}{
		{
			name:  "typed values",
			pairs: []string{"nombre=Acme", "empleados=12", "activo=true", "rif= J-1 "},
			want: map[string]interface{}{
				"nombre":    "Acme",
				"empleados": json.Number("12"),
				"activo":    true,
				"rif":       " J-1 ",
			},
		},
		{
			name:  "later pair wins",
			pairs: []string{"nombre=A", "nombre=B"},
			want:  map[string]interface{}{"nombre": "B"},
		},
		{name: "missing separator", pairs: []string{"nombre"}, wantErr: true},
		{name: "empty key", pairs: []string{"=x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collectFields(tt.pairs, "")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeFields(t *testing.T) {
	base := map[string]interface{}{"nombre": "Acme", "telefono": "1"}
	got := mergeFields(base, map[string]interface{}{"telefono": "2"})

	assert.Equal(t, map[string]interface{}{"nombre": "Acme", "telefono": "2"}, got)
	assert.Equal(t, "1", base["telefono"])
}

func TestHealthMux(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t, "http://localhost"), zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer a.close()

	mux := healthMux(a)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.NoError(t, a.cache.LoadData(ctx, nil))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)
}

func TestPrintPush(t *testing.T) {
	var buf bytes.Buffer
	printPush(&buf, &pushclients.RunResult{OK: false, Reason: pushclients.ReasonNoConnection})
	assert.Equal(t, "Push not run: sin_conexion\n", buf.String())

	buf.Reset()
	printPush(&buf, &pushclients.RunResult{
		OK:      true,
		RunID:   "run-1",
		BaseURL: "http://api",
		Records: []pushclients.RecordOutcome{{
			LocalID: "1",
			State:   pushclients.StatePartial,
			Steps:   []pushclients.Step{{Name: "categorias", Attempts: 2, Error: "status 500"}},
		}},
		Summary: pushclients.Summary{Total: 1, Partial: 1},
	})
	out := buf.String()
	assert.Contains(t, out, "categorias failed after 2 attempts: status 500")
	assert.True(t, strings.HasSuffix(out, "Total 1, ok 0, partial 1, failed 0\n"))
}
