// cmd/sync-manager/serve.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"survey-sync/internal/cache"
	"survey-sync/internal/notify"
	"survey-sync/internal/records"
)

var pushInterval time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine until interrupted",
	Long: `Load master data, then push pending client records periodically.
External edits of the data directory are reported as record changes.
When metrics are enabled, /health, /ready and /metrics are served.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, cleanup := bootstrap(ctx)
		defer cleanup()

		if err := serve(ctx, a, pushInterval); err != nil {
			a.zapLog.Error("serve failed", zap.Error(err))
			os.Exit(1)
		}
	},
}

func init() {
	serveCmd.Flags().DurationVar(&pushInterval, "push-interval", 5*time.Minute, "Time between push runs (0 disables periodic pushes)")
	rootCmd.AddCommand(serveCmd)
}

// serve blocks until ctx is done.
func serve(ctx context.Context, a *app, interval time.Duration) error {
	zapLog := a.zapLog

	a.bus.On(notify.EventRecordsChanged, func(interface{}) {
		pending := 0
		for _, rec := range a.records.ReadAllClientRecords(ctx) {
			if rec.IsPending() {
				pending++
			}
		}
		zapLog.Info("client records changed", zap.Int("pending", pending))
	})
	a.cache.OnReady(func(snap cache.Snapshot) {
		zapLog.Info("master data ready", zap.Int("questions", len(snap.Collection("preguntas"))))
	})

	if dir, ok := a.storage.Dir(); ok {
		watcher, err := notify.NewWatcher(dir, []string{records.ClientsDocument, records.AnswersDocument}, a.bus, 0, a.log)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer func() {
			if err := watcher.Stop(); err != nil {
				zapLog.Warn("watcher stop failed", zap.Error(err))
			}
		}()
	}

	var srv *http.Server
	if a.cfg.Metrics.Enabled {
		srv = &http.Server{Addr: a.cfg.Metrics.Address, Handler: healthMux(a)}
		go func() {
			zapLog.Info("Health/Metrics server listening", zap.String("address", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	if _, err := runPull(ctx, a, nil); err != nil && ctx.Err() == nil {
		zapLog.Warn("initial pull failed", zap.Error(err))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pushLoop(ctx, a, interval)
	}()

	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping sync engine...")
	wg.Wait()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
		}
	}

	zapLog.Info("Sync engine stopped gracefully")
	return nil
}

// pushLoop runs one push right away and then every interval. Runs never
// overlap.
func pushLoop(ctx context.Context, a *app, interval time.Duration) {
	runPush := func() {
		res, err := a.push.Execute(ctx)
		if err != nil && ctx.Err() == nil {
			a.zapLog.Warn("push run failed", zap.Error(err))
			return
		}
		if res != nil && res.Reason != "" {
			a.zapLog.Info("push run skipped", zap.String("reason", res.Reason))
		}
	}

	runPush()
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runPush()
		}
	}
}

func healthMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !a.cache.IsLoaded() {
			writeStatus(w, http.StatusServiceUnavailable, "loading")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
