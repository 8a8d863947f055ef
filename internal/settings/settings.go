// Package settings keeps device-level preferences, currently the API base
// URL chosen by the administrator.
package settings

import (
	"context"
	"fmt"
	"sync"

	stderrors "survey-sync/internal/common/errors"
	httpclient "survey-sync/internal/common/http"
	"survey-sync/internal/common/logger"
	"survey-sync/internal/storage"
)

const (
	Document   = "settings.json"
	KeyBaseURL = "url_base"
)

// Prober checks that a candidate URL answers a GET with a 2xx status.
type Prober interface {
	Probe(ctx context.Context, url string) (bool, int, error)
}

type Settings struct {
	storage   *storage.Store
	prober    Prober
	probePath string
	logger    logger.Logger

	mu sync.Mutex
}

func New(st *storage.Store, prober Prober, probePath string, log logger.Logger) *Settings {
	if probePath == "" {
		probePath = "/clientes"
	}
	return &Settings{
		storage:   st,
		prober:    prober,
		probePath: probePath,
		logger:    log.WithFields(map[string]interface{}{"component": "settings"}),
	}
}

// ValidateBaseURL probes a known endpoint under url. Any failure, including
// a transport error, reads as invalid.
func (s *Settings) ValidateBaseURL(ctx context.Context, url string) bool {
	normalized := httpclient.NormalizeBaseURL(url)
	if normalized == "" {
		return false
	}
	ok, status, err := s.prober.Probe(ctx, httpclient.JoinURL(normalized, s.probePath))
	if err != nil || !ok {
		fields := map[string]interface{}{"url": normalized, "status": status}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.logger.Warn("api url probe failed", fields)
		return false
	}
	return true
}

// SetAPIBaseURL normalizes and validates url, then persists it. The stored
// value is returned.
func (s *Settings) SetAPIBaseURL(ctx context.Context, url string) (string, error) {
	normalized := httpclient.NormalizeBaseURL(url)
	if normalized == "" {
		return "", stderrors.NewAPIURLInvalidError(url, "empty url")
	}
	if !s.ValidateBaseURL(ctx, normalized) {
		return "", stderrors.NewAPIURLInvalidError(normalized,
			fmt.Sprintf("no 2xx answer from %s", httpclient.JoinURL(normalized, s.probePath)))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.read(ctx)
	values[KeyBaseURL] = normalized
	if err := s.storage.WriteJSON(ctx, Document, values); err != nil {
		return "", err
	}
	s.logger.Info("api url saved", map[string]interface{}{"url": normalized})
	return normalized, nil
}

// GetAPIBaseURL returns the persisted URL and whether one is set.
func (s *Settings) GetAPIBaseURL(ctx context.Context) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.read(ctx)[KeyBaseURL]
	return u, u != ""
}

func (s *Settings) GetAPIBaseURLOrDefault(ctx context.Context, fallback string) string {
	if u, ok := s.GetAPIBaseURL(ctx); ok {
		return u
	}
	return httpclient.NormalizeBaseURL(fallback)
}

func (s *Settings) ClearAPIBaseURL(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := s.read(ctx)
	if _, ok := values[KeyBaseURL]; !ok {
		return nil
	}
	delete(values, KeyBaseURL)
	return s.storage.WriteJSON(ctx, Document, values)
}

func (s *Settings) read(ctx context.Context) map[string]string {
	values := map[string]string{}
	s.storage.ReadJSON(ctx, Document, &values)
	if values == nil {
		values = map[string]string{}
	}
	return values
}
