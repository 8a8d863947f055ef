// Package storage persists named JSON documents over interchangeable
// backends. Reads never fail loudly: a missing, empty or unparseable
// document yields the caller's fallback.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"reflect"
	"strings"

	stderrors "survey-sync/internal/common/errors"
	"survey-sync/internal/common/logger"
	"survey-sync/internal/common/metrics"
)

var ErrInvalidName = errors.New("INVALID_DOCUMENT_NAME")

// Backend stores raw document bytes by name.
type Backend interface {
	Get(ctx context.Context, name string) ([]byte, bool, error)
	Put(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	// Durable is false for backends that lose data with the process.
	Durable() bool
	Close() error
}

type Store struct {
	backend Backend
	logger  logger.Logger
}

func New(backend Backend, log logger.Logger) *Store {
	return &Store{
		backend: backend,
		logger:  log.WithFields(map[string]interface{}{"component": "storage"}),
	}
}

func (s *Store) Durable() bool {
	return s.backend.Durable()
}

func (s *Store) Close() error {
	return s.backend.Close()
}

// Dir is the data directory of file-backed stores.
func (s *Store) Dir() (string, bool) {
	if d, ok := s.backend.(interface{ Dir() string }); ok {
		return d.Dir(), true
	}
	return "", false
}

// Ping reports whether the backend answers at all.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.backend.Exists(ctx, "settings.json")
	return err
}

// ReadJSON decodes the named document into out, which must be a non-nil
// pointer. It returns false and leaves out untouched when the document is
// missing, empty or corrupt, so whatever out held acts as the fallback.
func (s *Store) ReadJSON(ctx context.Context, name string, out interface{}) bool {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		s.logger.Error("ReadJSON needs a non-nil pointer", map[string]interface{}{"name": name})
		return false
	}
	if err := ValidateName(name); err != nil {
		s.logger.Warn("invalid document name", map[string]interface{}{"name": name})
		return false
	}

	data, ok, err := s.backend.Get(ctx, name)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("read").Inc()
		s.logger.Warn("document read failed, using fallback", map[string]interface{}{
			"name":  name,
			"error": err.Error(),
		})
		return false
	}
	if !ok || len(strings.TrimSpace(string(data))) == 0 {
		return false
	}

	fresh := reflect.New(rv.Elem().Type())
	if err := json.Unmarshal(data, fresh.Interface()); err != nil {
		metrics.StorageErrors.WithLabelValues("decode").Inc()
		stdErr := stderrors.NewStorageReadCorruptError(name, err)
		s.logger.Warn("document is corrupt, using fallback", map[string]interface{}{
			"name":      name,
			"errorCode": string(stdErr.Code),
			"details":   stdErr.Details,
		})
		return false
	}
	rv.Elem().Set(fresh.Elem())
	return true
}

// WriteJSON replaces the named document with v, pretty-printed.
func (s *Store) WriteJSON(ctx context.Context, name string, v interface{}) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return stderrors.NewStorageWriteFailedError(name, err)
	}
	if err := s.backend.Put(ctx, name, data); err != nil {
		metrics.StorageErrors.WithLabelValues("write").Inc()
		return stderrors.NewStorageWriteFailedError(name, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	ok, err := s.backend.Exists(ctx, name)
	if err != nil {
		metrics.StorageErrors.WithLabelValues("exists").Inc()
		s.logger.Warn("exists check failed", map[string]interface{}{"name": name, "error": err.Error()})
		return false
	}
	return ok
}

// Remove deletes the named document. Removing a missing document is not an
// error.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := s.backend.Delete(ctx, name); err != nil {
		metrics.StorageErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

// ValidateName rejects names that would escape a flat namespace.
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." || path.Clean(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
