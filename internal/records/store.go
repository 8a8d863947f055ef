// Package records manages the locally created client records and their
// answer bundles. Both collections are read and written whole.
package records

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"survey-sync/internal/common/errors"
	"survey-sync/internal/common/logger"
	"survey-sync/internal/common/metrics"
	"survey-sync/internal/models"
	"survey-sync/internal/storage"
)

const (
	ClientsDocument = "clientes.json"
	AnswersDocument = "respuestas.json"
)

// Store serializes its own read-modify-write cycles with a mutex, so two
// creators in one process cannot race on the next identifier.
type Store struct {
	storage *storage.Store
	logger  logger.Logger
	now     func() time.Time

	mu sync.Mutex
}

func NewStore(st *storage.Store, log logger.Logger) *Store {
	return &Store{
		storage: st,
		logger:  log.WithFields(map[string]interface{}{"component": "record-store"}),
		now:     time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Timestamp formats t the way records store it (ISO-8601, UTC, millis).
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// CreateClientRecord appends a new pending record and returns its id, one
// past the highest numeric id already stored.
func (s *Store) CreateClientRecord(ctx context.Context, fields map[string]interface{}) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.readClients(ctx)
	maxID := 0
	for _, rec := range list {
		if n := rec.NumericID(); n > maxID {
			maxID = n
		}
	}

	rec := models.ClientRecord{
		ID:        strconv.Itoa(maxID + 1),
		CreatedAt: Timestamp(s.now()),
		SyncedAt:  "",
		Fields:    models.ClientRecord{Fields: fields}.RemotePayload(),
	}
	list = append(list, rec)
	if err := s.storage.WriteJSON(ctx, ClientsDocument, list); err != nil {
		return "", err
	}

	s.logger.Info("client record created", map[string]interface{}{"idCliente": rec.ID})
	s.updatePendingGauge(list)
	return rec.ID, nil
}

// ReadAllClientRecords returns the stored records, empty when none exist.
func (s *Store) ReadAllClientRecords(ctx context.Context) []models.ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readClients(ctx)
}

// WriteAllClientRecords replaces the whole collection.
func (s *Store) WriteAllClientRecords(ctx context.Context, list []models.ClientRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeClients(ctx, list)
}

// GetClientRecord looks up one record by local id.
func (s *Store) GetClientRecord(ctx context.Context, id string) (models.ClientRecord, bool) {
	for _, rec := range s.ReadAllClientRecords(ctx) {
		if rec.ID == id {
			return rec, true
		}
	}
	return models.ClientRecord{}, false
}

// UpdateClientRecord replaces the profile fields of a record. The id and
// both timestamps are kept.
func (s *Store) UpdateClientRecord(ctx context.Context, id string, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.readClients(ctx)
	for i := range list {
		if list[i].ID == id {
			list[i].Fields = models.ClientRecord{Fields: fields}.RemotePayload()
			return s.writeClients(ctx, list)
		}
	}
	return errors.NewRecordNotFoundError(id)
}

// DeleteClientRecord removes a record together with its answer bundle.
func (s *Store) DeleteClientRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.readClients(ctx)
	kept := list[:0]
	found := false
	for _, rec := range list {
		if rec.ID == id {
			found = true
			continue
		}
		kept = append(kept, rec)
	}
	if !found {
		return errors.NewRecordNotFoundError(id)
	}
	if err := s.writeClients(ctx, kept); err != nil {
		return err
	}
	return s.deleteAnswers(ctx, id)
}

// MarkSynced stamps a pending record as synchronized. A record that already
// carries a stamp keeps it.
func (s *Store) MarkSynced(ctx context.Context, id string, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.readClients(ctx)
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if list[i].SyncedAt != "" {
			return list[i].SyncedAt, nil
		}
		list[i].SyncedAt = Timestamp(at)
		if err := s.writeClients(ctx, list); err != nil {
			return "", err
		}
		return list[i].SyncedAt, nil
	}
	return "", errors.NewRecordNotFoundError(id)
}

// ListPending returns records whose sync stamp is still empty, in stored
// order.
func (s *Store) ListPending(ctx context.Context) []models.ClientRecord {
	all := s.ReadAllClientRecords(ctx)
	pending := make([]models.ClientRecord, 0, len(all))
	for _, rec := range all {
		if rec.IsPending() {
			pending = append(pending, rec)
		}
	}
	metrics.PendingRecords.Set(float64(len(pending)))
	return pending
}

// ReadAnswers returns the whole answers map. A collection persisted in any
// other shape reads as empty.
func (s *Store) ReadAnswers(ctx context.Context) models.AnswerMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAnswers(ctx)
}

// ReadAnswerBundle returns the bundle of one record.
func (s *Store) ReadAnswerBundle(ctx context.Context, clientID string) (models.AnswerBundle, bool) {
	b, ok := s.ReadAnswers(ctx)[clientID]
	return b, ok
}

// SaveAnswerBundle sets or replaces the bundle for clientID.
func (s *Store) SaveAnswerBundle(ctx context.Context, clientID string, bundle models.AnswerBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	answers := s.readAnswers(ctx)
	answers[clientID] = bundle
	return s.storage.WriteJSON(ctx, AnswersDocument, answers)
}

// DeleteAnswerBundle removes the bundle for clientID; absent ids are a no-op.
func (s *Store) DeleteAnswerBundle(ctx context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteAnswers(ctx, clientID)
}

func (s *Store) deleteAnswers(ctx context.Context, clientID string) error {
	answers := s.readAnswers(ctx)
	if _, ok := answers[clientID]; !ok {
		return nil
	}
	delete(answers, clientID)
	return s.storage.WriteJSON(ctx, AnswersDocument, answers)
}

// readClients decodes the collection element by element, so one unreadable
// entry is dropped without losing the records around it.
func (s *Store) readClients(ctx context.Context) []models.ClientRecord {
	var raw json.RawMessage
	if !s.storage.ReadJSON(ctx, ClientsDocument, &raw) {
		return []models.ClientRecord{}
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		s.logger.Warn("client collection has an unexpected shape, starting empty", map[string]interface{}{
			"document": ClientsDocument,
		})
		return []models.ClientRecord{}
	}

	list := make([]models.ClientRecord, 0, len(entries))
	for i, entry := range entries {
		var rec models.ClientRecord
		if err := json.Unmarshal(entry, &rec); err != nil {
			s.logger.Warn("skipping unreadable client record", map[string]interface{}{
				"index": i,
				"error": err.Error(),
			})
			continue
		}
		list = append(list, rec)
	}
	return list
}

func (s *Store) writeClients(ctx context.Context, list []models.ClientRecord) error {
	if list == nil {
		list = []models.ClientRecord{}
	}
	if err := s.storage.WriteJSON(ctx, ClientsDocument, list); err != nil {
		return err
	}
	s.updatePendingGauge(list)
	return nil
}

func (s *Store) readAnswers(ctx context.Context) models.AnswerMap {
	var raw json.RawMessage
	if !s.storage.ReadJSON(ctx, AnswersDocument, &raw) {
		return models.AnswerMap{}
	}
	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
		s.logger.Warn("answers collection has an unexpected shape, starting empty", map[string]interface{}{
			"document": AnswersDocument,
		})
		return models.AnswerMap{}
	}

	answers := make(models.AnswerMap, len(entries))
	for id, entry := range entries {
		var bundle models.AnswerBundle
		if err := json.Unmarshal(entry, &bundle); err != nil {
			s.logger.Warn("skipping unreadable answer bundle", map[string]interface{}{
				"idCliente": id,
				"error":     err.Error(),
			})
			continue
		}
		answers[id] = bundle
	}
	return answers
}

func (s *Store) updatePendingGauge(list []models.ClientRecord) {
	pending := 0
	for _, rec := range list {
		if rec.IsPending() {
			pending++
		}
	}
	metrics.PendingRecords.Set(float64(pending))
}
