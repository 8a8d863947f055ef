// Package cache holds the reference collections for the lifetime of a
// session. It is constructed explicitly and passed to its consumers.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"survey-sync/internal/common/errors"
	"survey-sync/internal/common/logger"
	"survey-sync/internal/models"
)

// Slots are always present in a loaded snapshot, empty when the source had
// nothing for them.
var Slots = []string{
	models.CollectionCategories,
	models.CollectionQuestions,
	models.CollectionPaymentMethods,
	models.CollectionPaymentTerms,
	models.CollectionStates,
	models.CollectionMunicipalities,
	models.CollectionParishes,
	models.CollectionCities,
	models.CollectionSocialNetworks,
}

// Source produces reference data keyed by collection name.
type Source func(ctx context.Context) (map[string]models.Collection, error)

// StaticSource serves data that is already in memory.
func StaticSource(data map[string]models.Collection) Source {
	return func(context.Context) (map[string]models.Collection, error) {
		return data, nil
	}
}

type Snapshot struct {
	Loaded      bool
	Collections map[string]models.Collection
}

// Collection returns the named slot, never nil.
func (s Snapshot) Collection(name string) models.Collection {
	if c, ok := s.Collections[name]; ok && c != nil {
		return c
	}
	return models.Collection{}
}

// QuestionsOfKind filters the questions slot by tag.
func (s Snapshot) QuestionsOfKind(kind models.QuestionKind) models.Collection {
	out := models.Collection{}
	for _, q := range s.Collection(models.CollectionQuestions) {
		if q.Kind() == kind {
			out = append(out, q)
		}
	}
	return out
}

type MasterCache struct {
	mu          sync.Mutex
	collections map[string]models.Collection
	loaded      bool
	loading     bool
	generation  uint64
	nextID      uint64
	subscribers map[uint64]func(Snapshot)
	logger      logger.Logger
}

func New(log logger.Logger) *MasterCache {
	return &MasterCache{
		collections: make(map[string]models.Collection),
		subscribers: make(map[uint64]func(Snapshot)),
		logger:      log.WithFields(map[string]interface{}{"component": "master-cache"}),
	}
}

// Load fills the cache from source once. It is a no-op while a load is in
// flight or after one succeeded. On failure the cache stays unloaded and
// subscribers stay queued. A load overtaken by Clear is discarded.
func (c *MasterCache) Load(ctx context.Context, source Source) error {
	c.mu.Lock()
	if c.loaded || c.loading {
		c.mu.Unlock()
		return nil
	}
	c.loading = true
	gen := c.generation
	c.mu.Unlock()

	data, err := source(ctx)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("master data load discarded after clear", nil)
		return nil
	}
	if err != nil {
		c.loading = false
		c.mu.Unlock()
		c.logger.Warn("master data load failed", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("%w: %w", errors.NewCacheLoadFailedError(err), err)
	}

	collections := make(map[string]models.Collection, len(Slots))
	for _, slot := range Slots {
		collections[slot] = models.Collection{}
	}
	for name, rows := range data {
		if name == models.CollectionClients {
			continue
		}
		if rows == nil {
			rows = models.Collection{}
		}
		collections[name] = rows
	}
	c.collections = collections
	c.loaded = true
	c.loading = false

	pending := c.drainSubscribers()
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("master data loaded", map[string]interface{}{
		"collections": len(collections),
		"subscribers": len(pending),
	})
	for _, cb := range pending {
		c.notify(cb, snap)
	}
	return nil
}

// LoadData is Load with data already in hand.
func (c *MasterCache) LoadData(ctx context.Context, data map[string]models.Collection) error {
	return c.Load(ctx, StaticSource(data))
}

// Get returns the current snapshot. Check Loaded before trusting it.
func (c *MasterCache) Get() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// OnReady runs cb once the cache is loaded: immediately when it already is,
// otherwise after the next successful Load. The returned function cancels a
// queued registration.
func (c *MasterCache) OnReady(cb func(Snapshot)) func() {
	c.mu.Lock()
	if c.loaded {
		snap := c.snapshotLocked()
		c.mu.Unlock()
		c.notify(cb, snap)
		return func() {}
	}
	c.nextID++
	id := c.nextID
	c.subscribers[id] = cb
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

func (c *MasterCache) IsLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

// Clear drops data, flags and queued subscribers.
func (c *MasterCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.collections = make(map[string]models.Collection)
	c.subscribers = make(map[uint64]func(Snapshot))
	c.loaded = false
	c.loading = false
	c.generation++
}

func (c *MasterCache) snapshotLocked() Snapshot {
	collections := make(map[string]models.Collection, len(c.collections))
	for k, v := range c.collections {
		collections[k] = v
	}
	return Snapshot{Loaded: c.loaded, Collections: collections}
}

// drainSubscribers returns queued callbacks in registration order and
// empties the queue.
func (c *MasterCache) drainSubscribers() []func(Snapshot) {
	ids := make([]uint64, 0, len(c.subscribers))
	for id := range c.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		out = append(out, c.subscribers[id])
	}
	c.subscribers = make(map[uint64]func(Snapshot))
	return out
}

func (c *MasterCache) notify(cb func(Snapshot), snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("ready subscriber panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
		}
	}()
	cb(snap)
}
