// Package notify tells record views to re-read local data after a sync run
// or an external edit changed it.
package notify

import (
	"fmt"
	"sync"

	"survey-sync/internal/common/logger"
)

// EventRecordsChanged carries no payload; subscribers re-read the local
// record collection.
const EventRecordsChanged = "clientesActualizados"

// Observer is what the sync engine depends on.
type Observer interface {
	NotifyChanged()
}

// Observers fans one notification out to several observers.
type Observers []Observer

func (o Observers) NotifyChanged() {
	for _, obs := range o {
		if obs != nil {
			obs.NotifyChanged()
		}
	}
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func()

func (f ObserverFunc) NotifyChanged() { f() }

type Handler func(payload interface{})

type HandlerID uint64

type registration struct {
	id      HandlerID
	handler Handler
}

// Bus is an in-process publish/subscribe hub. Handlers run synchronously in
// registration order; a panicking handler is logged and skipped.
type Bus struct {
	mu       sync.RWMutex
	nextID   HandlerID
	handlers map[string][]registration
	logger   logger.Logger
}

func NewBus(log logger.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]registration),
		logger:   log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

func (b *Bus) On(event string, h Handler) HandlerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[event] = append(b.handlers[event], registration{id: b.nextID, handler: h})
	return b.nextID
}

// Off removes one registration. Unknown ids are ignored.
func (b *Bus) Off(event string, id HandlerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	regs := b.handlers[event]
	for i, r := range regs {
		if r.id == id {
			b.handlers[event] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(b.handlers[event]) == 0 {
		delete(b.handlers, event)
	}
}

// Emit delivers payload to every handler registered for event and returns
// how many ran without panicking.
func (b *Bus) Emit(event string, payload interface{}) int {
	b.mu.RLock()
	regs := append([]registration(nil), b.handlers[event]...)
	b.mu.RUnlock()

	delivered := 0
	for _, r := range regs {
		if b.call(event, r, payload) {
			delivered++
		}
	}
	return delivered
}

func (b *Bus) call(event string, r registration, payload interface{}) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Error("event handler panicked", map[string]interface{}{
				"event":     event,
				"handlerId": uint64(r.id),
				"panic":     fmt.Sprint(rec),
			})
			ok = false
		}
	}()
	r.handler(payload)
	return true
}

// NotifyChanged emits EventRecordsChanged.
func (b *Bus) NotifyChanged() {
	b.Emit(EventRecordsChanged, nil)
}
