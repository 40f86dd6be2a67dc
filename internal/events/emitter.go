// Package events delivers ledger events to downstream sinks after the
// operation that produced them has committed.
package events

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/observability"
	"chainproof-ledger/internal/storage"
)

// Emitter broadcasts committed events to downstream subscribers.
// Emit must not fail the operation that produced the event.
type Emitter interface {
	Emit(ctx context.Context, evt *domain.Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(context.Context, *domain.Event) {}

// Multi fans events out to several emitters in order.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(ctx context.Context, evt *domain.Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, evt)
		}
	}
}

// LogEmitter writes each event as a structured log line.
type LogEmitter struct {
	log *logrus.Entry
}

// NewLogEmitter returns an emitter logging at info level through log.
func NewLogEmitter(log *logrus.Entry) *LogEmitter {
	return &LogEmitter{log: log}
}

// Emit implements the Emitter interface.
func (l *LogEmitter) Emit(_ context.Context, evt *domain.Event) {
	l.log.WithFields(logrus.Fields{
		"event":     evt.Name(),
		"event_id":  evt.ID,
		"source":    evt.Source,
		"subject":   evt.Payload.EventSubject().String(),
		"timestamp": evt.Timestamp,
	}).Info("event emitted")
}

// StoreEmitter appends events to an event store. Redelivered events
// (same ID) are ignored; other failures are logged and counted.
type StoreEmitter struct {
	name  string
	store storage.EventStore
	log   *logrus.Entry
}

// NewStoreEmitter returns an emitter writing to store. name labels metrics.
func NewStoreEmitter(name string, store storage.EventStore, log *logrus.Entry) *StoreEmitter {
	return &StoreEmitter{name: name, store: store, log: log}
}

// Emit implements the Emitter interface.
func (s *StoreEmitter) Emit(ctx context.Context, evt *domain.Event) {
	rec, err := evt.Record()
	if err == nil {
		err = s.store.Append(ctx, []*domain.EventRecord{rec})
	}
	if err == nil || errors.Is(err, storage.ErrDuplicateKey) {
		return
	}
	observability.RecordEventSinkError(s.name)
	s.log.WithError(err).WithFields(logrus.Fields{
		"sink":     s.name,
		"event":    evt.Name(),
		"event_id": evt.ID,
	}).Error("append event")
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []*domain.Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(_ context.Context, evt *domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

// Events returns the recorded events in emission order.
func (r *Recorder) Events() []*domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Event(nil), r.events...)
}

// Names returns the names of the recorded events in emission order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name()
	}
	return names
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
