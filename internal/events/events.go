// Package events defines the envelope published when transactions or the
// categorization rules change, and the transport-neutral ports for it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TransactionCreated       Type = "transaction.created"
	TransactionRecategorized Type = "transaction.recategorized"
	TaxonomyUpdated          Type = "taxonomy.updated"
)

// Event is deliberately small: consumers reload the record from storage.
type Event struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	Category      string    `json:"category,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// New returns an event of the given type with a fresh id and timestamp.
func New(t Type) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

func ForTransaction(t Type, id int64, category string) Event {
	e := New(t)
	e.TransactionID = id
	e.Category = category
	return e
}

// Key is the partitioning key: events about one transaction stay ordered.
func (e Event) Key() string {
	if e.TransactionID != 0 {
		return fmt.Sprintf("tx-%d", e.TransactionID)
	}
	return string(e.Type)
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes an event and rejects envelopes without a type.
func Unmarshal(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return e, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Handler processes one event. A non-nil error asks the transport to
// redeliver it.
type Handler func(ctx context.Context, e Event) error

type Consumer interface {
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// NopPublisher discards events. Used when EVENTS_BACKEND=none.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Recorder keeps published events in memory. Used in tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func (r *Recorder) Close() error { return nil }
