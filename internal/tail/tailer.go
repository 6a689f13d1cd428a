// Package tail turns the append-only run event log into a live feed.
// There is no change notification from the store; each subscriber gets
// a snapshot, then a cursor-based poll loop relays new events as they
// appear. Subscribers are fully independent: each holds its own cursor
// and a slow one cannot stall another.
package tail

import (
	"context"
	"time"

	"github.com/flowopsai/orchestrator/internal/domain"
)

// Store is the slice of the run store the tailer reads from
type Store interface {
	ListEvents(runID string) ([]*domain.RunEvent, error)
	ListEventsSince(runID string, cursor int64) ([]*domain.RunEvent, error)
}

// Message types on the subscriber feed
const (
	TypeSnapshot  = "snapshot"
	TypeEvent     = "event"
	TypeHeartbeat = "heartbeat"
)

// Event is the wire form of one run event
type Event struct {
	ID     int64  `json:"id,omitempty"`
	TS     string `json:"ts,omitempty"`
	Level  string `json:"level,omitempty"`
	Title  string `json:"title,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Message is one feed message. A snapshot carries Events; an
// incremental message carries the flattened event fields.
type Message struct {
	Type   string  `json:"type"`
	Events []Event `json:"events,omitempty"`
	Event
}

// Options configures a Tailer. Ticks, when non-nil, replaces the
// internal ticker so tests can drive the poll loop deterministically.
type Options struct {
	Interval  time.Duration
	Heartbeat bool
	Ticks     <-chan time.Time
}

// DefaultInterval matches the poll cadence observers expect
const DefaultInterval = 2 * time.Second

// Tailer relays a run's event log to subscribers
type Tailer struct {
	store Store
	opts  Options
}

// New creates a Tailer over the given store
func New(store Store, opts Options) *Tailer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Tailer{store: store, opts: opts}
}

func toWire(ev *domain.RunEvent) Event {
	return Event{
		ID:     ev.ID,
		TS:     ev.TS.UTC().Format(time.RFC3339),
		Level:  string(ev.Level),
		Title:  ev.Title,
		Detail: ev.Detail,
	}
}

// Tail streams one run's feed through send until ctx is cancelled or
// send fails. The first message is a snapshot of the full history; the
// cursor starts at the highest event ID it contains, so no event is
// relayed twice and none is skipped. A run with no events yet is legal
// and yields an empty snapshot.
//
// No lock is held across the poll interval, and cancellation releases
// the ticker; nothing keeps polling once the subscriber is gone.
func (t *Tailer) Tail(ctx context.Context, runID string, send func(Message) error) error {
	history, err := t.store.ListEvents(runID)
	if err != nil {
		return err
	}

	var cursor int64
	snapshot := Message{Type: TypeSnapshot, Events: make([]Event, 0, len(history))}
	for _, ev := range history {
		snapshot.Events = append(snapshot.Events, toWire(ev))
		cursor = ev.ID
	}
	if err := send(snapshot); err != nil {
		return err
	}

	ticks := t.opts.Ticks
	if ticks == nil {
		ticker := time.NewTicker(t.opts.Interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
		}

		batch, err := t.store.ListEventsSince(runID, cursor)
		if err != nil {
			return err
		}

		if len(batch) == 0 {
			if t.opts.Heartbeat {
				if err := send(Message{Type: TypeHeartbeat}); err != nil {
					return err
				}
			}
			continue
		}

		for _, ev := range batch {
			if err := send(Message{Type: TypeEvent, Event: toWire(ev)}); err != nil {
				return err
			}
			cursor = ev.ID
		}
	}
}
