package service

import (
	"sync"

	"github.com/joeblew999/plat-broadband/internal/areasummary"
	"github.com/joeblew999/plat-broadband/internal/overlay"
)

// EventKind names a map event.
type EventKind string

const (
	EventSettingsOpened   EventKind = "settings.opened"
	EventSelectionChanged EventKind = "selection.changed"
	EventLayersRemoved    EventKind = "layers.removed"
	EventOpacityChanged   EventKind = "opacity.changed"
	EventSummaryLoaded    EventKind = "summary.loaded"
	EventMapUnmounted     EventKind = "map.unmounted"
)

// Event is something that happened on one map.
type Event struct {
	MapID   string
	Kind    EventKind
	Change  overlay.Change       // engine events
	Summary *areasummary.Summary // summary events
}

// kindFor maps an engine change to the event published for it.
func kindFor(c overlay.ChangeKind) EventKind {
	switch c {
	case overlay.ChangeOpacity:
		return EventOpacityChanged
	case overlay.ChangeRemoved, overlay.ChangeReset:
		return EventLayersRemoved
	default:
		return EventSelectionChanged
	}
}

type subscription struct {
	mapID string
	ch    chan Event
}

// EventBus is a simple fan-out pub/sub for map events.
type EventBus struct {
	mu   sync.RWMutex
	subs map[*subscription]struct{}
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[*subscription]struct{})}
}

// Publish sends an event to matching subscribers (non-blocking).
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if sub.mapID != "" && sub.mapID != e.MapID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			// subscriber too slow, skip
		}
	}
}

// Subscribe returns a buffered channel receiving events for mapID, or for
// every map when mapID is empty. The cancel func unsubscribes and closes the
// channel; it is safe to call more than once.
func (b *EventBus) Subscribe(mapID string) (<-chan Event, func()) {
	sub := &subscription{mapID: mapID, ch: make(chan Event, 16)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
