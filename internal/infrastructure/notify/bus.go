package notify

import (
	"sync"

	"lostpaws/pkg/logger"
)

type EventType string

const (
	EventNewMessage       EventType = "new_message"
	EventChatStateChanged EventType = "chat_state_changed"
	EventUnreadDelta      EventType = "unread_delta"
)

// Event is what subscribed viewers receive. Viewers carries the target viewer
// ids and is not part of the wire payload.
type Event struct {
	Type    EventType   `json:"type"`
	ChatID  string      `json:"chat_id"`
	Deleted bool        `json:"deleted,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Origin  string      `json:"origin,omitempty"`

	Viewers []string `json:"-"`
}

// Publisher is the write-path facing side of the bus. Publish must never
// block and never fail the caller; notification is a convenience layer.
type Publisher interface {
	Publish(ev Event)
}

// Dropped unread events per subscriber before the oldest gets evicted.
const subscriberBuffer = 16

type subscriber struct {
	viewerID string
	ch       chan Event
}

// Bus fans events out to per-viewer subscribers. Each subscriber owns a
// bounded buffer; when it fills the oldest event is dropped so a slow reader
// never blocks the publisher.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[int]*subscriber
	nextID int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]*subscriber)}
}

// Subscribe registers a viewer and returns its event stream along with an
// unsubscribe func. Callers must unsubscribe on disconnect or the buffer
// leaks.
func (b *Bus) Subscribe(viewerID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	sub := &subscriber{viewerID: viewerID, ch: make(chan Event, subscriberBuffer)}
	if b.subs[viewerID] == nil {
		b.subs[viewerID] = make(map[int]*subscriber)
	}
	b.subs[viewerID][id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if viewerSubs, ok := b.subs[viewerID]; ok {
			if s, ok := viewerSubs[id]; ok {
				delete(viewerSubs, id)
				close(s.ch)
			}
			if len(viewerSubs) == 0 {
				delete(b.subs, viewerID)
			}
		}
	}
	return sub.ch, unsubscribe
}

// Publish delivers ev to every subscriber of every viewer in ev.Viewers.
// Best effort: full buffers drop their oldest event and the loss is logged.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, viewerID := range ev.Viewers {
		for _, sub := range b.subs[viewerID] {
			select {
			case sub.ch <- ev:
			default:
				select {
				case dropped := <-sub.ch:
					logger.Warn("notify: dropped %s event for slow viewer %s", dropped.Type, viewerID)
				default:
				}
				select {
				case sub.ch <- ev:
				default:
				}
			}
		}
	}
}

// SubscriberCount is used by tests and the health surface.
func (b *Bus) SubscriberCount(viewerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[viewerID])
}
