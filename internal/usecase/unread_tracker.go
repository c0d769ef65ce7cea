package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"lostpaws/internal/domain/entity"
	"lostpaws/internal/domain/repository"
	"lostpaws/internal/infrastructure/notify"
)

// UnreadDelta is pushed to a viewer whenever their unread count for a chat
// changes.
type UnreadDelta struct {
	ChatID     string            `json:"chat_id"`
	ViewerID   string            `json:"viewer_id"`
	ViewerRole entity.SenderType `json:"viewer_role"`
	Count      int               `json:"count"`
}

// UnreadTracker maintains per-(chat, viewer-role) unread counts. The cache is
// a rebuildable optimization; the store count is always the source of truth
// and any miss recomputes from it.
type UnreadTracker struct {
	chats    repository.ChatRepository
	notifier notify.Publisher
	bus      *notify.Bus

	mu    sync.Mutex
	cache map[string]map[entity.SenderType]int
}

func NewUnreadTracker(chats repository.ChatRepository, notifier notify.Publisher, bus *notify.Bus) *UnreadTracker {
	return &UnreadTracker{
		chats:    chats,
		notifier: notifier,
		bus:      bus,
		cache:    make(map[string]map[entity.SenderType]int),
	}
}

// Increment is called once per successfully persisted message and bumps the
// count for the opposite role's viewer.
func (t *UnreadTracker) Increment(ctx context.Context, chat *entity.Chat, sender entity.SenderType) {
	viewerRole := sender.Opposite()

	t.mu.Lock()
	counts, ok := t.cache[chat.ID]
	if !ok {
		counts = make(map[entity.SenderType]int)
		t.cache[chat.ID] = counts
	}
	count, known := counts[viewerRole]
	if known {
		count++
		counts[viewerRole] = count
	}
	t.mu.Unlock()

	if !known {
		// Cold cache: the persisted message is already included in the
		// authoritative count.
		fresh, err := t.chats.CountUnread(ctx, chat.ID, sender)
		if err != nil {
			return
		}
		count = fresh
		t.mu.Lock()
		// Forget may have dropped the inner map while the lock was released
		// for the store call.
		if t.cache[chat.ID] == nil {
			t.cache[chat.ID] = make(map[entity.SenderType]int)
		}
		t.cache[chat.ID][viewerRole] = count
		t.mu.Unlock()
	}

	t.publishDelta(chat, viewerRole, count)
}

// MarkRead stamps read_at on all unread counterpart messages and resets the
// viewer's cached count.
func (t *UnreadTracker) MarkRead(ctx context.Context, chat *entity.Chat, viewerRole entity.SenderType) error {
	if _, err := t.chats.MarkRead(ctx, chat.ID, viewerRole.Opposite(), time.Now().UTC()); err != nil {
		return err
	}

	t.mu.Lock()
	if counts, ok := t.cache[chat.ID]; ok {
		counts[viewerRole] = 0
	} else {
		t.cache[chat.ID] = map[entity.SenderType]int{viewerRole: 0}
	}
	t.mu.Unlock()

	t.publishDelta(chat, viewerRole, 0)
	return nil
}

// CountFor returns the viewer's unread count, recomputing from the store on a
// cache miss.
func (t *UnreadTracker) CountFor(ctx context.Context, chatID string, viewerRole entity.SenderType) (int, error) {
	t.mu.Lock()
	if counts, ok := t.cache[chatID]; ok {
		if count, known := counts[viewerRole]; known {
			t.mu.Unlock()
			return count, nil
		}
	}
	t.mu.Unlock()

	count, err := t.chats.CountUnread(ctx, chatID, viewerRole.Opposite())
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	if t.cache[chatID] == nil {
		t.cache[chatID] = make(map[entity.SenderType]int)
	}
	t.cache[chatID][viewerRole] = count
	t.mu.Unlock()
	return count, nil
}

// Forget drops cached counts for a deleted chat.
func (t *UnreadTracker) Forget(chatID string) {
	t.mu.Lock()
	delete(t.cache, chatID)
	t.mu.Unlock()
}

// Subscribe returns a live UnreadDelta feed for the viewer and a cancel func
// the caller must invoke on disconnect.
func (t *UnreadTracker) Subscribe(viewerID string) (<-chan UnreadDelta, func()) {
	events, unsubscribe := t.bus.Subscribe(viewerID)
	deltas := make(chan UnreadDelta, 16)

	go func() {
		defer close(deltas)
		for ev := range events {
			if ev.Type != notify.EventUnreadDelta {
				continue
			}
			delta, ok := decodeDelta(ev.Payload)
			if !ok {
				continue
			}
			select {
			case deltas <- delta:
			default:
			}
		}
	}()

	return deltas, unsubscribe
}

// decodeDelta handles both in-process payloads and ones that crossed the
// Redis bridge as raw JSON maps.
func decodeDelta(payload interface{}) (UnreadDelta, bool) {
	if delta, ok := payload.(UnreadDelta); ok {
		return delta, true
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return UnreadDelta{}, false
	}
	var delta UnreadDelta
	if err := json.Unmarshal(raw, &delta); err != nil || delta.ChatID == "" {
		return UnreadDelta{}, false
	}
	return delta, true
}

func (t *UnreadTracker) publishDelta(chat *entity.Chat, viewerRole entity.SenderType, count int) {
	viewerID := chat.UserID
	if viewerRole == entity.SenderOwner {
		viewerID = chat.OwnerID
	}
	t.notifier.Publish(notify.Event{
		Type:   notify.EventUnreadDelta,
		ChatID: chat.ID,
		Payload: UnreadDelta{
			ChatID:     chat.ID,
			ViewerID:   viewerID,
			ViewerRole: viewerRole,
			Count:      count,
		},
		Viewers: []string{viewerID},
	})
}
