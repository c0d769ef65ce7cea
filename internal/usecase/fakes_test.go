package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lostpaws/internal/domain/entity"
	"lostpaws/pkg/errors"
)

// fakeChatStore is an in-memory ChatRepository honoring the same transactional
// semantics as the Postgres adapter: cap check and insert under one lock,
// status preconditions, cascade delete, per-chat message sequences.
type fakeChatStore struct {
	mu       sync.Mutex
	chats    map[string]*entity.Chat
	messages map[string][]*entity.Message
	nextChat int
	nextMsg  int
	now      time.Time
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		chats:    make(map[string]*entity.Chat),
		messages: make(map[string][]*entity.Message),
		now:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *fakeChatStore) tick() time.Time {
	s.now = s.now.Add(time.Second)
	return s.now
}

func cloneChat(c *entity.Chat) *entity.Chat {
	copied := *c
	if c.ArchivedAt != nil {
		at := *c.ArchivedAt
		copied.ArchivedAt = &at
	}
	return &copied
}

func (s *fakeChatStore) GetOrCreate(ctx context.Context, petID, userID, ownerID string, activeLimit int) (*entity.Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chat := range s.chats {
		if chat.PetID == petID && chat.UserID == userID && chat.OwnerID == ownerID && chat.Status == entity.ChatStatusActive {
			return cloneChat(chat), false, nil
		}
	}

	active := 0
	for _, chat := range s.chats {
		if chat.Status == entity.ChatStatusActive && (chat.UserID == userID || chat.OwnerID == userID) {
			active++
		}
	}
	if active >= activeLimit {
		return nil, false, errors.ChatLimitExceeded(activeLimit)
	}

	s.nextChat++
	now := s.tick()
	chat := &entity.Chat{
		ID:        fmt.Sprintf("chat-%d", s.nextChat),
		PetID:     petID,
		UserID:    userID,
		OwnerID:   ownerID,
		Status:    entity.ChatStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.chats[chat.ID] = chat
	return cloneChat(chat), true, nil
}

func (s *fakeChatStore) GetByID(ctx context.Context, id string) (*entity.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[id]
	if !ok {
		return nil, errors.NotFound("chat", nil)
	}
	return cloneChat(chat), nil
}

func (s *fakeChatStore) ListByParticipant(ctx context.Context, userID string) ([]*entity.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*entity.Chat
	for _, chat := range s.chats {
		if chat.Status == entity.ChatStatusActive && (chat.UserID == userID || chat.OwnerID == userID) {
			result = append(result, cloneChat(chat))
		}
	}
	sortByUpdatedDesc(result)
	return result, nil
}

func (s *fakeChatStore) ListAll(ctx context.Context) ([]*entity.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*entity.Chat
	for _, chat := range s.chats {
		result = append(result, cloneChat(chat))
	}
	sortByUpdatedDesc(result)
	return result, nil
}

func sortByUpdatedDesc(chats []*entity.Chat) {
	sort.Slice(chats, func(i, j int) bool {
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
}

func (s *fakeChatStore) UpdateStatus(ctx context.Context, id string, from, to entity.ChatStatus, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[id]
	if !ok {
		return errors.NotFound("chat", nil)
	}
	if chat.Status != from {
		return errors.InvalidTransition("chat is " + string(chat.Status) + ", expected " + string(from))
	}

	now := s.tick()
	chat.Status = to
	chat.UpdatedAt = now
	if to == entity.ChatStatusArchived {
		at := now
		chat.ArchivedAt = &at
		chat.ArchivedBy = actorID
	} else {
		chat.ArchivedAt = nil
		chat.ArchivedBy = ""
	}
	return nil
}

func (s *fakeChatStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[id]; !ok {
		return errors.NotFound("chat", nil)
	}
	delete(s.chats, id)
	delete(s.messages, id)
	return nil
}

func (s *fakeChatStore) CreateMessage(ctx context.Context, msg *entity.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[msg.ChatID]
	if !ok {
		return errors.NotFound("chat", nil)
	}
	if chat.Status != entity.ChatStatusActive {
		return errors.BadRequest("chat is archived", nil)
	}

	s.nextMsg++
	msg.ID = fmt.Sprintf("msg-%d", s.nextMsg)
	msg.Seq = int64(len(s.messages[msg.ChatID]) + 1)
	msg.CreatedAt = s.tick()
	stored := *msg
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], &stored)
	chat.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *fakeChatStore) ListMessages(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[chatID]
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	var result []*entity.Message
	for _, m := range all[offset:end] {
		copied := *m
		result = append(result, &copied)
	}
	return result, total, nil
}

func (s *fakeChatStore) LatestMessages(ctx context.Context, chatIDs []string) (map[string]*entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]*entity.Message)
	for _, id := range chatIDs {
		if msgs := s.messages[id]; len(msgs) > 0 {
			copied := *msgs[len(msgs)-1]
			result[id] = &copied
		}
	}
	return result, nil
}

func (s *fakeChatStore) CountUnread(ctx context.Context, chatID string, sender entity.SenderType) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, m := range s.messages[chatID] {
		if m.SenderType == sender && m.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *fakeChatStore) MarkRead(ctx context.Context, chatID string, sender entity.SenderType, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for _, m := range s.messages[chatID] {
		if m.SenderType == sender && m.ReadAt == nil {
			stamp := at
			m.ReadAt = &stamp
			affected++
		}
	}
	return affected, nil
}

// chatCount reports stored rows for idempotency assertions.
func (s *fakeChatStore) chatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

func (s *fakeChatStore) messageCount(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages[chatID])
}

// fakePetStore serves PetSummary lookups from a fixed map.
type fakePetStore struct {
	pets map[string]*entity.PetSummary
}

func newFakePetStore(pets ...*entity.PetSummary) *fakePetStore {
	store := &fakePetStore{pets: make(map[string]*entity.PetSummary)}
	for _, pet := range pets {
		store.pets[pet.ID] = pet
	}
	return store
}

func (s *fakePetStore) GetByID(ctx context.Context, id string) (*entity.PetSummary, error) {
	pet, ok := s.pets[id]
	if !ok {
		return nil, errors.NotFound("pet", nil)
	}
	return pet, nil
}

func (s *fakePetStore) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.PetSummary, error) {
	result := make(map[string]*entity.PetSummary)
	for _, id := range ids {
		if pet, ok := s.pets[id]; ok {
			result[id] = pet
		}
	}
	return result, nil
}

// fakeIdentity resolves emails from a map, "unknown" otherwise.
type fakeIdentity struct {
	emails map[string]string
}

func (f *fakeIdentity) ResolveEmails(ctx context.Context, ids []string) map[string]string {
	result := make(map[string]string, len(ids))
	for _, id := range ids {
		if email, ok := f.emails[id]; ok {
			result[id] = email
		} else {
			result[id] = "unknown"
		}
	}
	return result
}
