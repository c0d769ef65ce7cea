package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lostpaws/internal/adapter/api"
	"lostpaws/internal/domain/entity"
	"lostpaws/internal/infrastructure/notify"
	"lostpaws/internal/usecase"
	"lostpaws/pkg/errors"
	"lostpaws/pkg/response"
)

// memChatStore is a minimal in-memory store for wiring the handler stack in
// tests.
type memChatStore struct {
	mu       sync.Mutex
	chats    map[string]*entity.Chat
	messages map[string][]*entity.Message
}

func newMemChatStore() *memChatStore {
	return &memChatStore{
		chats:    make(map[string]*entity.Chat),
		messages: make(map[string][]*entity.Message),
	}
}

func (s *memChatStore) GetOrCreate(ctx context.Context, petID, userID, ownerID string, activeLimit int) (*entity.Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := 0
	for _, chat := range s.chats {
		if chat.Status != entity.ChatStatusActive {
			continue
		}
		if chat.PetID == petID && chat.UserID == userID && chat.OwnerID == ownerID {
			copied := *chat
			return &copied, false, nil
		}
		if chat.UserID == userID || chat.OwnerID == userID {
			active++
		}
	}
	if active >= activeLimit {
		return nil, false, errors.ChatLimitExceeded(activeLimit)
	}

	now := time.Now().UTC()
	chat := &entity.Chat{
		ID:        uuid.New().String(),
		PetID:     petID,
		UserID:    userID,
		OwnerID:   ownerID,
		Status:    entity.ChatStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.chats[chat.ID] = chat
	copied := *chat
	return &copied, true, nil
}

func (s *memChatStore) GetByID(ctx context.Context, id string) (*entity.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[id]
	if !ok {
		return nil, errors.NotFound("chat", nil)
	}
	copied := *chat
	return &copied, nil
}

func (s *memChatStore) ListByParticipant(ctx context.Context, userID string) ([]*entity.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*entity.Chat
	for _, chat := range s.chats {
		if chat.Status == entity.ChatStatusActive && chat.HasParticipant(userID) {
			copied := *chat
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

func (s *memChatStore) ListAll(ctx context.Context) ([]*entity.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*entity.Chat
	for _, chat := range s.chats {
		copied := *chat
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.After(result[j].UpdatedAt) })
	return result, nil
}

func (s *memChatStore) UpdateStatus(ctx context.Context, id string, from, to entity.ChatStatus, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[id]
	if !ok {
		return errors.NotFound("chat", nil)
	}
	if chat.Status != from {
		return errors.InvalidTransition("chat is " + string(chat.Status) + ", expected " + string(from))
	}
	now := time.Now().UTC()
	chat.Status = to
	chat.UpdatedAt = now
	if to == entity.ChatStatusArchived {
		chat.ArchivedAt = &now
		chat.ArchivedBy = actorID
	} else {
		chat.ArchivedAt = nil
		chat.ArchivedBy = ""
	}
	return nil
}

func (s *memChatStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[id]; !ok {
		return errors.NotFound("chat", nil)
	}
	delete(s.chats, id)
	delete(s.messages, id)
	return nil
}

func (s *memChatStore) CreateMessage(ctx context.Context, msg *entity.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[msg.ChatID]
	if !ok {
		return errors.NotFound("chat", nil)
	}
	if chat.Status != entity.ChatStatusActive {
		return errors.BadRequest("chat is archived", nil)
	}
	msg.ID = uuid.New().String()
	msg.Seq = int64(len(s.messages[msg.ChatID]) + 1)
	msg.CreatedAt = time.Now().UTC()
	stored := *msg
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], &stored)
	chat.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *memChatStore) ListMessages(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[chatID]
	total := int64(len(msgs))
	if offset >= len(msgs) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	var result []*entity.Message
	for _, m := range msgs[offset:end] {
		copied := *m
		result = append(result, &copied)
	}
	return result, total, nil
}

func (s *memChatStore) LatestMessages(ctx context.Context, chatIDs []string) (map[string]*entity.Message, error) {
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

func (s *memChatStore) CountUnread(ctx context.Context, chatID string, sender entity.SenderType) (int, error) {
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

func (s *memChatStore) MarkRead(ctx context.Context, chatID string, sender entity.SenderType, at time.Time) (int64, error) {
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

type memPetStore struct {
	pets map[string]*entity.PetSummary
}

func (s *memPetStore) GetByID(ctx context.Context, id string) (*entity.PetSummary, error) {
	pet, ok := s.pets[id]
	if !ok {
		return nil, errors.NotFound("pet", nil)
	}
	return pet, nil
}

func (s *memPetStore) GetByIDs(ctx context.Context, ids []string) (map[string]*entity.PetSummary, error) {
	result := make(map[string]*entity.PetSummary)
	for _, id := range ids {
		if pet, ok := s.pets[id]; ok {
			result[id] = pet
		}
	}
	return result, nil
}

type memIdentity struct{}

func (memIdentity) ResolveEmails(ctx context.Context, ids []string) map[string]string {
	result := make(map[string]string, len(ids))
	for _, id := range ids {
		result[id] = id + "@example.com"
	}
	return result
}

type testEnv struct {
	e     *echo.Echo
	h     *ChatHandler
	store *memChatStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := newMemChatStore()
	pets := &memPetStore{pets: map[string]*entity.PetSummary{
		"p1": {ID: "p1", Name: "Rex", Breed: "Beagle", Type: "lost", Status: entity.PetStatusActive},
	}}
	bus := notify.NewBus()
	tracker := usecase.NewUnreadTracker(store, bus, bus)
	registry := usecase.NewChatRegistry(store, pets, memIdentity{}, 10)
	lifecycle := usecase.NewChatLifecycle(store, tracker, bus)
	messages := usecase.NewChatMessages(store, tracker, bus)

	e := echo.New()
	e.Validator = api.NewValidator()

	return &testEnv{
		e:     e,
		h:     NewChatHandler(registry, lifecycle, messages),
		store: store,
	}
}

// do runs one handler as the given authenticated caller.
func (env *testEnv) do(method, path, body, uid string, isAdmin bool, fn echo.HandlerFunc, pathParams ...string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := env.e.NewContext(req, rec)
	c.Set("uid", uid)
	c.Set("is_admin", isAdmin)
	for i := 0; i+1 < len(pathParams); i += 2 {
		c.SetParamNames(pathParams[i])
		c.SetParamValues(pathParams[i+1])
	}
	_ = fn(c)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func (env *testEnv) createChat(t *testing.T) string {
	t.Helper()
	rec := env.do(http.MethodPost, "/v1/chats", `{"pet_id":"p1","user_id":"u1","owner_id":"o1"}`, "u1", false, env.h.CreateChat)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeEnvelope(t, rec)
	chat := resp.Data.(map[string]interface{})
	return chat["id"].(string)
}

func TestCreateChatStatusCodes(t *testing.T) {
	env := newTestEnv(t)
	body := `{"pet_id":"p1","user_id":"u1","owner_id":"o1"}`

	rec := env.do(http.MethodPost, "/v1/chats", body, "u1", false, env.h.CreateChat)
	assert.Equal(t, http.StatusCreated, rec.Code)

	// Same triple again: the existing chat comes back with 200.
	rec = env.do(http.MethodPost, "/v1/chats", body, "u1", false, env.h.CreateChat)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, len(env.store.chats))
}

func TestCreateChatValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/chats", `{"pet_id":"p1","user_id":"u1"}`, "u1", false, env.h.CreateChat)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestCreateChatUnknownPet(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/chats", `{"pet_id":"ghost","user_id":"u1","owner_id":"o1"}`, "u1", false, env.h.CreateChat)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.CodeNotFound, resp.Error.Code)
}

func TestListChatsRequiresAFilter(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/v1/chats", "", "u1", false, env.h.ListChats)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListChatsAdminFlagNeedsAdmin(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/v1/chats?admin=true", "", "u1", false, env.h.ListChats)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodGet, "/v1/chats?admin=true", "", "root", true, env.h.ListChats)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListChatsByParticipant(t *testing.T) {
	env := newTestEnv(t)
	env.createChat(t)

	rec := env.do(http.MethodGet, "/v1/chats?user_id=u1", "", "u1", false, env.h.ListChats)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	views := resp.Data.([]interface{})
	require.Len(t, views, 1)

	view := views[0].(map[string]interface{})
	pet := view["pet"].(map[string]interface{})
	assert.Equal(t, "Rex", pet["name"])
	assert.Equal(t, "u1@example.com", view["user_email"])
}

func TestArchiveActorMismatch(t *testing.T) {
	env := newTestEnv(t)
	chatID := env.createChat(t)

	// Claiming to act as the owner while authenticated as the user.
	rec := env.do(http.MethodPost, "/v1/chats/"+chatID+"/archive", `{"actor_id":"o1"}`, "u1", false, env.h.ArchiveChat, "id", chatID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestArchiveRestoreRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	chatID := env.createChat(t)

	rec := env.do(http.MethodPost, "/v1/chats/"+chatID+"/archive", `{"actor_id":"o1"}`, "o1", false, env.h.ArchiveChat, "id", chatID)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A second archive violates the transition precondition.
	rec = env.do(http.MethodPost, "/v1/chats/"+chatID+"/archive", `{"actor_id":"o1"}`, "o1", false, env.h.ArchiveChat, "id", chatID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.CodeInvalidTransition, resp.Error.Code)

	rec = env.do(http.MethodPost, "/v1/chats/"+chatID+"/restore", `{"actor_id":"o1"}`, "o1", false, env.h.RestoreChat, "id", chatID)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteChatAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	chatID := env.createChat(t)

	rec := env.do(http.MethodDelete, "/v1/chats/"+chatID, `{"actor_id":"o1"}`, "o1", false, env.h.DeleteChat, "id", chatID)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(http.MethodDelete, "/v1/chats/"+chatID, `{"actor_id":"root"}`, "root", true, env.h.DeleteChat, "id", chatID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/v1/chats?chat_id="+chatID, "", "root", true, env.h.ListChats)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendAndListMessages(t *testing.T) {
	env := newTestEnv(t)
	chatID := env.createChat(t)

	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"text":"message %d"}`, i)
		rec := env.do(http.MethodPost, "/v1/chats/"+chatID+"/messages", body, "o1", false, env.h.SendMessage, "id", chatID)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := env.do(http.MethodGet, "/v1/chats/"+chatID+"/messages?limit=2", "", "u1", false, env.h.GetMessages, "id", chatID)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(3), data["total"])
	assert.Len(t, data["items"].([]interface{}), 2)
}

func TestSendMessageValidation(t *testing.T) {
	env := newTestEnv(t)
	chatID := env.createChat(t)

	rec := env.do(http.MethodPost, "/v1/chats/"+chatID+"/messages", `{"text":""}`, "u1", false, env.h.SendMessage, "id", chatID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendMessageOutsiderForbidden(t *testing.T) {
	env := newTestEnv(t)
	chatID := env.createChat(t)

	rec := env.do(http.MethodPost, "/v1/chats/"+chatID+"/messages", `{"text":"hi"}`, "stranger", false, env.h.SendMessage, "id", chatID)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUnreadCountEndpoint(t *testing.T) {
	env := newTestEnv(t)
	chatID := env.createChat(t)

	rec := env.do(http.MethodPost, "/v1/chats/"+chatID+"/messages", `{"text":"any sightings?"}`, "o1", false, env.h.SendMessage, "id", chatID)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodGet, "/v1/chats/"+chatID+"/unread?viewer_role=user", "", "u1", false, env.h.UnreadCount, "id", chatID)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])

	// Unknown role is rejected before touching the tracker.
	rec = env.do(http.MethodGet, "/v1/chats/"+chatID+"/unread?viewer_role=cat", "", "u1", false, env.h.UnreadCount, "id", chatID)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkReadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	chatID := env.createChat(t)

	rec := env.do(http.MethodPost, "/v1/chats/"+chatID+"/messages", `{"text":"hello"}`, "o1", false, env.h.SendMessage, "id", chatID)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(http.MethodPut, "/v1/chats/"+chatID+"/read", "", "u1", false, env.h.MarkRead, "id", chatID)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/v1/chats/"+chatID+"/unread?viewer_role=user", "", "u1", false, env.h.UnreadCount, "id", chatID)
	resp := decodeEnvelope(t, rec)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(0), data["count"])
}
