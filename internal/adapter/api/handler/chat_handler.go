package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"lostpaws/internal/domain/entity"
	"lostpaws/internal/usecase"
	"lostpaws/pkg/errors"
	"lostpaws/pkg/response"
)

type ChatHandler struct {
	registry  *usecase.ChatRegistry
	lifecycle *usecase.ChatLifecycle
	messages  *usecase.ChatMessages
}

func NewChatHandler(registry *usecase.ChatRegistry, lifecycle *usecase.ChatLifecycle, messages *usecase.ChatMessages) *ChatHandler {
	return &ChatHandler{
		registry:  registry,
		lifecycle: lifecycle,
		messages:  messages,
	}
}

type createChatRequest struct {
	PetID   string `json:"pet_id" validate:"required"`
	UserID  string `json:"user_id" validate:"required"`
	OwnerID string `json:"owner_id" validate:"required"`
}

type actorRequest struct {
	ActorID string `json:"actor_id"`
}

type sendMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

// actor resolves who is acting. The body's actor_id is accepted for
// compatibility but must match the authenticated caller unless that caller is
// an admin acting on someone's behalf.
func actor(c echo.Context, bodyActorID string) (string, bool, error) {
	uid, _ := c.Get("uid").(string)
	isAdmin, _ := c.Get("is_admin").(bool)

	if bodyActorID == "" || bodyActorID == uid {
		return uid, isAdmin, nil
	}
	if !isAdmin {
		return "", false, errors.Forbidden("actor_id does not match the authenticated user", nil)
	}
	return bodyActorID, true, nil
}

// CreateChat looks up or creates the chat for a (pet, user, owner) triple.
// 201 on first contact, 200 when the chat already existed.
func (h *ChatHandler) CreateChat(c echo.Context) error {
	var req createChatRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	chat, created, err := h.registry.GetOrCreate(c.Request().Context(), req.PetID, req.UserID, req.OwnerID)
	if err != nil {
		return response.Error(c, err)
	}

	if created {
		return response.Created(c, chat)
	}
	return response.Success(c, chat)
}

// ListChats serves lookups by participant, by chat id, or the unfiltered
// admin listing. A chat_id lookup returns a single-element array.
func (h *ChatHandler) ListChats(c echo.Context) error {
	ctx := c.Request().Context()
	isAdmin, _ := c.Get("is_admin").(bool)

	if chatID := c.QueryParam("chat_id"); chatID != "" {
		view, err := h.registry.GetByID(ctx, chatID)
		if err != nil {
			return response.Error(c, err)
		}
		return response.Success(c, []*entity.ChatView{view})
	}

	if c.QueryParam("admin") == "true" {
		if !isAdmin {
			return response.Error(c, errors.Forbidden("admin listing requires administrator privileges", nil))
		}
		views, err := h.registry.ListForParticipant(ctx, "", true)
		if err != nil {
			return response.Error(c, err)
		}
		return response.Success(c, views)
	}

	participantID := c.QueryParam("user_id")
	if participantID == "" {
		participantID = c.QueryParam("owner_id")
	}
	if participantID == "" {
		return response.Error(c, errors.BadRequest("one of user_id, owner_id or chat_id is required", nil))
	}

	views, err := h.registry.ListForParticipant(ctx, participantID, false)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, views)
}

func (h *ChatHandler) ArchiveChat(c echo.Context) error {
	var req actorRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	actorID, isAdmin, err := actor(c, req.ActorID)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.lifecycle.Archive(c.Request().Context(), c.Param("id"), actorID, isAdmin); err != nil {
		return response.Error(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *ChatHandler) RestoreChat(c echo.Context) error {
	var req actorRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	actorID, isAdmin, err := actor(c, req.ActorID)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.lifecycle.Restore(c.Request().Context(), c.Param("id"), actorID, isAdmin); err != nil {
		return response.Error(c, err)
	}
	return c.NoContent(http.StatusOK)
}

// DeleteChat is irreversible and admin only; callers are expected to confirm
// with the user before invoking it.
func (h *ChatHandler) DeleteChat(c echo.Context) error {
	var req actorRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	actorID, isAdmin, err := actor(c, req.ActorID)
	if err != nil {
		return response.Error(c, err)
	}

	if err := h.lifecycle.Delete(c.Request().Context(), c.Param("id"), actorID, isAdmin); err != nil {
		return response.Error(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *ChatHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}
	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}
	uid, _ := c.Get("uid").(string)

	msg, err := h.messages.Send(c.Request().Context(), c.Param("id"), uid, req.Text)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Created(c, msg)
}

func (h *ChatHandler) GetMessages(c echo.Context) error {
	uid, _ := c.Get("uid").(string)
	isAdmin, _ := c.Get("is_admin").(bool)

	limit := 50
	offset := 0
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := c.QueryParam("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	messages, total, err := h.messages.History(c.Request().Context(), c.Param("id"), uid, isAdmin, limit, offset)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]interface{}{
		"items": messages,
		"total": total,
	})
}

func (h *ChatHandler) MarkRead(c echo.Context) error {
	uid, _ := c.Get("uid").(string)

	if err := h.messages.MarkRead(c.Request().Context(), c.Param("id"), uid); err != nil {
		return response.Error(c, err)
	}
	return c.NoContent(http.StatusOK)
}

func (h *ChatHandler) UnreadCount(c echo.Context) error {
	role := entity.SenderType(c.QueryParam("viewer_role"))

	count, err := h.messages.UnreadCount(c.Request().Context(), c.Param("id"), role)
	if err != nil {
		return response.Error(c, err)
	}
	return response.Success(c, map[string]int{"count": count})
}
