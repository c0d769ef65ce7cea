package router

import (
	"github.com/labstack/echo/v4"

	"lostpaws/internal/adapter/api/handler"
	"lostpaws/internal/adapter/api/middleware"
	"lostpaws/internal/infrastructure/ratelimit"
)

// SetupChatRouter wires the chat lifecycle and message endpoints. Everything
// requires authentication; admin capability is resolved by the middleware and
// the user-driven write paths are rate limited per caller.
func SetupChatRouter(e *echo.Echo, chatHandler *handler.ChatHandler, authMiddleware *middleware.AuthMiddleware, rateLimit *middleware.RateLimitMiddleware) {
	chatGroup := e.Group("/v1/chats")
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.POST("", chatHandler.CreateChat, rateLimit.Limit(ratelimit.ActionCreateChat))
	chatGroup.GET("", chatHandler.ListChats)
	chatGroup.POST("/:id/archive", chatHandler.ArchiveChat)
	chatGroup.POST("/:id/restore", chatHandler.RestoreChat)
	chatGroup.DELETE("/:id", chatHandler.DeleteChat)

	chatGroup.POST("/:id/messages", chatHandler.SendMessage, rateLimit.Limit(ratelimit.ActionSendMessage))
	chatGroup.GET("/:id/messages", chatHandler.GetMessages)
	chatGroup.PUT("/:id/read", chatHandler.MarkRead)
	chatGroup.GET("/:id/unread", chatHandler.UnreadCount)
}
