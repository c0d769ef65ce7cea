package router

import (
	"github.com/labstack/echo/v4"

	"lostpaws/internal/adapter/api/handler"
	"lostpaws/internal/adapter/api/middleware"
)

// Setup mounts the health and chat surfaces.
func Setup(e *echo.Echo, chatHandler *handler.ChatHandler, wsHandler *handler.WebSocketHandler, authMiddleware *middleware.AuthMiddleware, rateLimit *middleware.RateLimitMiddleware) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	SetupChatRouter(e, chatHandler, authMiddleware, rateLimit)
	SetupWebSocketRouter(e, wsHandler)
}
