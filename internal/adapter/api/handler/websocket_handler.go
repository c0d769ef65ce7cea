package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"lostpaws/internal/adapter/api/middleware"
	"lostpaws/internal/infrastructure/notify"
	"lostpaws/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler streams NotificationBus events (new messages, state
// changes, unread deltas) to a connected viewer.
type WebSocketHandler struct {
	bus  *notify.Bus
	auth *middleware.AuthMiddleware
}

func NewWebSocketHandler(bus *notify.Bus, auth *middleware.AuthMiddleware) *WebSocketHandler {
	return &WebSocketHandler{bus: bus, auth: auth}
}

func (h *WebSocketHandler) Serve(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "token query parameter is required")
	}
	uid, _, err := h.auth.VerifyToken(c, token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	events, unsubscribe := h.bus.Subscribe(uid)
	logger.Info("websocket connected: viewer %s", uid)

	go h.writePump(conn, events)
	h.readPump(conn, uid, unsubscribe)
	return nil
}

func (h *WebSocketHandler) writePump(conn *websocket.Conn, events <-chan notify.Event) {
	defer conn.Close()

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			logger.Error("websocket: marshal event: %v", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump drains client frames until disconnect; the feed is one-way but the
// read loop is what detects the close.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, uid string, unsubscribe func()) {
	defer func() {
		unsubscribe()
		conn.Close()
		logger.Info("websocket disconnected: viewer %s", uid)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket: viewer %s: %v", uid, err)
			}
			return
		}
	}
}
