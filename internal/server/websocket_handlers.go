package server

import (
	"log/slog"

	"chitchat/internal/middleware"
	"chitchat/internal/models"
	"chitchat/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketUpgrade authenticates a realtime connection before the upgrade.
// Browsers cannot set headers on the handshake, so the token may also come
// from ?token=.
func (s *Server) WebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	raw := c.Query("token")
	if raw == "" {
		raw = middleware.BearerToken(c)
	}
	user, _, err := s.auth.Resolve(c.UserContext(), raw)
	if err != nil {
		return models.RespondWithError(c, models.HTTPStatus(err), err)
	}

	c.Locals(middleware.LocalUserID, user.ID)
	return c.Next()
}

// WebSocketHandler streams the connected user's notification events.
// @Summary Notification stream
// @Description WebSocket carrying new_follower, post_liked, post_replied and mentioned events
// @Tags realtime
// @Param token query string true "JWT"
// @Success 101
// @Failure 401 {object} models.ErrorResponse
// @Failure 426
// @Router /ws [get]
func (s *Server) WebSocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals(middleware.LocalUserID).(uint)
		if !ok || userID == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			observability.Logger.Warn("websocket registration refused",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()),
			)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		observability.Logger.Debug("websocket connected", slog.Uint64("user_id", uint64(userID)))

		go client.WritePump()
		client.ReadPump()
	})
}
