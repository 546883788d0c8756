package server

import (
	"encoding/json"
	"log/slog"

	"folio/internal/featureflags"
	"folio/internal/middleware"
	"folio/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebSocketUpgrade rejects plain HTTP requests on WebSocket routes and checks
// that the live feed can be served at all.
func (s *Server) WebSocketUpgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if s.hub == nil {
			return models.RespondWithError(c, fiber.StatusServiceUnavailable,
				&models.AppError{Code: models.CodeInternal, Message: "Live views are unavailable"})
		}
		return c.Next()
	}
}

// websocketToken copies a ?token= query parameter into the Authorization
// header when the handshake carries no header of its own.
func websocketToken() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if middleware.BearerToken(c) == "" {
			if token := c.Query("token"); token != "" {
				c.Request().Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
			}
		}
		return c.Next()
	}
}

// LiveViewsHandler streams view events for the caller's pages. It sits
// behind the live_views flag, evaluated per user.
// @Summary Live view feed
// @Tags pages
// @Param token query string false "Session token when the Authorization header cannot be set"
// @Success 101
// @Failure 403 {object} models.ErrorResponse
// @Failure 426 {object} models.ErrorResponse
// @Router /ws/views [get]
func (s *Server) LiveViewsHandler() fiber.Handler {
	feed := websocket.New(func(conn *websocket.Conn) {
		userID, ok := conn.Locals(middleware.LocalUserID).(uint)
		if !ok || userID == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("live feed registration refused",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()))
			msg, _ := json.Marshal(fiber.Map{"error": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}

		middleware.Logger.Debug("live feed connected", slog.Uint64("user_id", uint64(userID)))

		hello, _ := json.Marshal(fiber.Map{"type": "connected"})
		client.TrySend(hello)

		go client.WritePump()
		client.ReadPump()
	})

	return func(c *fiber.Ctx) error {
		if !s.featureFlags.Enabled(featureflags.LiveViews, currentUserID(c)) {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Live views are not enabled for this account"))
		}
		return feed(c)
	}
}
