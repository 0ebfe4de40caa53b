package http

import (
	"bufio"
	"time"

	"sentinel_server/adapter/out/realtime"
	"sentinel_server/core/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// =============================================================================
// SSE Handler - live alert feed for reviewer dashboards
// =============================================================================

// SSEHandler handles Server-Sent Events connections.
type SSEHandler struct {
	hub     *realtime.SSEHub
	adapter *realtime.SSEAdapter
	log     zerolog.Logger
}

// NewSSEHandler creates a new SSE handler.
func NewSSEHandler(hub *realtime.SSEHub, adapter *realtime.SSEAdapter, log zerolog.Logger) *SSEHandler {
	return &SSEHandler{
		hub:     hub,
		adapter: adapter,
		log:     log.With().Str("handler", "sse").Logger(),
	}
}

// Register registers SSE routes.
func (h *SSEHandler) Register(app fiber.Router) {
	app.Get("/alerts/stream", h.Stream)
	app.Get("/alerts/stream/status", h.Status)
}

// Stream handles SSE connections.
func (h *SSEHandler) Stream(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	userIDStr := userID.String()
	client := h.hub.CreateClient(userIDStr)

	h.log.Info().
		Str("user_id", userIDStr).
		Msg("SSE client connected")

	// Set SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no") // disable nginx buffering

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(client.HeartbeatInterval())
		defer ticker.Stop()
		defer func() {
			client.Close()
			h.log.Info().
				Str("user_id", userIDStr).
				Msg("SSE client disconnected")
		}()

		// Send initial connection event
		w.WriteString("event: " + string(domain.EventConnected) + "\n")
		w.WriteString("data: {\"status\":\"connected\"}\n\n")
		w.Flush()

		for {
			select {
			case event, ok := <-client.Events:
				if !ok {
					return
				}

				data, err := realtime.SerializeEvent(event)
				if err != nil {
					h.log.Error().Err(err).Msg("failed to serialize event")
					continue
				}

				// Write SSE format
				w.WriteString("event: ")
				w.WriteString(string(event.Type))
				w.WriteString("\n")
				w.WriteString("data: ")
				w.Write(data)
				w.WriteString("\n\n")

				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during write")
					return
				}

			case <-ticker.C:
				// Heartbeat
				w.WriteString(": heartbeat\n\n")
				if err := w.Flush(); err != nil {
					h.log.Debug().Err(err).Msg("client disconnected during heartbeat")
					return
				}

			case <-client.Done:
				return
			}
		}
	})

	return nil
}

// Status returns SSE connection status.
func (h *SSEHandler) Status(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, 401, "unauthorized")
	}

	return c.JSON(fiber.Map{
		"user_id":   userID.String(),
		"connected": h.adapter.IsConnected(userID.String()),
		"metrics":   h.adapter.GetMetrics(),
	})
}
