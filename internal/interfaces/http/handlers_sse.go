package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Reynold-degenracy/EverMemoryArchive/internal/core/eventbus"
)

type submitRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Text   string `json:"text" binding:"required"`
}

// submitMessageHandler is POST /api/v1/actors/:actorID/messages — enqueues
// one user input into the named actor's Work queue.
func submitMessageHandler(pool ActorPool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.Param("actorID")

		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := pool.Submit(c.Request.Context(), actorID, req.UserID, req.Text); err != nil {
			logger.Error("failed to submit message", zap.String("actorID", actorID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"actor_id": actorID, "status": "queued"})
	}
}

// sseEvent is the wire shape of one server-sent event.
type sseEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// streamEventsHandler is GET /api/v1/actors/:actorID/events — relays the
// events the core publishes as Server-Sent Events until the client
// disconnects. An event that arrives while 64 are still waiting to be
// written is dropped and logged.
func streamEventsHandler(pool ActorPool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID := c.Param("actorID")
		bus := pool.BusFor(actorID)
		if bus == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown actor"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")
		c.Writer.WriteHeader(http.StatusOK)

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
			return
		}

		events := make(chan eventbus.Event, 64)
		unsubscribe := bus.SubscribeAll(func(e eventbus.Event) {
			select {
			case events <- e:
			default:
				logger.Warn("dropping event, subscriber too slow", zap.String("type", e.Type()))
			}
		})
		defer unsubscribe()

		ctx := c.Request.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-events:
				payload, err := json.Marshal(sseEvent{Event: e.Type(), Data: e})
				if err != nil {
					continue
				}
				c.Writer.Write([]byte("data: "))
				c.Writer.Write(payload)
				c.Writer.Write([]byte("\n\n"))
				flusher.Flush()
			}
		}
	}
}
