package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/supportops/zendesk-sync/internal/errs"
	"github.com/supportops/zendesk-sync/internal/event"
	"github.com/supportops/zendesk-sync/internal/pipeline"
)

// maxBodyBytes caps the request body read. Larger than the stored payload
// bound so oversized-but-valid payloads still parse; the event store truncates
// what it persists.
const maxBodyBytes = 64 << 10

type WebhookHandler struct {
	events    *event.Store
	processor *pipeline.Processor
	log       *slog.Logger
}

func NewWebhookHandler(events *event.Store, processor *pipeline.Processor, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{events: events, processor: processor, log: log}
}

// Receive accepts a Zendesk webhook notification. Payload errors are the
// sender's fault and get a 400; reconciliation failures get a 500 so the
// sender's retry policy kicks in. Either way the raw payload has already been
// persisted as an Event.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	ev, err := h.events.Store(c.Request.Context(), body)
	if err != nil {
		if errors.Is(err, errs.ErrMalformedPayload) || errors.Is(err, errs.ErrMissingTicketID) {
			resp := gin.H{"error": err.Error()}
			if ev != nil {
				resp["event_id"] = ev.ID
			}
			c.JSON(http.StatusBadRequest, resp)
			return
		}
		h.log.Error("failed to store event", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store event"})
		return
	}

	if err := h.processor.Process(c.Request.Context(), ev); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":    "reconciliation failed",
			"event_id": ev.ID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":  ev.ID,
		"ticket_id": ev.RemoteTicketID,
	})
}
