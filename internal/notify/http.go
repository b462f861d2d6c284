package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// HTTP delivers notifications to a downstream subscriber by POSTing the same
// JSON envelope Kafka carries. Meant for deployments without a broker.
type HTTP struct {
	url        string
	httpClient *http.Client
	log        *slog.Logger
}

func NewHTTP(url string, log *slog.Logger) *HTTP {
	return &HTTP{
		url: url,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		log: log,
	}
}

func (h *HTTP) TicketCreated(ctx context.Context, n Notification) error {
	return h.post(ctx, EventTicketCreated, n)
}

func (h *HTTP) TicketUpdated(ctx context.Context, n Notification) error {
	return h.post(ctx, EventTicketUpdated, n)
}

func (h *HTTP) post(ctx context.Context, event string, n Notification) error {
	envelope := struct {
		Event string `json:"event"`
		Notification
	}{Event: event, Notification: n}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", event, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", event, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver %s: %w", event, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("deliver %s: subscriber returned status %d", event, resp.StatusCode)
	}
	h.log.Debug("notification delivered", "event", event, "zendesk_id", n.Ticket.ZendeskID)
	return nil
}
