// Package event is the only boundary where untrusted input is accepted. Raw
// webhook payloads are persisted verbatim before any parsing, so even garbage
// is retained for audit.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/supportops/zendesk-sync/internal/errs"
	"github.com/supportops/zendesk-sync/internal/model"
)

type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewStore(db *gorm.DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}

// Store persists the raw payload, then parses it and extracts the remote
// ticket id. Parse failures are signaled as ErrMalformedPayload or
// ErrMissingTicketID alongside the already-persisted event, never panicked
// past this boundary; callers decide how to respond. The stored copy of the
// payload is truncated to MaxEventPayload bytes to limit abuse.
func (s *Store) Store(ctx context.Context, raw []byte) (*model.Event, error) {
	stored := raw
	if len(stored) > model.MaxEventPayload {
		stored = stored[:model.MaxEventPayload]
	}
	ev := &model.Event{RawData: string(stored)}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Warn("unparseable webhook payload", "event_id", ev.ID, "error", err)
		return ev, fmt.Errorf("%w: %v", errs.ErrMalformedPayload, err)
	}

	// The minimum needed to process an update is a remote ticket id.
	idValue, ok := payload["id"]
	if !ok {
		return ev, fmt.Errorf("%w: `id` not found in payload", errs.ErrMissingTicketID)
	}
	ticketID, err := parseTicketID(idValue)
	if err != nil {
		return ev, err
	}

	ev.RemoteTicketID = &ticketID
	if err := s.db.WithContext(ctx).Model(ev).Update("remote_ticket_id", ticketID).Error; err != nil {
		return nil, fmt.Errorf("record ticket id: %w", err)
	}
	return ev, nil
}

// parseTicketID accepts the id as either a JSON string or number, matching
// what Zendesk webhook templates produce.
func parseTicketID(v interface{}) (int64, error) {
	switch id := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: `id` %q is not numeric", errs.ErrMissingTicketID, id)
		}
		return n, nil
	case float64:
		if id != math.Trunc(id) {
			return 0, fmt.Errorf("%w: `id` %v is not an integer", errs.ErrMissingTicketID, id)
		}
		return int64(id), nil
	default:
		return 0, fmt.Errorf("%w: `id` has unsupported type %T", errs.ErrMissingTicketID, v)
	}
}
