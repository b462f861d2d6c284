// Package store holds the row-level queries shared by the synchronizer, the
// reconciliation pipeline and the CLI. Functions take the *gorm.DB explicitly
// so callers can pass either the root handle or a transaction.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/supportops/zendesk-sync/internal/errs"
	"github.com/supportops/zendesk-sync/internal/model"
)

// TicketByZendeskID fetches the local mirror of a remote ticket.
func TicketByZendeskID(ctx context.Context, db *gorm.DB, zendeskID int64) (*model.Ticket, error) {
	var t model.Ticket
	if err := db.WithContext(ctx).First(&t, "zendesk_id = ?", zendeskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTicketNotFound
		}
		return nil, err
	}
	return &t, nil
}

// CommentsForTicket lists a ticket's comments in stable order: creation time
// first, insertion id as the tie-breaker.
func CommentsForTicket(ctx context.Context, db *gorm.DB, ticketID uint64) ([]model.Comment, error) {
	var comments []model.Comment
	err := db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC, id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// AllTickets lists every locally known ticket, oldest first.
func AllTickets(ctx context.Context, db *gorm.DB) ([]model.Ticket, error) {
	var tickets []model.Ticket
	if err := db.WithContext(ctx).Order("id ASC").Find(&tickets).Error; err != nil {
		return nil, err
	}
	return tickets, nil
}

// RecordEventError writes the failure detail onto the event. Called after the
// reconciliation transaction rolled back, so it must use a non-transactional
// handle.
func RecordEventError(ctx context.Context, db *gorm.DB, ev *model.Event, detail string) error {
	ev.Error = &detail
	return db.WithContext(ctx).Model(ev).Update("error", detail).Error
}

// ResolveEvent marks the event fully processed: links the resulting ticket and
// clears any error left over from an earlier failed attempt.
func ResolveEvent(ctx context.Context, db *gorm.DB, ev *model.Event, ticketID uint64) error {
	ev.TicketID = &ticketID
	ev.Error = nil
	return db.WithContext(ctx).Model(ev).Updates(map[string]interface{}{
		"ticket_id": ticketID,
		"error":     nil,
	}).Error
}
