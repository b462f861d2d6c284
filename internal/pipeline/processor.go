// Package pipeline orchestrates one reconciliation: snapshot pre-state, lock
// the ticket, sync remote truth, diff, publish. All local writes for one
// attempt live in a single transaction; a failure rolls them back, is
// recorded on the event for audit, and is re-raised for the caller to decide
// on retries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/supportops/zendesk-sync/internal/errs"
	"github.com/supportops/zendesk-sync/internal/lock"
	"github.com/supportops/zendesk-sync/internal/model"
	"github.com/supportops/zendesk-sync/internal/notify"
	"github.com/supportops/zendesk-sync/internal/store"
	"github.com/supportops/zendesk-sync/internal/sync"
)

type Processor struct {
	db       *gorm.DB
	syncer   sync.Synchronizer
	locker   lock.TicketLocker
	notifier notify.Notifier
	log      *slog.Logger
}

func NewProcessor(db *gorm.DB, syncer sync.Synchronizer, locker lock.TicketLocker, notifier notify.Notifier, log *slog.Logger) *Processor {
	return &Processor{db: db, syncer: syncer, locker: locker, notifier: notifier, log: log}
}

// Process reconciles the ticket an event references. On failure the full
// detail is written to the event's error column and the error is returned
// unchanged; on success the error column is cleared and the event is linked
// to the resulting ticket.
func (p *Processor) Process(ctx context.Context, ev *model.Event) error {
	if ev.RemoteTicketID == nil {
		return errs.ErrMissingTicketID
	}
	ticketID := *ev.RemoteTicketID

	post, err := p.reconcile(ctx, ticketID)
	if err != nil {
		p.log.Error("failed to process event", "event_id", ev.ID, "zendesk_id", ticketID, "error", err)
		if recErr := store.RecordEventError(ctx, p.db, ev, fmt.Sprintf("%+v", err)); recErr != nil {
			p.log.Error("failed to record event error", "event_id", ev.ID, "error", recErr)
		}
		return err
	}
	return store.ResolveEvent(ctx, p.db, ev, post.ID)
}

func (p *Processor) reconcile(ctx context.Context, ticketID int64) (*model.Ticket, error) {
	var post *model.Ticket
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Snapshot the ticket and its comments in their old state, strictly
		// before any mutation.
		preTicket, err := store.TicketByZendeskID(ctx, tx, ticketID)
		if err != nil && !errors.Is(err, errs.ErrTicketNotFound) {
			return err
		}
		var preComments []model.Comment
		if preTicket != nil {
			if preComments, err = store.CommentsForTicket(ctx, tx, preTicket.ID); err != nil {
				return err
			}
		}

		release, err := p.locker.Acquire(ctx, ticketID)
		if err != nil {
			return err
		}
		defer release()

		ticket, created, err := p.syncer.Sync(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		postComments, err := store.CommentsForTicket(ctx, tx, ticket.ID)
		if err != nil {
			return err
		}

		n := notify.Notification{
			Ticket: ticket,
			Context: notify.ChangeContext{
				PreTicket:    preTicket,
				PostTicket:   ticket,
				PreComments:  preComments,
				PostComments: postComments,
			},
		}

		// A freshly created ticket with no comment replies yet is the one
		// case that counts as "created"; everything else is an update.
		if created && len(postComments) == 0 {
			if err := p.notifier.TicketCreated(ctx, n); err != nil {
				return err
			}
		} else {
			n.Updates = computeUpdates(preTicket, ticket, preComments, postComments)
			if err := p.notifier.TicketUpdated(ctx, n); err != nil {
				return err
			}
		}

		post = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}
