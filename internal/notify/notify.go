// Package notify is the publish point downstream systems subscribe to for
// ticket change notifications.
package notify

import (
	"context"
	"errors"

	"github.com/supportops/zendesk-sync/internal/model"
)

// Event names carried on every published notification.
const (
	EventTicketCreated = "zendesk.ticket.created"
	EventTicketUpdated = "zendesk.ticket.updated"
)

// FieldChange is one differing ticket field between the pre and post
// snapshots.
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// Updates describes what a sync changed: comments that appeared and ticket
// fields whose values differ. Comment edits and deletions are not tracked.
type Updates struct {
	NewComments   []model.Comment        `json:"new_comments"`
	UpdatedFields map[string]FieldChange `json:"updated_fields"`
}

// ChangeContext carries the full before/after state so subscribers can do
// their own change detection beyond Updates.
type ChangeContext struct {
	PreTicket    *model.Ticket   `json:"pre_ticket"`
	PostTicket   *model.Ticket   `json:"post_ticket"`
	PreComments  []model.Comment `json:"pre_comments"`
	PostComments []model.Comment `json:"post_comments"`
}

// Notification is the payload for both event kinds. Updates is nil on
// ticket.created.
type Notification struct {
	Ticket  *model.Ticket `json:"ticket"`
	Updates *Updates      `json:"updates,omitempty"`
	Context ChangeContext `json:"context"`
}

// Notifier is the capability interface the pipeline publishes through.
// Implementations must treat a returned error as "not delivered": the
// pipeline fails the whole reconciliation attempt on publish errors.
type Notifier interface {
	TicketCreated(ctx context.Context, n Notification) error
	TicketUpdated(ctx context.Context, n Notification) error
}

// Nop drops all notifications. Default when no transport is configured.
type Nop struct{}

func (Nop) TicketCreated(ctx context.Context, n Notification) error { return nil }
func (Nop) TicketUpdated(ctx context.Context, n Notification) error { return nil }

// Multi fans a notification out to several transports.
type Multi []Notifier

func (m Multi) TicketCreated(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		errs = append(errs, notifier.TicketCreated(ctx, n))
	}
	return errors.Join(errs...)
}

func (m Multi) TicketUpdated(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		errs = append(errs, notifier.TicketUpdated(ctx, n))
	}
	return errors.Join(errs...)
}
