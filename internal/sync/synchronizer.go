// Package sync pulls one remote ticket with its comments and identities into
// local storage. Local rows mirror remote truth: every mutable field is
// overwritten unconditionally, nothing is ever deleted here.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"github.com/supportops/zendesk-sync/internal/model"
	"github.com/supportops/zendesk-sync/internal/zendesk"
)

// IdentityUpserter is the slice of the identity resolver the synchronizer
// depends on.
type IdentityUpserter interface {
	UpsertFromRemote(ctx context.Context, db *gorm.DB, remote *zendesk.User) (*model.RemoteIdentity, error)
}

// Synchronizer is the capability interface deployments can substitute.
type Synchronizer interface {
	// Sync fetches remote ticket state and upserts it locally. The returned
	// flag reports whether the ticket row was created by this call.
	Sync(ctx context.Context, db *gorm.DB, ticketID int64) (*model.Ticket, bool, error)
}

// TicketSynchronizer is the default Synchronizer over the Zendesk client.
type TicketSynchronizer struct {
	client     zendesk.Client
	identities IdentityUpserter
	log        *slog.Logger
}

func NewTicketSynchronizer(client zendesk.Client, identities IdentityUpserter, log *slog.Logger) *TicketSynchronizer {
	return &TicketSynchronizer{client: client, identities: identities, log: log}
}

func (s *TicketSynchronizer) Sync(ctx context.Context, db *gorm.DB, ticketID int64) (*model.Ticket, bool, error) {
	remote, err := s.client.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, false, err
	}

	requester, err := s.identities.UpsertFromRemote(ctx, db, remote.Requester)
	if err != nil {
		return nil, false, err
	}

	status, err := model.ParseTicketStatus(remote.Status)
	if err != nil {
		return nil, false, err
	}

	ticket, created, err := s.upsertTicket(ctx, db, remote, requester, status)
	if err != nil {
		return nil, false, err
	}

	// Sync comments that exist. For a new ticket there may be none, since
	// the first message is the ticket description.
	if err := s.syncComments(ctx, db, remote, ticket, requester); err != nil {
		return nil, false, err
	}

	s.log.Debug("ticket synced", "zendesk_id", ticketID, "created", created)
	return ticket, created, nil
}

func (s *TicketSynchronizer) upsertTicket(ctx context.Context, db *gorm.DB, remote *zendesk.Ticket, requester *model.RemoteIdentity, status model.TicketStatus) (*model.Ticket, bool, error) {
	fields := map[string]interface{}{
		"requester_id":  requester.ID,
		"subject":       remote.Subject,
		"description":   remote.Description,
		"url":           remote.URL,
		"status":        status,
		"custom_fields": string(remote.CustomFields),
		"tags":          encodeTags(remote.Tags),
		"created_at":    remote.CreatedAt,
		"updated_at":    remote.UpdatedAt,
	}

	var t model.Ticket
	err := db.WithContext(ctx).First(&t, "zendesk_id = ?", remote.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		t = model.Ticket{
			ZendeskID:    remote.ID,
			RequesterID:  requester.ID,
			Subject:      remote.Subject,
			Description:  remote.Description,
			URL:          remote.URL,
			Status:       status,
			CustomFields: string(remote.CustomFields),
			Tags:         encodeTags(remote.Tags),
			CreatedAt:    remote.CreatedAt,
			UpdatedAt:    remote.UpdatedAt,
		}
		if err := db.WithContext(ctx).Create(&t).Error; err != nil {
			return nil, false, err
		}
		return &t, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	// UpdateColumns keeps the remote timestamps instead of stamping our own.
	if err := db.WithContext(ctx).Model(&t).UpdateColumns(fields).Error; err != nil {
		return nil, false, err
	}
	if err := db.WithContext(ctx).First(&t, t.ID).Error; err != nil {
		return nil, false, err
	}
	return &t, false, nil
}

func (s *TicketSynchronizer) syncComments(ctx context.Context, db *gorm.DB, remote *zendesk.Ticket, ticket *model.Ticket, requester *model.RemoteIdentity) error {
	comments, err := s.client.ListComments(ctx, remote.ID)
	if err != nil {
		return err
	}

	// The requester was upserted moments ago; seed the author map so the
	// common case of requester-authored comments skips a second upsert.
	authors := map[int64]*model.RemoteIdentity{}
	if remote.Requester != nil {
		authors[remote.Requester.ID] = requester
	}

	for _, rc := range comments {
		author, ok := authors[rc.Author.ID]
		if !ok {
			author, err = s.identities.UpsertFromRemote(ctx, db, rc.Author)
			if err != nil {
				return err
			}
			authors[rc.Author.ID] = author
		}
		if err := upsertComment(ctx, db, ticket, &rc, author); err != nil {
			return err
		}
	}
	return nil
}

func upsertComment(ctx context.Context, db *gorm.DB, ticket *model.Ticket, rc *zendesk.Comment, author *model.RemoteIdentity) error {
	var c model.Comment
	err := db.WithContext(ctx).
		First(&c, "zendesk_id = ? AND ticket_id = ?", rc.ID, ticket.ID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c = model.Comment{
			ZendeskID: rc.ID,
			TicketID:  ticket.ID,
			AuthorID:  author.ID,
			Body:      rc.Body,
			Public:    rc.Public,
			CreatedAt: rc.CreatedAt,
		}
		return db.WithContext(ctx).Create(&c).Error
	}
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Model(&c).UpdateColumns(map[string]interface{}{
		"author_id":  author.ID,
		"body":       rc.Body,
		"public":     rc.Public,
		"created_at": rc.CreatedAt,
	}).Error
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}
