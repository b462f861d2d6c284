package sync

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/supportops/zendesk-sync/internal/errs"
	"github.com/supportops/zendesk-sync/internal/identity"
	"github.com/supportops/zendesk-sync/internal/model"
	"github.com/supportops/zendesk-sync/internal/zendesk"
	"github.com/supportops/zendesk-sync/internal/zendesk/zendesktest"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	err = db.AutoMigrate(&model.LocalAccount{}, &model.RemoteIdentity{}, &model.Ticket{}, &model.Comment{})
	require.NoError(t, err)
	return db
}

func newTestSynchronizer(db *gorm.DB, fake *zendesktest.Fake) *TicketSynchronizer {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := identity.NewResolver(fake, identity.NewDirectory(db), log)
	return NewTicketSynchronizer(fake, resolver, log)
}

func seedRemoteTicket(fake *zendesktest.Fake) *zendesk.User {
	requester := &zendesk.User{
		ID:        100,
		Name:      "Ada Lovelace",
		Email:     "ada@example.com",
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	fake.Tickets[42] = &zendesk.Ticket{
		ID:           42,
		URL:          "https://acme.zendesk.com/api/v2/tickets/42.json",
		Subject:      "Cannot log in",
		Description:  "I forgot my password",
		Status:       "Open",
		CustomFields: json.RawMessage(`[{"id":1,"value":"web"}]`),
		Tags:         []string{"vip", "login"},
		Requester:    requester,
		CreatedAt:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC),
	}
	return requester
}

func TestSync_CreatesTicket(t *testing.T) {
	db := setupTestDB(t)
	fake := zendesktest.New()
	seedRemoteTicket(fake)
	s := newTestSynchronizer(db, fake)

	ticket, created, err := s.Sync(context.Background(), db, 42)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(42), ticket.ZendeskID)
	assert.Equal(t, "Cannot log in", ticket.Subject)
	assert.Equal(t, model.TicketStatusOpen, ticket.Status)
	assert.Equal(t, `[{"id":1,"value":"web"}]`, ticket.CustomFields)
	assert.Equal(t, `["vip","login"]`, ticket.Tags)

	var ident model.RemoteIdentity
	require.NoError(t, db.First(&ident, "zendesk_id = ?", 100).Error)
	assert.Equal(t, "Ada Lovelace", ident.Name)
	assert.Equal(t, ident.ID, ticket.RequesterID)
	assert.Nil(t, ident.LocalAccountID)
}

func TestSync_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	fake := zendesktest.New()
	seedRemoteTicket(fake)
	s := newTestSynchronizer(db, fake)
	ctx := context.Background()

	first, created, err := s.Sync(ctx, db, 42)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.Sync(ctx, db, 42)
	require.NoError(t, err)
	assert.False(t, created)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Subject, second.Subject)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.Tags, second.Tags)

	var tickets, identities int64
	require.NoError(t, db.Model(&model.Ticket{}).Count(&tickets).Error)
	require.NoError(t, db.Model(&model.RemoteIdentity{}).Count(&identities).Error)
	assert.Equal(t, int64(1), tickets)
	assert.Equal(t, int64(1), identities)
}

func TestSync_RemoteTruthOverwritesLocalEdits(t *testing.T) {
	db := setupTestDB(t)
	fake := zendesktest.New()
	seedRemoteTicket(fake)
	s := newTestSynchronizer(db, fake)
	ctx := context.Background()

	ticket, _, err := s.Sync(ctx, db, 42)
	require.NoError(t, err)

	// A local edit is never authoritative.
	require.NoError(t, db.Model(ticket).UpdateColumn("subject", "locally edited").Error)
	fake.Tickets[42].Status = "solved"

	resynced, created, err := s.Sync(ctx, db, 42)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Cannot log in", resynced.Subject)
	assert.Equal(t, model.TicketStatusSolved, resynced.Status)
}

func TestSync_CommentsUpsertedAndAuthorsReused(t *testing.T) {
	db := setupTestDB(t)
	fake := zendesktest.New()
	requester := seedRemoteTicket(fake)
	other := &zendesk.User{ID: 200, Name: "Grace Hopper", Email: "grace@example.com"}
	fake.Comments[42] = []zendesk.Comment{
		{ID: 1001, Body: "first reply", Public: true, Author: requester, CreatedAt: time.Date(2024, 2, 1, 1, 0, 0, 0, time.UTC)},
		{ID: 1002, Body: "internal note", Public: false, Author: other, CreatedAt: time.Date(2024, 2, 1, 2, 0, 0, 0, time.UTC)},
		{ID: 1003, Body: "another from requester", Public: true, Author: requester, CreatedAt: time.Date(2024, 2, 1, 3, 0, 0, 0, time.UTC)},
	}
	s := newTestSynchronizer(db, fake)
	ctx := context.Background()

	ticket, _, err := s.Sync(ctx, db, 42)
	require.NoError(t, err)

	var comments []model.Comment
	require.NoError(t, db.Where("ticket_id = ?", ticket.ID).Order("created_at ASC, id ASC").Find(&comments).Error)
	require.Len(t, comments, 3)
	assert.Equal(t, int64(1001), comments[0].ZendeskID)
	assert.False(t, comments[1].Public)

	// Requester and one other author: exactly two cached identities.
	var identities int64
	require.NoError(t, db.Model(&model.RemoteIdentity{}).Count(&identities).Error)
	assert.Equal(t, int64(2), identities)

	// Resync with an edited body updates in place, no duplicates.
	fake.Comments[42][1].Body = "edited note"
	_, _, err = s.Sync(ctx, db, 42)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&model.Comment{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
	var edited model.Comment
	require.NoError(t, db.First(&edited, "zendesk_id = ? AND ticket_id = ?", 1002, ticket.ID).Error)
	assert.Equal(t, "edited note", edited.Body)
}

func TestSync_UnknownStatus(t *testing.T) {
	db := setupTestDB(t)
	fake := zendesktest.New()
	seedRemoteTicket(fake)
	fake.Tickets[42].Status = "escalated"
	s := newTestSynchronizer(db, fake)

	_, _, err := s.Sync(context.Background(), db, 42)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUnknownStatus)

	var tickets int64
	require.NoError(t, db.Model(&model.Ticket{}).Count(&tickets).Error)
	assert.Equal(t, int64(0), tickets)
}

func TestSync_RemoteFetchError(t *testing.T) {
	db := setupTestDB(t)
	fake := zendesktest.New()
	s := newTestSynchronizer(db, fake)

	_, _, err := s.Sync(context.Background(), db, 404)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrRemoteFetch)
}

func TestSync_LinksLocalAccountByExternalID(t *testing.T) {
	db := setupTestDB(t)
	acct := model.LocalAccount{Name: "Ada", Email: "ada@example.com", EmailVerified: true}
	require.NoError(t, db.Create(&acct).Error)

	fake := zendesktest.New()
	requester := seedRemoteTicket(fake)
	requester.ExternalID = "1"
	fake.Tickets[42].Requester = requester
	s := newTestSynchronizer(db, fake)

	_, _, err := s.Sync(context.Background(), db, 42)
	require.NoError(t, err)

	var ident model.RemoteIdentity
	require.NoError(t, db.First(&ident, "zendesk_id = ?", 100).Error)
	require.NotNil(t, ident.LocalAccountID)
	assert.Equal(t, acct.ID, *ident.LocalAccountID)
}
