package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/supportops/zendesk-sync/internal/errs"
)

// TicketStatus is the fixed set of states a Zendesk ticket moves through.
type TicketStatus string

const (
	TicketStatusNew     TicketStatus = "new"
	TicketStatusOpen    TicketStatus = "open"
	TicketStatusPending TicketStatus = "pending"
	TicketStatusHold    TicketStatus = "hold"
	TicketStatusSolved  TicketStatus = "solved"
	TicketStatusClosed  TicketStatus = "closed"
)

// ParseTicketStatus maps a remote status string onto the enum. The match is
// case-insensitive; anything outside the enum is an error, never silently kept.
func ParseTicketStatus(s string) (TicketStatus, error) {
	switch st := TicketStatus(strings.ToLower(s)); st {
	case TicketStatusNew, TicketStatusOpen, TicketStatusPending,
		TicketStatusHold, TicketStatusSolved, TicketStatusClosed:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", errs.ErrUnknownStatus, s)
}

// RemoteIdentity is the local cache of a Zendesk user, optionally linked to an
// account in the consuming application's own user system. Not every Zendesk
// user maps to a known local account, so the link is nullable. Rows are
// created or refreshed whenever a synced ticket or comment references the
// user; they are never deleted by this service.
type RemoteIdentity struct {
	ID             uint64  `gorm:"primaryKey" json:"id"`
	ZendeskID      int64   `gorm:"uniqueIndex;not null" json:"zendesk_id"`
	Name           string  `gorm:"type:text" json:"name,omitempty"`
	Email          string  `gorm:"type:text" json:"email,omitempty"`
	LocalAccountID *uint64 `gorm:"index" json:"local_account_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Ticket mirrors one Zendesk ticket. Exactly one row exists per zendesk_id;
// rows are created on first sync and overwritten in place afterwards, never
// deleted. Custom fields and tags are kept as opaque blobs.
type Ticket struct {
	ID           uint64       `gorm:"primaryKey" json:"id"`
	ZendeskID    int64        `gorm:"uniqueIndex;not null" json:"zendesk_id"`
	RequesterID  uint64       `gorm:"index;not null" json:"requester_id"`
	Subject      string       `gorm:"type:text" json:"subject,omitempty"`
	Description  string       `gorm:"type:text" json:"description,omitempty"`
	URL          string       `gorm:"type:text" json:"url,omitempty"`
	Status       TicketStatus `gorm:"type:varchar(8);not null" json:"status"`
	CustomFields string       `gorm:"type:text" json:"custom_fields,omitempty"`
	Tags         string       `gorm:"type:text" json:"tags,omitempty"`

	Requester *RemoteIdentity `gorm:"foreignKey:RequesterID" json:"-"`
	Comments  []Comment       `gorm:"foreignKey:TicketID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Comment mirrors one Zendesk comment. Uniqueness is scoped by
// (zendesk_id, ticket_id) and rows are updated in place on resync.
type Comment struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	ZendeskID int64  `gorm:"not null;uniqueIndex:ux_comments_zendesk_ticket" json:"zendesk_id"`
	TicketID  uint64 `gorm:"not null;uniqueIndex:ux_comments_zendesk_ticket" json:"ticket_id"`
	AuthorID  uint64 `gorm:"index;not null" json:"author_id"`
	Body      string `gorm:"type:text" json:"body,omitempty"`
	Public    bool   `gorm:"not null" json:"public"`

	Author *RemoteIdentity `gorm:"foreignKey:AuthorID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// MaxEventPayload bounds the stored raw payload to limit abuse.
const MaxEventPayload = 1024

// Event is the durable record of one inbound webhook payload. It is created
// before any processing happens, so even malformed payloads are retained for
// audit. The error column is filled on processing failure and cleared only on
// full success; the raw payload is immutable once stored.
type Event struct {
	ID             uint64  `gorm:"primaryKey" json:"id"`
	RawData        string  `gorm:"type:varchar(1024);not null" json:"raw_data"`
	RemoteTicketID *int64  `gorm:"index" json:"remote_ticket_id,omitempty"`
	Error          *string `gorm:"type:text" json:"error,omitempty"`
	TicketID       *uint64 `gorm:"index" json:"ticket_id,omitempty"`

	Ticket *Ticket `gorm:"foreignKey:TicketID;constraint:OnDelete:SET NULL" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocalAccount is a user row in the consuming application's own user system.
// The bridge only reads it, to link cached remote identities back to known
// accounts.
type LocalAccount struct {
	ID            uint64 `gorm:"primaryKey" json:"id"`
	Name          string `gorm:"type:text" json:"name,omitempty"`
	Email         string `gorm:"type:text;index" json:"email,omitempty"`
	EmailVerified bool   `gorm:"not null;default:false" json:"email_verified"`

	CreatedAt time.Time `json:"created_at"`
}
