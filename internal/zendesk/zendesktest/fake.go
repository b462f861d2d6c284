// Package zendesktest provides an in-memory Client for tests.
package zendesktest

import (
	"context"
	"fmt"
	"sync"

	"github.com/supportops/zendesk-sync/internal/errs"
	"github.com/supportops/zendesk-sync/internal/zendesk"
)

// Fake is a configurable in-memory zendesk.Client. Populate Tickets, Comments
// and Users, or set the error fields to force failures.
type Fake struct {
	mu sync.Mutex

	Tickets    map[int64]*zendesk.Ticket
	Comments   map[int64][]zendesk.Comment
	Users      []zendesk.User
	Identities map[int64][]zendesk.Identity

	TicketErr error
	CreateErr error

	CreatedUsers []zendesk.User
	UpdatedUsers []zendesk.User
	PromotedIDs  []int64

	nextUserID int64
}

var _ zendesk.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		Tickets:    make(map[int64]*zendesk.Ticket),
		Comments:   make(map[int64][]zendesk.Comment),
		Identities: make(map[int64][]zendesk.Identity),
		nextUserID: 9000,
	}
}

func (f *Fake) GetTicket(ctx context.Context, id int64) (*zendesk.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.TicketErr != nil {
		return nil, f.TicketErr
	}
	t, ok := f.Tickets[id]
	if !ok {
		return nil, fmt.Errorf("%w: get ticket %d: status 404", errs.ErrRemoteFetch, id)
	}
	copied := *t
	return &copied, nil
}

func (f *Fake) ListComments(ctx context.Context, ticketID int64) ([]zendesk.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]zendesk.Comment(nil), f.Comments[ticketID]...), nil
}

func (f *Fake) SearchUsers(ctx context.Context, q zendesk.UserQuery) ([]zendesk.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []zendesk.User
	for _, u := range f.Users {
		if q.ExternalID != "" && u.ExternalID == q.ExternalID {
			out = append(out, u)
		} else if q.ExternalID == "" && q.Email != "" && u.Email == q.Email {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *Fake) CreateUser(ctx context.Context, u *zendesk.User) (*zendesk.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	created := *u
	if created.ID == 0 {
		f.nextUserID++
		created.ID = f.nextUserID
	}
	f.Users = append(f.Users, created)
	f.CreatedUsers = append(f.CreatedUsers, created)
	return &created, nil
}

func (f *Fake) UpdateUser(ctx context.Context, u *zendesk.User) (*zendesk.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	updated := *u
	f.UpdatedUsers = append(f.UpdatedUsers, updated)
	return &updated, nil
}

func (f *Fake) ListIdentities(ctx context.Context, userID int64) ([]zendesk.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]zendesk.Identity(nil), f.Identities[userID]...), nil
}

func (f *Fake) MakeIdentityPrimary(ctx context.Context, userID, identityID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PromotedIDs = append(f.PromotedIDs, identityID)
	return nil
}
