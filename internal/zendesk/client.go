package zendesk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/supportops/zendesk-sync/internal/errs"
)

// Client is the remote client adapter contract. Everything the synchronizer
// and identity resolver need from Zendesk goes through here, so tests and
// alternate deployments can substitute their own implementation.
type Client interface {
	GetTicket(ctx context.Context, id int64) (*Ticket, error)
	ListComments(ctx context.Context, ticketID int64) ([]Comment, error)
	SearchUsers(ctx context.Context, q UserQuery) ([]User, error)
	CreateUser(ctx context.Context, u *User) (*User, error)
	UpdateUser(ctx context.Context, u *User) (*User, error)
	ListIdentities(ctx context.Context, userID int64) ([]Identity, error)
	MakeIdentityPrimary(ctx context.Context, userID, identityID int64) error
}

type httpClient struct {
	client *resty.Client
}

// NewClient builds a Client for the Zendesk v2 REST API. Auth is the API
// token scheme: "email/token" as username, the token as password. The request
// timeout is the single place a deployment-level timeout applies; expiry
// surfaces as an ErrRemoteFetch like any other transport failure.
func NewClient(baseURL, email, token string, timeout time.Duration) Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(email+"/token", token).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &httpClient{client: client}
}

type apiTicket struct {
	ID           int64           `json:"id"`
	URL          string          `json:"url"`
	Subject      string          `json:"subject"`
	Description  string          `json:"description"`
	Status       string          `json:"status"`
	RequesterID  int64           `json:"requester_id"`
	CustomFields json.RawMessage `json:"custom_fields"`
	Tags         []string        `json:"tags"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type apiComment struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Public    bool      `json:"public"`
	AuthorID  int64     `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *httpClient) GetTicket(ctx context.Context, id int64) (*Ticket, error) {
	var out struct {
		Ticket apiTicket `json:"ticket"`
		Users  []User    `json:"users"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("include", "users").
		SetResult(&out).
		Get(fmt.Sprintf("/tickets/%d.json", id))
	if err != nil {
		return nil, fmt.Errorf("%w: get ticket %d: %v", errs.ErrRemoteFetch, id, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: get ticket %d: status %d", errs.ErrRemoteFetch, id, resp.StatusCode())
	}

	requester := findUser(out.Users, out.Ticket.RequesterID)
	if requester == nil {
		requester, err = c.getUser(ctx, out.Ticket.RequesterID)
		if err != nil {
			return nil, err
		}
	}
	return &Ticket{
		ID:           out.Ticket.ID,
		URL:          out.Ticket.URL,
		Subject:      out.Ticket.Subject,
		Description:  out.Ticket.Description,
		Status:       out.Ticket.Status,
		CustomFields: append([]byte(nil), out.Ticket.CustomFields...),
		Tags:         out.Ticket.Tags,
		Requester:    requester,
		CreatedAt:    out.Ticket.CreatedAt,
		UpdatedAt:    out.Ticket.UpdatedAt,
	}, nil
}

func (c *httpClient) ListComments(ctx context.Context, ticketID int64) ([]Comment, error) {
	var out struct {
		Comments []apiComment `json:"comments"`
		Users    []User       `json:"users"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("include", "users").
		SetResult(&out).
		Get(fmt.Sprintf("/tickets/%d/comments.json", ticketID))
	if err != nil {
		return nil, fmt.Errorf("%w: list comments for ticket %d: %v", errs.ErrRemoteFetch, ticketID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: list comments for ticket %d: status %d", errs.ErrRemoteFetch, ticketID, resp.StatusCode())
	}

	comments := make([]Comment, 0, len(out.Comments))
	for _, ac := range out.Comments {
		author := findUser(out.Users, ac.AuthorID)
		if author == nil {
			author, err = c.getUser(ctx, ac.AuthorID)
			if err != nil {
				return nil, err
			}
		}
		comments = append(comments, Comment{
			ID:        ac.ID,
			Body:      ac.Body,
			Public:    ac.Public,
			Author:    author,
			CreatedAt: ac.CreatedAt,
		})
	}
	return comments, nil
}

func (c *httpClient) SearchUsers(ctx context.Context, q UserQuery) ([]User, error) {
	req := c.client.R().SetContext(ctx)
	if q.ExternalID != "" {
		req.SetQueryParam("external_id", q.ExternalID)
	} else if q.Email != "" {
		req.SetQueryParam("query", "email:"+q.Email)
	}
	var out struct {
		Users []User `json:"users"`
	}
	resp, err := req.SetResult(&out).Get("/users/search.json")
	if err != nil {
		return nil, fmt.Errorf("%w: search users: %v", errs.ErrRemoteFetch, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: search users: status %d", errs.ErrRemoteFetch, resp.StatusCode())
	}
	return out.Users, nil
}

func (c *httpClient) CreateUser(ctx context.Context, u *User) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]*User{"user": u}).
		SetResult(&out).
		Post("/users.json")
	if err != nil {
		return nil, fmt.Errorf("%w: create user: %v", errs.ErrRemoteFetch, err)
	}
	if resp.StatusCode() == http.StatusUnprocessableEntity && strings.Contains(resp.String(), "DuplicateValue") {
		return nil, errs.ErrDuplicateRemoteUser
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: create user: status %d", errs.ErrRemoteFetch, resp.StatusCode())
	}
	return &out.User, nil
}

func (c *httpClient) UpdateUser(ctx context.Context, u *User) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(map[string]*User{"user": u}).
		SetResult(&out).
		Put(fmt.Sprintf("/users/%d.json", u.ID))
	if err != nil {
		return nil, fmt.Errorf("%w: update user %d: %v", errs.ErrRemoteFetch, u.ID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: update user %d: status %d", errs.ErrRemoteFetch, u.ID, resp.StatusCode())
	}
	return &out.User, nil
}

func (c *httpClient) ListIdentities(ctx context.Context, userID int64) ([]Identity, error) {
	var out struct {
		Identities []Identity `json:"identities"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/users/%d/identities.json", userID))
	if err != nil {
		return nil, fmt.Errorf("%w: list identities for user %d: %v", errs.ErrRemoteFetch, userID, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: list identities for user %d: status %d", errs.ErrRemoteFetch, userID, resp.StatusCode())
	}
	return out.Identities, nil
}

func (c *httpClient) MakeIdentityPrimary(ctx context.Context, userID, identityID int64) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Put(fmt.Sprintf("/users/%d/identities/%d/make_primary", userID, identityID))
	if err != nil {
		return fmt.Errorf("%w: make identity %d primary: %v", errs.ErrRemoteFetch, identityID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: make identity %d primary: status %d", errs.ErrRemoteFetch, identityID, resp.StatusCode())
	}
	return nil
}

func (c *httpClient) getUser(ctx context.Context, id int64) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/users/%d.json", id))
	if err != nil {
		return nil, fmt.Errorf("%w: get user %d: %v", errs.ErrRemoteFetch, id, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: get user %d: status %d", errs.ErrRemoteFetch, id, resp.StatusCode())
	}
	return &out.User, nil
}

func findUser(users []User, id int64) *User {
	for i := range users {
		if users[i].ID == id {
			return &users[i]
		}
	}
	return nil
}
