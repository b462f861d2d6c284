package zendesk

import (
	"encoding/json"
	"time"
)

// User is a user record as the Zendesk API represents it. Distinct from both
// the local account and the cached identity row; mapping between the three is
// always explicit.
type User struct {
	ID             int64  `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	Email          string `json:"email,omitempty"`
	ExternalID     string `json:"external_id,omitempty"`
	RemotePhotoURL string `json:"remote_photo_url,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Identity is one of a Zendesk user's contact identities (email, twitter, ...).
type Identity struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	Verified bool   `json:"verified"`
	Primary  bool   `json:"primary"`
}

// Ticket is the authoritative remote ticket state, with the requester already
// resolved to a full user record.
type Ticket struct {
	ID           int64           `json:"id"`
	URL          string          `json:"url"`
	Subject      string          `json:"subject"`
	Description  string          `json:"description"`
	Status       string          `json:"status"`
	CustomFields json.RawMessage `json:"custom_fields"`
	Tags         []string        `json:"tags"`
	Requester    *User           `json:"requester"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Comment is one remote ticket comment, with its author resolved.
type Comment struct {
	ID     int64  `json:"id"`
	Body   string `json:"body"`
	Public bool   `json:"public"`
	Author *User  `json:"author"`

	CreatedAt time.Time `json:"created_at"`
}

// UserQuery narrows a user search. Exactly one criterion is used: ExternalID
// when set, otherwise Email.
type UserQuery struct {
	ExternalID string
	Email      string
}
