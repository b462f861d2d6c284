package errs

import "errors"

// Parse-time errors raised at the event store boundary. They never reach the
// reconciliation pipeline; the transport layer turns them into rejected
// requests.
var (
	ErrMalformedPayload = errors.New("payload is not valid JSON")
	ErrMissingTicketID  = errors.New("payload has no numeric ticket id")
)

// Reconciliation errors raised inside the synchronizer and propagated up
// through the pipeline to the caller.
var (
	ErrRemoteFetch    = errors.New("zendesk fetch failed")
	ErrUnknownStatus  = errors.New("unknown ticket status")
	ErrTicketNotFound = errors.New("ticket not found")
)

// Identity resolution errors.
var (
	ErrNoRemoteMatch       = errors.New("no matching zendesk user")
	ErrDuplicateRemoteUser = errors.New("zendesk user already exists")
)
