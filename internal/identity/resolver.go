// Package identity maps between the three kinds of user this service touches:
// the local account, the cached remote-identity row, and the live Zendesk user
// object. The three are deliberately distinct types with explicit mapping
// functions; they are never conflated.
package identity

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"gorm.io/gorm"

	"github.com/supportops/zendesk-sync/internal/errs"
	"github.com/supportops/zendesk-sync/internal/model"
	"github.com/supportops/zendesk-sync/internal/zendesk"
)

// Match grades how definite a local-to-remote user resolution is. Identity
// correlation across two independent user systems is probabilistic; callers
// get the strength alongside the match and decide whether to trust it.
type Match int

const (
	MatchNone Match = iota
	MatchWeak
	MatchVerified
	MatchDefinite
)

// Resolver implements both mapping directions. Deployments can swap it out
// through the Resolver interface used by the synchronizer.
type Resolver struct {
	client   zendesk.Client
	accounts LocalAccountDirectory
	log      *slog.Logger
}

func NewResolver(client zendesk.Client, accounts LocalAccountDirectory, log *slog.Logger) *Resolver {
	return &Resolver{client: client, accounts: accounts, log: log}
}

// UpsertFromRemote persists a live Zendesk user as a cached RemoteIdentity
// row keyed by its Zendesk id. The local-account link is recomputed from the
// external-id hint on every call; no matching account simply leaves the link
// empty. Calling twice with identical input yields no additional mutation.
// No network calls happen here — the caller already fetched the user.
func (r *Resolver) UpsertFromRemote(ctx context.Context, db *gorm.DB, remote *zendesk.User) (*model.RemoteIdentity, error) {
	var localID *uint64
	if remote.ExternalID != "" {
		acct, err := r.accounts.ByExternalID(ctx, remote.ExternalID)
		if err != nil {
			return nil, err
		}
		if acct != nil {
			localID = &acct.ID
		}
	}

	var ident model.RemoteIdentity
	err := db.WithContext(ctx).First(&ident, "zendesk_id = ?", remote.ID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		ident = model.RemoteIdentity{
			ZendeskID:      remote.ID,
			Name:           remote.Name,
			Email:          remote.Email,
			LocalAccountID: localID,
			CreatedAt:      remote.CreatedAt,
		}
		if err := db.WithContext(ctx).Create(&ident).Error; err != nil {
			return nil, err
		}
		return &ident, nil
	case err != nil:
		return nil, err
	}

	err = db.WithContext(ctx).Model(&ident).Updates(map[string]interface{}{
		"name":             remote.Name,
		"email":            remote.Email,
		"local_account_id": localID,
		"created_at":       remote.CreatedAt,
	}).Error
	if err != nil {
		return nil, err
	}
	ident.Name = remote.Name
	ident.Email = remote.Email
	ident.LocalAccountID = localID
	ident.CreatedAt = remote.CreatedAt
	return &ident, nil
}

// localAccountName and localAccountExternalID are the only places local
// account data is extracted for injection into Zendesk. Both always require
// the account argument.
func localAccountName(acct *model.LocalAccount) string {
	return acct.Name
}

func localAccountExternalID(acct *model.LocalAccount) string {
	return strconv.FormatUint(acct.ID, 10)
}

// ResolveRemoteForLocal attempts to find the Zendesk user corresponding to a
// local account. Used only when initiating contact from the local side, never
// on the inbound sync path. The tiers: external-id tag is a definite match;
// the account email gives a verified or weak match depending on the account's
// email verification state; otherwise ErrNoRemoteMatch.
func (r *Resolver) ResolveRemoteForLocal(ctx context.Context, acct *model.LocalAccount) (*zendesk.User, Match, error) {
	users, err := r.client.SearchUsers(ctx, zendesk.UserQuery{ExternalID: localAccountExternalID(acct)})
	if err != nil {
		return nil, MatchNone, err
	}
	if len(users) > 0 {
		return &users[0], MatchDefinite, nil
	}

	if acct.Email != "" {
		users, err = r.client.SearchUsers(ctx, zendesk.UserQuery{Email: acct.Email})
		if err != nil {
			return nil, MatchNone, err
		}
		if len(users) > 0 {
			strength := MatchWeak
			if acct.EmailVerified {
				strength = MatchVerified
			}
			return &users[0], strength, nil
		}
	}

	return nil, MatchNone, errs.ErrNoRemoteMatch
}

// CreateRemoteForLocal creates a Zendesk user from the local account's
// details. A duplicate rejection means someone created the user between our
// search and create; fall back to one more resolution attempt.
func (r *Resolver) CreateRemoteForLocal(ctx context.Context, acct *model.LocalAccount) (*zendesk.User, error) {
	remote, err := r.client.CreateUser(ctx, &zendesk.User{
		Name:       localAccountName(acct),
		ExternalID: localAccountExternalID(acct),
		Email:      acct.Email,
	})
	if err == nil {
		return remote, nil
	}
	if errors.Is(err, errs.ErrDuplicateRemoteUser) {
		r.log.Warn("zendesk user already exists, re-resolving", "account_id", acct.ID)
		remote, _, rerr := r.ResolveRemoteForLocal(ctx, acct)
		if rerr != nil {
			return nil, rerr
		}
		return remote, nil
	}
	return nil, err
}

// GetOrCreateRemoteForLocal resolves, creating the remote user when no tier
// matched. A created user is a definite match by construction.
func (r *Resolver) GetOrCreateRemoteForLocal(ctx context.Context, acct *model.LocalAccount) (*zendesk.User, Match, error) {
	remote, strength, err := r.ResolveRemoteForLocal(ctx, acct)
	if err == nil {
		return remote, strength, nil
	}
	if !errors.Is(err, errs.ErrNoRemoteMatch) {
		return nil, MatchNone, err
	}
	remote, err = r.CreateRemoteForLocal(ctx, acct)
	if err != nil {
		return nil, MatchNone, err
	}
	return remote, MatchDefinite, nil
}

// UpdateRemoteForLocal pushes changed local account data to the matched
// Zendesk user. When the email changed, the freshly added identity is
// promoted to primary so replies go to the current address.
func (r *Resolver) UpdateRemoteForLocal(ctx context.Context, acct *model.LocalAccount, remote *zendesk.User) error {
	changed := false
	emailChanged := false

	if name := localAccountName(acct); name != remote.Name {
		remote.Name = name
		changed = true
	}
	if extID := localAccountExternalID(acct); extID != remote.ExternalID {
		remote.ExternalID = extID
		changed = true
	}
	if acct.Email != "" && acct.Email != remote.Email {
		remote.Email = acct.Email
		changed = true
		emailChanged = true
	}

	if changed {
		updated, err := r.client.UpdateUser(ctx, remote)
		if err != nil {
			return err
		}
		*remote = *updated
	}

	if emailChanged {
		identities, err := r.client.ListIdentities(ctx, remote.ID)
		if err != nil {
			return err
		}
		for _, ident := range identities {
			if ident.Value == acct.Email {
				return r.client.MakeIdentityPrimary(ctx, remote.ID, ident.ID)
			}
		}
	}
	return nil
}

// UpdateOrCreateRemote reconciles the remote side with the local account:
// definite matches get updated in place, anything weaker gets a fresh user.
func (r *Resolver) UpdateOrCreateRemote(ctx context.Context, acct *model.LocalAccount) (*zendesk.User, error) {
	remote, strength, err := r.ResolveRemoteForLocal(ctx, acct)
	if err != nil && !errors.Is(err, errs.ErrNoRemoteMatch) {
		return nil, err
	}
	if remote != nil && strength == MatchDefinite {
		if err := r.UpdateRemoteForLocal(ctx, acct, remote); err != nil {
			return nil, err
		}
		return remote, nil
	}
	return r.CreateRemoteForLocal(ctx, acct)
}
