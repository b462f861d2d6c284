package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/supportops/zendesk-sync/internal/errs"
	"github.com/supportops/zendesk-sync/internal/model"
	"github.com/supportops/zendesk-sync/internal/zendesk"
	"github.com/supportops/zendesk-sync/internal/zendesk/zendesktest"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.LocalAccount{}, &model.RemoteIdentity{}))
	return db
}

func newTestResolver(db *gorm.DB, fake *zendesktest.Fake) *Resolver {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewResolver(fake, NewDirectory(db), log)
}

func TestUpsertFromRemote(t *testing.T) {
	db := setupTestDB(t)
	r := newTestResolver(db, zendesktest.New())
	ctx := context.Background()

	remote := &zendesk.User{
		ID:        100,
		Name:      "Ada Lovelace",
		Email:     "ada@example.com",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("creates the cached row", func(t *testing.T) {
		ident, err := r.UpsertFromRemote(ctx, db, remote)
		require.NoError(t, err)
		assert.Equal(t, int64(100), ident.ZendeskID)
		assert.Equal(t, "Ada Lovelace", ident.Name)
		assert.Nil(t, ident.LocalAccountID)
	})

	t.Run("second call updates in place", func(t *testing.T) {
		remote.Name = "Ada K. Lovelace"
		ident, err := r.UpsertFromRemote(ctx, db, remote)
		require.NoError(t, err)
		assert.Equal(t, "Ada K. Lovelace", ident.Name)

		var count int64
		require.NoError(t, db.Model(&model.RemoteIdentity{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("external id links the local account", func(t *testing.T) {
		acct := model.LocalAccount{Name: "Ada", Email: "ada@example.com"}
		require.NoError(t, db.Create(&acct).Error)

		remote.ExternalID = localAccountExternalID(&acct)
		ident, err := r.UpsertFromRemote(ctx, db, remote)
		require.NoError(t, err)
		require.NotNil(t, ident.LocalAccountID)
		assert.Equal(t, acct.ID, *ident.LocalAccountID)
	})

	t.Run("unmatched external id clears the link", func(t *testing.T) {
		remote.ExternalID = "999999"
		ident, err := r.UpsertFromRemote(ctx, db, remote)
		require.NoError(t, err)
		assert.Nil(t, ident.LocalAccountID)
	})
}

func TestResolveRemoteForLocal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	acct := model.LocalAccount{Name: "Ada", Email: "ada@example.com", EmailVerified: true}
	require.NoError(t, db.Create(&acct).Error)

	t.Run("external id is a definite match", func(t *testing.T) {
		fake := zendesktest.New()
		fake.Users = []zendesk.User{{ID: 100, ExternalID: localAccountExternalID(&acct), Email: "old@example.com"}}
		r := newTestResolver(db, fake)

		remote, strength, err := r.ResolveRemoteForLocal(ctx, &acct)
		require.NoError(t, err)
		assert.Equal(t, MatchDefinite, strength)
		assert.Equal(t, int64(100), remote.ID)
	})

	t.Run("verified email is a verified match", func(t *testing.T) {
		fake := zendesktest.New()
		fake.Users = []zendesk.User{{ID: 101, Email: "ada@example.com"}}
		r := newTestResolver(db, fake)

		remote, strength, err := r.ResolveRemoteForLocal(ctx, &acct)
		require.NoError(t, err)
		assert.Equal(t, MatchVerified, strength)
		assert.Equal(t, int64(101), remote.ID)
	})

	t.Run("unverified email is a weak match", func(t *testing.T) {
		unverified := model.LocalAccount{Name: "Bob", Email: "bob@example.com"}
		require.NoError(t, db.Create(&unverified).Error)

		fake := zendesktest.New()
		fake.Users = []zendesk.User{{ID: 102, Email: "bob@example.com"}}
		r := newTestResolver(db, fake)

		_, strength, err := r.ResolveRemoteForLocal(ctx, &unverified)
		require.NoError(t, err)
		assert.Equal(t, MatchWeak, strength)
	})

	t.Run("no tier matches", func(t *testing.T) {
		r := newTestResolver(db, zendesktest.New())
		_, strength, err := r.ResolveRemoteForLocal(ctx, &acct)
		assert.ErrorIs(t, err, errs.ErrNoRemoteMatch)
		assert.Equal(t, MatchNone, strength)
	})
}

func TestGetOrCreateRemoteForLocal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	acct := model.LocalAccount{Name: "Ada", Email: "ada@example.com", EmailVerified: true}
	require.NoError(t, db.Create(&acct).Error)

	t.Run("creates when nothing matches", func(t *testing.T) {
		fake := zendesktest.New()
		r := newTestResolver(db, fake)

		remote, strength, err := r.GetOrCreateRemoteForLocal(ctx, &acct)
		require.NoError(t, err)
		assert.Equal(t, MatchDefinite, strength)
		assert.Equal(t, "ada@example.com", remote.Email)
		assert.Equal(t, localAccountExternalID(&acct), remote.ExternalID)
		require.Len(t, fake.CreatedUsers, 1)
	})

	t.Run("duplicate rejection falls back to resolution", func(t *testing.T) {
		fake := zendesktest.New()
		fake.CreateErr = errs.ErrDuplicateRemoteUser
		fake.Users = []zendesk.User{{ID: 200, Email: "ada@example.com"}}
		r := newTestResolver(db, fake)

		remote, err := r.CreateRemoteForLocal(ctx, &acct)
		require.NoError(t, err)
		assert.Equal(t, int64(200), remote.ID)
	})

	t.Run("other create errors propagate", func(t *testing.T) {
		fake := zendesktest.New()
		fake.CreateErr = errors.New("rate limited")
		r := newTestResolver(db, fake)

		_, err := r.CreateRemoteForLocal(ctx, &acct)
		require.Error(t, err)
		assert.NotErrorIs(t, err, errs.ErrNoRemoteMatch)
	})
}

func TestUpdateRemoteForLocal(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	acct := model.LocalAccount{Name: "Ada Lovelace", Email: "new@example.com"}
	require.NoError(t, db.Create(&acct).Error)

	t.Run("pushes changed fields", func(t *testing.T) {
		fake := zendesktest.New()
		fake.Identities[300] = []zendesk.Identity{
			{ID: 1, UserID: 300, Value: "old@example.com", Primary: true},
			{ID: 2, UserID: 300, Value: "new@example.com"},
		}
		r := newTestResolver(db, fake)

		remote := &zendesk.User{ID: 300, Name: "Ada", Email: "old@example.com"}
		require.NoError(t, r.UpdateRemoteForLocal(ctx, &acct, remote))

		require.Len(t, fake.UpdatedUsers, 1)
		assert.Equal(t, "Ada Lovelace", fake.UpdatedUsers[0].Name)
		assert.Equal(t, "new@example.com", fake.UpdatedUsers[0].Email)
		// The identity for the new address was promoted to primary.
		assert.Equal(t, []int64{2}, fake.PromotedIDs)
	})

	t.Run("no changes means no calls", func(t *testing.T) {
		fake := zendesktest.New()
		r := newTestResolver(db, fake)

		remote := &zendesk.User{
			ID:         301,
			Name:       "Ada Lovelace",
			Email:      "new@example.com",
			ExternalID: localAccountExternalID(&acct),
		}
		require.NoError(t, r.UpdateRemoteForLocal(ctx, &acct, remote))
		assert.Empty(t, fake.UpdatedUsers)
		assert.Empty(t, fake.PromotedIDs)
	})
}

func TestDirectoryByExternalID(t *testing.T) {
	db := setupTestDB(t)
	dir := NewDirectory(db)
	ctx := context.Background()

	acct := model.LocalAccount{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, db.Create(&acct).Error)

	t.Run("numeric id resolves", func(t *testing.T) {
		got, err := dir.ByExternalID(ctx, localAccountExternalID(&acct))
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, acct.ID, got.ID)
	})

	t.Run("non-numeric id is a miss, not an error", func(t *testing.T) {
		got, err := dir.ByExternalID(ctx, "not-a-number")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unknown id is a miss", func(t *testing.T) {
		got, err := dir.ByExternalID(ctx, "424242")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
