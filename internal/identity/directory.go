package identity

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"

	"github.com/supportops/zendesk-sync/internal/model"
)

// LocalAccountDirectory looks up accounts in the consuming application's own
// user system. The bridge ships a gorm-backed implementation over the
// local_accounts table; deployments embedding the bridge can supply their own.
type LocalAccountDirectory interface {
	// ByExternalID resolves the external-id hint carried on a Zendesk user
	// to a local account. A missing account is (nil, nil), not an error.
	ByExternalID(ctx context.Context, externalID string) (*model.LocalAccount, error)
}

type gormDirectory struct {
	db *gorm.DB
}

// NewDirectory returns the default gorm-backed directory. The external id we
// stamp onto Zendesk users is the local account's numeric primary key.
func NewDirectory(db *gorm.DB) LocalAccountDirectory {
	return &gormDirectory{db: db}
}

func (d *gormDirectory) ByExternalID(ctx context.Context, externalID string) (*model.LocalAccount, error) {
	id, err := strconv.ParseUint(externalID, 10, 64)
	if err != nil {
		return nil, nil
	}
	var acct model.LocalAccount
	if err := d.db.WithContext(ctx).First(&acct, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &acct, nil
}
