package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PendingBusinessNumber marks advertiser companies created before the
// business registration number was supplied.
const PendingBusinessNumber = "PENDING"

// Profiles creates the role specific profile that accompanies a user
type Profiles interface {
	EnsureForUser(ctx context.Context, user *User) error
	EnsureForUserTx(ctx context.Context, tx bun.IDB, user *User) error
}

type profiles struct {
	db  *bun.DB
	now func() time.Time
}

func NewProfilesRepository(db *bun.DB) Profiles {
	return &profiles{db: db, now: time.Now}
}

func (p *profiles) EnsureForUser(ctx context.Context, user *User) error {
	return p.EnsureForUserTx(ctx, p.db, user)
}

// EnsureForUserTx inserts the profile for the user role, leaving an
// existing profile untouched. ADMIN users get no profile.
func (p *profiles) EnsureForUserTx(ctx context.Context, tx bun.IDB, user *User) error {
	if user == nil || user.ID == uuid.Nil {
		return NewInvalidInputError("user is required", nil)
	}

	now := p.now().UTC()
	switch user.Role {
	case RoleInfluencer:
		_, err := tx.NewInsert().
			Model(&InfluencerProfile{
				UserID:      user.ID,
				DisplayName: user.DisplayName,
				Categories:  "",
				CreatedAt:   now,
			}).
			Ignore().
			Exec(ctx)
		return err
	case RoleAdvertiser:
		_, err := tx.NewInsert().
			Model(&AdvertiserCompany{
				UserID:         user.ID,
				CompanyName:    user.DisplayName,
				BusinessNumber: PendingBusinessNumber,
				CreatedAt:      now,
			}).
			Ignore().
			Exec(ctx)
		return err
	default:
		return nil
	}
}
