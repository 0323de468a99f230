package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/inflowhq/go-auth"
	"github.com/uptrace/bun"
)

// UserIdentities stores provider identities using Bun.
// It satisfies social.IdentityRepository.
type UserIdentities struct {
	now func() time.Time
}

// NewUserIdentities creates a new repository.
func NewUserIdentities(now func() time.Time) *UserIdentities {
	if now == nil {
		now = time.Now
	}
	return &UserIdentities{now: now}
}

// FindByProviderUser implements social.IdentityRepository.
func (r *UserIdentities) FindByProviderUser(ctx context.Context, db bun.IDB, provider, providerUserID string) (*auth.UserIdentity, error) {
	record := &auth.UserIdentity{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.provider = ?", provider).
		Where("?TableAlias.provider_user_id = ?", providerUserID).
		Limit(1).
		Scan(ctx)
	return orNil(record, err)
}

// FindByUserAndProvider implements social.IdentityRepository.
func (r *UserIdentities) FindByUserAndProvider(ctx context.Context, db bun.IDB, userID uuid.UUID, provider string) (*auth.UserIdentity, error) {
	record := &auth.UserIdentity{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.provider = ?", provider).
		Limit(1).
		Scan(ctx)
	return orNil(record, err)
}

// ListByUser implements social.IdentityRepository.
func (r *UserIdentities) ListByUser(ctx context.Context, db bun.IDB, userID uuid.UUID) ([]*auth.UserIdentity, error) {
	records := []*auth.UserIdentity{}
	err := db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("linked_at DESC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return records, nil
}

// Attach implements social.IdentityRepository.
func (r *UserIdentities) Attach(ctx context.Context, db bun.IDB, identity *auth.UserIdentity) error {
	now := r.now().UTC()
	if identity.ID == uuid.Nil {
		identity.ID = uuid.New()
	}
	if identity.LinkedAt.IsZero() {
		identity.LinkedAt = now
	}
	identity.UpdatedAt = now

	_, err := db.NewInsert().Model(identity).Exec(ctx)
	return err
}

// Touch implements social.IdentityRepository.
func (r *UserIdentities) Touch(ctx context.Context, db bun.IDB, identity *auth.UserIdentity, email string, at time.Time) error {
	if email != "" {
		identity.ProviderEmail = email
	}
	identity.UpdatedAt = at.UTC()

	_, err := db.NewUpdate().
		Model(identity).
		Column("provider_email", "updated_at").
		WherePK().
		Exec(ctx)
	return err
}

// DeleteByUserAndProvider implements social.IdentityRepository.
func (r *UserIdentities) DeleteByUserAndProvider(ctx context.Context, db bun.IDB, userID uuid.UUID, provider string) (int, error) {
	res, err := db.NewDelete().
		Model((*auth.UserIdentity)(nil)).
		Where("user_id = ?", userID).
		Where("provider = ?", provider).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// CountByUser implements social.IdentityRepository.
func (r *UserIdentities) CountByUser(ctx context.Context, db bun.IDB, userID uuid.UUID) (int, error) {
	return db.NewSelect().
		Model((*auth.UserIdentity)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Count(ctx)
}

func orNil(record *auth.UserIdentity, err error) (*auth.UserIdentity, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}
