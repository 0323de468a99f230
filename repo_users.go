package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

// Users is the credential store
type Users interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)

	Create(ctx context.Context, user *User) (*User, error)
	CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	UpdateColumnsTx(ctx context.Context, tx bun.IDB, user *User, columns ...string) error

	UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus) error
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus) error
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	TouchLastLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	SetPasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error

	CountIdentities(ctx context.Context, userID uuid.UUID) (int, error)
	CountIdentitiesTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error)
	ListIdentities(ctx context.Context, userID uuid.UUID) ([]*UserIdentity, error)
	AvailableUsernameTx(ctx context.Context, tx bun.IDB, base string) (string, error)
}

type users struct {
	db  *bun.DB
	now func() time.Time
}

var _ Users = (*users)(nil)

type UsersOption func(*users)

// WithUsersClock injects a custom clock
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *users) {
		if now != nil {
			u.now = now
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	u := &users{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u
}

func (a *users) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.FindByIDTx(ctx, a.db, id)
}

func (a *users) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.findOneTx(ctx, tx, "id", id)
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.FindByEmailTx(ctx, a.db, email)
}

func (a *users) FindByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, notFound("email", email)
	}
	return a.findOneTx(ctx, tx, "email", email)
}

func (a *users) FindByUsername(ctx context.Context, username string) (*User, error) {
	return a.FindByUsernameTx(ctx, a.db, username)
}

func (a *users) FindByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, notFound("username", username)
	}
	return a.findOneTx(ctx, tx, "username", username)
}

func (a *users) findOneTx(ctx context.Context, tx bun.IDB, column string, value any) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, notFound(column, value)
		}
		return nil, err
	}
	return record, nil
}

func (a *users) Create(ctx context.Context, user *User) (*User, error) {
	return a.CreateTx(ctx, a.db, user)
}

// CreateTx inserts the user after checking email and username are unclaimed.
// Unique violations raised by the database map to the same Conflict errors.
func (a *users) CreateTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user == nil {
		return nil, NewInvalidInputError("user is required", nil)
	}

	a.prepareUserDefaults(user)

	if email := user.EmailAddress(); email != "" {
		if _, err := a.FindByEmailTx(ctx, tx, email); err == nil {
			return nil, ErrEmailTaken
		} else if !IsNotFound(err) {
			return nil, err
		}
	}

	if _, err := a.FindByUsernameTx(ctx, tx, user.Username); err == nil {
		return nil, ErrUsernameTaken
	} else if !IsNotFound(err) {
		return nil, err
	}

	if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			if strings.Contains(strings.ToLower(err.Error()), "username") {
				return nil, ErrUsernameTaken
			}
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	return user, nil
}

func (a *users) UpdateColumnsTx(ctx context.Context, tx bun.IDB, user *User, columns ...string) error {
	user.UpdatedAt = a.now().UTC()
	columns = append(columns, "updated_at")

	res, err := tx.NewUpdate().
		Model(user).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, user.ID)
}

func (a *users) UpdateStatus(ctx context.Context, id uuid.UUID, status UserStatus) error {
	return a.UpdateStatusTx(ctx, a.db, id, status)
}

func (a *users) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status UserStatus) error {
	return a.UpdateColumnsTx(ctx, tx, &User{ID: id, Status: status}, "status")
}

func (a *users) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return a.TouchLastLoginTx(ctx, a.db, id, at)
}

func (a *users) TouchLastLoginTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	at = at.UTC()
	return a.UpdateColumnsTx(ctx, tx, &User{ID: id, LastLoginAt: &at}, "last_login_at")
}

func (a *users) SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return a.SetPasswordHashTx(ctx, a.db, id, hash)
}

func (a *users) SetPasswordHashTx(ctx context.Context, tx bun.IDB, id uuid.UUID, hash string) error {
	if hash == "" {
		return ErrNoEmptyString
	}
	return a.UpdateColumnsTx(ctx, tx, &User{ID: id, PasswordHash: &hash}, "password_hash")
}

func (a *users) CountIdentities(ctx context.Context, userID uuid.UUID) (int, error) {
	return a.CountIdentitiesTx(ctx, a.db, userID)
}

func (a *users) CountIdentitiesTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int, error) {
	return tx.NewSelect().
		Model((*UserIdentity)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Count(ctx)
}

func (a *users) ListIdentities(ctx context.Context, userID uuid.UUID) ([]*UserIdentity, error) {
	records := []*UserIdentity{}
	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Order("linked_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// AvailableUsernameTx returns base, or base with the first free numeric suffix.
func (a *users) AvailableUsernameTx(ctx context.Context, tx bun.IDB, base string) (string, error) {
	base = sanitizeUsername(base)
	if base == "" {
		base = "user"
	}

	candidate := base
	for i := 1; i <= 50; i++ {
		_, err := a.FindByUsernameTx(ctx, tx, candidate)
		if IsNotFound(err) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}

	return fmt.Sprintf("%s_%s", base, uuid.NewString()[:8]), nil
}

func (a *users) prepareUserDefaults(user *User) {
	now := a.now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = RoleInfluencer
	}
	if user.Status == "" {
		user.Status = UserStatusActive
	}
	if user.Email != nil {
		user.Email = optionalString(NormalizeEmail(*user.Email))
	}
	if user.Username == "" {
		user.Username = getUsername("", user.EmailAddress())
	}
	if user.DisplayName == "" {
		user.DisplayName = user.Username
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return sanitizeUsername(username)
}

func sanitizeUsername(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsNotFound reports storage misses from bun scans and repository errors
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, ErrUserNotFound) || repository.IsRecordNotFound(err)
}

func notFound(column string, value any) error {
	return repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			column: fmt.Sprint(value),
		})
}

func requireAffected(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound("id", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
