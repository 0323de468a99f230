package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/inflowhq/go-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/mattn/go-sqlite3"
)

const (
	sqliteCreateUsers          = "CREATE TABLE users (id TEXT NOT NULL PRIMARY KEY);"
	sqliteCreateUserIdentities = `CREATE TABLE user_identities (
    id TEXT NOT NULL PRIMARY KEY,
    user_id TEXT NOT NULL,
    provider TEXT NOT NULL,
    provider_user_id TEXT NOT NULL,
    provider_email TEXT,
    linked_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
    CONSTRAINT uq_user_identities_user_provider UNIQUE (user_id, provider),
    CONSTRAINT uq_user_identities_provider_user UNIQUE (provider, provider_user_id)
);`
)

func setupUserIdentities(t *testing.T) (*UserIdentities, *bun.DB, *time.Time) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	_, err = bunDB.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)
	_, err = bunDB.Exec(sqliteCreateUsers)
	require.NoError(t, err)
	_, err = bunDB.Exec(sqliteCreateUserIdentities)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = bunDB.Close()
	})

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo := NewUserIdentities(func() time.Time { return now })
	return repo, bunDB, &now
}

func insertUser(t *testing.T, db *bun.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec("INSERT INTO users (id) VALUES (?)", id.String())
	require.NoError(t, err)
	return id
}

func TestUserIdentitiesAttachAndFind(t *testing.T) {
	repo, db, _ := setupUserIdentities(t)
	ctx := context.Background()
	userID := insertUser(t, db)

	identity := &auth.UserIdentity{
		UserID:         userID,
		Provider:       "kakao",
		ProviderUserID: "4012",
		ProviderEmail:  "kim@kakao.com",
	}
	require.NoError(t, repo.Attach(ctx, db, identity))
	assert.NotEqual(t, uuid.Nil, identity.ID)
	assert.False(t, identity.LinkedAt.IsZero())

	found, err := repo.FindByProviderUser(ctx, db, "kakao", "4012")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, identity.ID, found.ID)
	assert.Equal(t, "kim@kakao.com", found.ProviderEmail)

	byUser, err := repo.FindByUserAndProvider(ctx, db, userID, "kakao")
	require.NoError(t, err)
	require.NotNil(t, byUser)
	assert.Equal(t, identity.ID, byUser.ID)

	missing, err := repo.FindByProviderUser(ctx, db, "kakao", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = repo.FindByUserAndProvider(ctx, db, userID, "naver")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUserIdentitiesUniqueness(t *testing.T) {
	repo, db, _ := setupUserIdentities(t)
	ctx := context.Background()
	first := insertUser(t, db)
	second := insertUser(t, db)

	require.NoError(t, repo.Attach(ctx, db, &auth.UserIdentity{UserID: first, Provider: "google", ProviderUserID: "g-1"}))

	err := repo.Attach(ctx, db, &auth.UserIdentity{UserID: second, Provider: "google", ProviderUserID: "g-1"})
	assert.Error(t, err, "one provider account belongs to one user")

	err = repo.Attach(ctx, db, &auth.UserIdentity{UserID: first, Provider: "google", ProviderUserID: "g-2"})
	assert.Error(t, err, "one account per provider per user")
}

func TestUserIdentitiesTouch(t *testing.T) {
	repo, db, _ := setupUserIdentities(t)
	ctx := context.Background()
	userID := insertUser(t, db)

	identity := &auth.UserIdentity{UserID: userID, Provider: "naver", ProviderUserID: "n-1", ProviderEmail: "old@naver.com"}
	require.NoError(t, repo.Attach(ctx, db, identity))

	later := identity.LinkedAt.Add(time.Hour)
	require.NoError(t, repo.Touch(ctx, db, identity, "", later))

	found, err := repo.FindByProviderUser(ctx, db, "naver", "n-1")
	require.NoError(t, err)
	assert.Equal(t, "old@naver.com", found.ProviderEmail, "an empty email keeps the stored one")
	assert.True(t, found.UpdatedAt.Equal(later))

	require.NoError(t, repo.Touch(ctx, db, identity, "new@naver.com", later.Add(time.Minute)))
	found, err = repo.FindByProviderUser(ctx, db, "naver", "n-1")
	require.NoError(t, err)
	assert.Equal(t, "new@naver.com", found.ProviderEmail)
	assert.True(t, found.LinkedAt.Equal(identity.LinkedAt))
}

func TestUserIdentitiesListCountDelete(t *testing.T) {
	repo, db, now := setupUserIdentities(t)
	ctx := context.Background()
	userID := insertUser(t, db)

	require.NoError(t, repo.Attach(ctx, db, &auth.UserIdentity{UserID: userID, Provider: "google", ProviderUserID: "g-1"}))
	*now = now.Add(time.Minute)
	require.NoError(t, repo.Attach(ctx, db, &auth.UserIdentity{UserID: userID, Provider: "kakao", ProviderUserID: "k-1"}))

	list, err := repo.ListByUser(ctx, db, userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "kakao", list[0].Provider)
	assert.Equal(t, "google", list[1].Provider)

	count, err := repo.CountByUser(ctx, db, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	n, err := repo.DeleteByUserAndProvider(ctx, db, userID, "google")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.DeleteByUserAndProvider(ctx, db, userID, "google")
	require.NoError(t, err)
	assert.Zero(t, n)

	empty, err := repo.ListByUser(ctx, db, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUserIdentitiesCascadeOnUserDelete(t *testing.T) {
	repo, db, _ := setupUserIdentities(t)
	ctx := context.Background()
	userID := insertUser(t, db)

	require.NoError(t, repo.Attach(ctx, db, &auth.UserIdentity{UserID: userID, Provider: "google", ProviderUserID: "g-1"}))
	_, err := db.Exec("DELETE FROM users WHERE id = ?", userID.String())
	require.NoError(t, err)

	count, err := repo.CountByUser(ctx, db, userID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
