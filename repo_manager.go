package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Profiles() Profiles
	Sessions() SessionStore
}

type mngr struct {
	db       *bun.DB
	users    Users
	profiles Profiles
	sessions SessionStore
}

// RepositoryOption customizes the repository manager
type RepositoryOption func(*mngr)

// WithSessionStore replaces the default SQL session store, e.g. with Redis
func WithSessionStore(store SessionStore) RepositoryOption {
	return func(m *mngr) {
		if store != nil {
			m.sessions = store
		}
	}
}

// WithUsersRepository replaces the default users repository
func WithUsersRepository(users Users) RepositoryOption {
	return func(m *mngr) {
		if users != nil {
			m.users = users
		}
	}
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryOption) RepositoryManager {
	m := &mngr{
		db:       db,
		users:    NewUsersRepository(db),
		profiles: NewProfilesRepository(db),
		sessions: NewSQLSessionStore(db),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

func (m mngr) Sessions() SessionStore {
	return m.sessions
}
