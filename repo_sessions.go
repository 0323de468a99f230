package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SessionStore persists the refresh session whitelist.
// Implementations must make Rotate and InsertCapped atomic.
type SessionStore interface {
	Insert(ctx context.Context, params NewSessionParams) (*RefreshSession, error)
	// InsertCapped removes the user's expired sessions, keeps the newest
	// keep-1 and inserts the new one.
	InsertCapped(ctx context.Context, params NewSessionParams, keep int, now time.Time) (*RefreshSession, error)
	Get(ctx context.Context, jti string) (*RefreshSession, error)
	DeleteByJTI(ctx context.Context, jti string) (bool, error)
	DeleteByUser(ctx context.Context, userID uuid.UUID) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	DeleteExpiredForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
	PruneForUser(ctx context.Context, userID uuid.UUID, keep int) (int, error)
	CountActive(ctx context.Context, userID uuid.UUID, now time.Time) (int, error)
	// Rotate deletes oldJTI and inserts next. It returns ErrSessionNotFound
	// and inserts nothing when oldJTI is not present.
	Rotate(ctx context.Context, oldJTI string, next NewSessionParams) (*RefreshSession, error)
}

type sqlSessions struct {
	db  *bun.DB
	now func() time.Time
}

var _ SessionStore = (*sqlSessions)(nil)

// NewSQLSessionStore returns a bun backed SessionStore
func NewSQLSessionStore(db *bun.DB) SessionStore {
	return &sqlSessions{db: db, now: time.Now}
}

func (s *sqlSessions) Insert(ctx context.Context, params NewSessionParams) (*RefreshSession, error) {
	return s.insertTx(ctx, s.db, params)
}

func (s *sqlSessions) insertTx(ctx context.Context, tx bun.IDB, params NewSessionParams) (*RefreshSession, error) {
	if params.JTI == "" || params.UserID == uuid.Nil {
		return nil, NewInvalidInputError("session jti and user are required", nil)
	}

	record := params.toModel(s.now())
	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *sqlSessions) InsertCapped(ctx context.Context, params NewSessionParams, keep int, now time.Time) (*RefreshSession, error) {
	var record *RefreshSession
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.deleteExpiredForUserTx(ctx, tx, params.UserID, now); err != nil {
			return err
		}
		if keep > 0 {
			if _, err := s.pruneForUserTx(ctx, tx, params.UserID, keep-1); err != nil {
				return err
			}
		}
		var err error
		record, err = s.insertTx(ctx, tx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *sqlSessions) Get(ctx context.Context, jti string) (*RefreshSession, error) {
	record := &RefreshSession{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.jti = ?", jti).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *sqlSessions) DeleteByJTI(ctx context.Context, jti string) (bool, error) {
	n, err := s.deleteByJTITx(ctx, s.db, jti)
	return n > 0, err
}

func (s *sqlSessions) deleteByJTITx(ctx context.Context, tx bun.IDB, jti string) (int64, error) {
	res, err := tx.NewDelete().
		Model((*RefreshSession)(nil)).
		Where("jti = ?", jti).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqlSessions) DeleteByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	res, err := s.db.NewDelete().
		Model((*RefreshSession)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqlSessions) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*RefreshSession)(nil)).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqlSessions) DeleteExpiredForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	return s.deleteExpiredForUserTx(ctx, s.db, userID, now)
}

func (s *sqlSessions) deleteExpiredForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, now time.Time) (int, error) {
	res, err := tx.NewDelete().
		Model((*RefreshSession)(nil)).
		Where("user_id = ?", userID).
		Where("expires_at <= ?", now.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqlSessions) PruneForUser(ctx context.Context, userID uuid.UUID, keep int) (int, error) {
	return s.pruneForUserTx(ctx, s.db, userID, keep)
}

// pruneForUserTx deletes all but the newest keep sessions of the user
func (s *sqlSessions) pruneForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	var jtis []string
	err := tx.NewSelect().
		Model((*RefreshSession)(nil)).
		Column("jti").
		Where("user_id = ?", userID).
		OrderExpr("created_at DESC, jti DESC").
		Scan(ctx, &jtis)
	if err != nil {
		return 0, err
	}

	if len(jtis) <= keep {
		return 0, nil
	}

	res, err := tx.NewDelete().
		Model((*RefreshSession)(nil)).
		Where("jti IN (?)", bun.In(jtis[keep:])).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *sqlSessions) CountActive(ctx context.Context, userID uuid.UUID, now time.Time) (int, error) {
	return s.db.NewSelect().
		Model((*RefreshSession)(nil)).
		Where("user_id = ?", userID).
		Where("expires_at > ?", now.UTC()).
		Count(ctx)
}

func (s *sqlSessions) Rotate(ctx context.Context, oldJTI string, next NewSessionParams) (*RefreshSession, error) {
	var record *RefreshSession
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		n, err := s.deleteByJTITx(ctx, tx, oldJTI)
		if err != nil {
			return err
		}
		if n != 1 {
			return ErrSessionNotFound
		}
		record, err = s.insertTx(ctx, tx, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
