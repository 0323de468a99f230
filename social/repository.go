package social

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/inflowhq/go-auth"
	"github.com/uptrace/bun"
)

// IdentityRepository manages user_identities rows. Every method takes the
// bun.IDB it runs on so the integrator can keep a whole flow in one
// transaction. Lookups return (nil, nil) when no row matches.
type IdentityRepository interface {
	FindByProviderUser(ctx context.Context, db bun.IDB, provider, providerUserID string) (*auth.UserIdentity, error)
	FindByUserAndProvider(ctx context.Context, db bun.IDB, userID uuid.UUID, provider string) (*auth.UserIdentity, error)
	// ListByUser returns identities ordered by linked_at, newest first
	ListByUser(ctx context.Context, db bun.IDB, userID uuid.UUID) ([]*auth.UserIdentity, error)
	Attach(ctx context.Context, db bun.IDB, identity *auth.UserIdentity) error
	Touch(ctx context.Context, db bun.IDB, identity *auth.UserIdentity, email string, at time.Time) error
	DeleteByUserAndProvider(ctx context.Context, db bun.IDB, userID uuid.UUID, provider string) (int, error)
	CountByUser(ctx context.Context, db bun.IDB, userID uuid.UUID) (int, error)
}
