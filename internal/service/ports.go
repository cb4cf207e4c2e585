package service

import (
	"context"
	"time"

	"github.com/quotagate/quotagate/internal/model"
)

// EntitlementStore persists one entitlement per (subject, solution) pair.
//
// Lookups return repository.ErrEntitlementNotFound when absent.
// IncrementEntitlementUsage must be a single atomic conditional mutation:
// roll the counter over to today, refuse when the rolled-over count is
// already at limit, otherwise add one.
type EntitlementStore interface {
	CreateEntitlement(ctx context.Context, e *model.Entitlement) (*model.Entitlement, bool, error)
	GetEntitlement(ctx context.Context, subject, solutionID string) (*model.Entitlement, error)
	GetEntitlementByToken(ctx context.Context, token string) (*model.Entitlement, error)
	ListEntitlements(ctx context.Context, subject string) ([]*model.Entitlement, error)
	IncrementEntitlementUsage(ctx context.Context, key model.EntitlementKey, today string, limit int) (model.UsageResult, error)
	SetEntitlementStatus(ctx context.Context, key model.EntitlementKey, status model.EntitlementStatus) error
}

// UserStore persists users and the user-scoped daily counter.
//
// Lookups return repository.ErrUserNotFound when absent.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) (*model.User, bool, error)
	GetUser(ctx context.Context, subject string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	IncrementUserUsage(ctx context.Context, subject, today string, limit int) (model.UsageResult, error)
	MarkEntitlementPending(ctx context.Context, subject, solutionID string, nextAttemptAt time.Time, lastErr string) error
	ClearEntitlementPending(ctx context.Context, subject string) error
	ListPendingEntitlements(ctx context.Context, now time.Time, limit int) ([]*model.User, error)
}

// TokenCache remembers which entitlement a token resolves to. Tokens are
// immutable, so only the key is cached; the record is always read fresh.
type TokenCache interface {
	GetTokenKey(ctx context.Context, token string) (model.EntitlementKey, bool, error)
	SetTokenKey(ctx context.Context, token string, key model.EntitlementKey) error
	DeleteTokenKey(ctx context.Context, token string) error
}
