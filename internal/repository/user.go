package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/quotagate/quotagate/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailExists  = errors.New("email already exists")
)

const userColumns = `subject, email, COALESCE(tier, ''), daily_usage_date, daily_usage_count,
	entitlement_state, COALESCE(pending_solution_id, ''), pending_attempts, pending_next_attempt_at,
	COALESCE(pending_last_error, ''), created_at, updated_at`

// CreateUser inserts the user unless one already exists for the subject.
// The stored row is returned either way.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) (*model.User, bool, error) {
	query := `
		INSERT INTO users (subject, email, tier, daily_usage_date, daily_usage_count, entitlement_state, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
		ON CONFLICT (subject) DO NOTHING
		RETURNING ` + userColumns

	state := user.EntitlementState
	if state == "" {
		state = model.EntitlementStateReady
	}

	created, err := scanUser(r.pool.QueryRow(ctx, query,
		user.Subject,
		user.Email,
		string(user.Tier),
		user.DailyUsage.Date,
		user.DailyUsage.Count,
		state,
		user.CreatedAt,
		user.UpdatedAt,
	))
	if err == nil {
		return created, true, nil
	}
	if uniqueViolation(err) != "" {
		return nil, false, ErrEmailExists
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	existing, err := r.GetUser(ctx, user.Subject)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetUser retrieves a user by subject.
func (r *Repository) GetUser(ctx context.Context, subject string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE subject = $1`
	return scanUser(r.pool.QueryRow(ctx, query, subject))
}

// GetUserByEmail retrieves a user by email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// IncrementUserUsage applies the same atomic conditional increment as
// IncrementEntitlementUsage to the counter embedded in the user row.
func (r *Repository) IncrementUserUsage(ctx context.Context, subject, today string, limit int) (model.UsageResult, error) {
	query := `
		UPDATE users
		SET daily_usage_count = CASE WHEN daily_usage_date = $2 THEN daily_usage_count + 1 ELSE 1 END,
			daily_usage_date = $2,
			updated_at = NOW()
		WHERE subject = $1
			AND (daily_usage_date <> $2 OR daily_usage_count < $3)
		RETURNING daily_usage_count
	`

	var count int
	err := r.pool.QueryRow(ctx, query, subject, today, limit).Scan(&count)
	if err == nil {
		return model.UsageResult{Count: count, Applied: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.UsageResult{}, fmt.Errorf("failed to increment user usage: %w", err)
	}

	current, err := r.GetUser(ctx, subject)
	if err != nil {
		return model.UsageResult{}, err
	}
	if current.DailyUsage.Date != today {
		return model.UsageResult{Count: 0, Applied: false}, nil
	}
	return model.UsageResult{Count: current.DailyUsage.Count, Applied: false}, nil
}

// MarkEntitlementPending records that the built-in entitlement could not be
// minted and schedules the next attempt.
func (r *Repository) MarkEntitlementPending(ctx context.Context, subject, solutionID string, nextAttemptAt time.Time, lastErr string) error {
	query := `
		UPDATE users
		SET entitlement_state = 'pending',
			pending_solution_id = $2,
			pending_attempts = pending_attempts + 1,
			pending_next_attempt_at = $3,
			pending_last_error = $4,
			updated_at = NOW()
		WHERE subject = $1
	`

	result, err := r.pool.Exec(ctx, query, subject, solutionID, nextAttemptAt, lastErr)
	if err != nil {
		return fmt.Errorf("failed to mark entitlement pending: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ClearEntitlementPending marks the user's built-in entitlement as ready.
func (r *Repository) ClearEntitlementPending(ctx context.Context, subject string) error {
	query := `
		UPDATE users
		SET entitlement_state = 'ready',
			pending_solution_id = NULL,
			pending_attempts = 0,
			pending_next_attempt_at = NULL,
			pending_last_error = NULL,
			updated_at = NOW()
		WHERE subject = $1
	`

	result, err := r.pool.Exec(ctx, query, subject)
	if err != nil {
		return fmt.Errorf("failed to clear entitlement pending: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListPendingEntitlements returns users whose next mint attempt is due.
func (r *Repository) ListPendingEntitlements(ctx context.Context, now time.Time, limit int) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE entitlement_state = 'pending' AND pending_next_attempt_at <= $1
		ORDER BY pending_next_attempt_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending entitlements: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending users: %w", err)
	}

	return users, nil
}

// scanUser scans a single row into a User model.
func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User

	err := row.Scan(
		&u.Subject,
		&u.Email,
		&u.Tier,
		&u.DailyUsage.Date,
		&u.DailyUsage.Count,
		&u.EntitlementState,
		&u.PendingSolutionID,
		&u.PendingAttempts,
		&u.PendingNextAttemptAt,
		&u.PendingLastError,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	return &u, nil
}
