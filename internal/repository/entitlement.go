package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quotagate/quotagate/internal/model"
)

// Common errors for entitlement repository operations.
var (
	ErrEntitlementNotFound = errors.New("entitlement not found")
	ErrTokenConflict       = errors.New("token already bound to another entitlement")
)

const entitlementColumns = `id, subject, solution_id, token, tier, daily_usage_count, last_usage_date, status, created_at, updated_at`

// CreateEntitlement inserts the entitlement unless one already exists for
// (subject, solution_id). The stored row is returned either way; an existing
// row is never modified, so its token is never overwritten.
func (r *Repository) CreateEntitlement(ctx context.Context, e *model.Entitlement) (*model.Entitlement, bool, error) {
	query := `
		INSERT INTO entitlements (` + entitlementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (subject, solution_id) DO NOTHING
		RETURNING ` + entitlementColumns

	created, err := scanEntitlement(r.pool.QueryRow(ctx, query,
		e.ID,
		e.Subject,
		e.SolutionID,
		e.Token,
		e.Tier,
		e.DailyUsageCount,
		e.LastUsageDate,
		e.Status,
		e.CreatedAt,
		e.UpdatedAt,
	))
	if err == nil {
		return created, true, nil
	}
	if uniqueViolation(err) != "" {
		return nil, false, ErrTokenConflict
	}
	if !errors.Is(err, ErrEntitlementNotFound) {
		return nil, false, fmt.Errorf("failed to create entitlement: %w", err)
	}

	// Conflict on (subject, solution_id): hand back the existing row.
	existing, err := r.GetEntitlement(ctx, e.Subject, e.SolutionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetEntitlement retrieves an entitlement by its composite key.
func (r *Repository) GetEntitlement(ctx context.Context, subject, solutionID string) (*model.Entitlement, error) {
	query := `
		SELECT ` + entitlementColumns + `
		FROM entitlements
		WHERE subject = $1 AND solution_id = $2
	`

	return scanEntitlement(r.pool.QueryRow(ctx, query, subject, solutionID))
}

// GetEntitlementByToken resolves a bearer token through the token index.
func (r *Repository) GetEntitlementByToken(ctx context.Context, token string) (*model.Entitlement, error) {
	query := `
		SELECT ` + entitlementColumns + `
		FROM entitlements
		WHERE token = $1
	`

	return scanEntitlement(r.pool.QueryRow(ctx, query, token))
}

// ListEntitlements retrieves all entitlements for a subject.
func (r *Repository) ListEntitlements(ctx context.Context, subject string) ([]*model.Entitlement, error) {
	query := `
		SELECT ` + entitlementColumns + `
		FROM entitlements
		WHERE subject = $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, subject)
	if err != nil {
		return nil, fmt.Errorf("failed to list entitlements: %w", err)
	}
	defer rows.Close()

	var out []*model.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entitlements: %w", err)
	}

	return out, nil
}

// IncrementEntitlementUsage is the atomic conditional increment.
//
// A single UPDATE applies rollover and the ceiling check server-side: a row
// from another day restarts at 1, a row from today gains 1, and a row already
// at the limit is left alone. Concurrent updates of the same row serialize on
// the row lock and re-evaluate the WHERE clause against the committed
// version, so the count never exceeds limit and no increment is lost.
func (r *Repository) IncrementEntitlementUsage(ctx context.Context, key model.EntitlementKey, today string, limit int) (model.UsageResult, error) {
	query := `
		UPDATE entitlements
		SET daily_usage_count = CASE WHEN last_usage_date = $3 THEN daily_usage_count + 1 ELSE 1 END,
			last_usage_date = $3,
			updated_at = NOW()
		WHERE subject = $1 AND solution_id = $2
			AND (last_usage_date <> $3 OR daily_usage_count < $4)
		RETURNING daily_usage_count
	`

	var count int
	err := r.pool.QueryRow(ctx, query, key.Subject, key.SolutionID, today, limit).Scan(&count)
	if err == nil {
		return model.UsageResult{Count: count, Applied: true}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.UsageResult{}, fmt.Errorf("failed to increment entitlement usage: %w", err)
	}

	// Nothing updated: either the row is missing or today's count is at the limit.
	current, err := r.GetEntitlement(ctx, key.Subject, key.SolutionID)
	if err != nil {
		return model.UsageResult{}, err
	}
	if current.LastUsageDate != today {
		// Only possible if the limit is zero.
		return model.UsageResult{Count: 0, Applied: false}, nil
	}
	return model.UsageResult{Count: current.DailyUsageCount, Applied: false}, nil
}

// SetEntitlementStatus changes the activation state of an entitlement.
func (r *Repository) SetEntitlementStatus(ctx context.Context, key model.EntitlementKey, status model.EntitlementStatus) error {
	query := `
		UPDATE entitlements
		SET status = $3, updated_at = NOW()
		WHERE subject = $1 AND solution_id = $2
	`

	result, err := r.pool.Exec(ctx, query, key.Subject, key.SolutionID, status)
	if err != nil {
		return fmt.Errorf("failed to set entitlement status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrEntitlementNotFound
	}
	return nil
}

// scanEntitlement scans a single row into an Entitlement model.
func scanEntitlement(row pgx.Row) (*model.Entitlement, error) {
	var e model.Entitlement

	err := row.Scan(
		&e.ID,
		&e.Subject,
		&e.SolutionID,
		&e.Token,
		&e.Tier,
		&e.DailyUsageCount,
		&e.LastUsageDate,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntitlementNotFound
		}
		return nil, fmt.Errorf("failed to scan entitlement: %w", err)
	}

	return &e, nil
}
