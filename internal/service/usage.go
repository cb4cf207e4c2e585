package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/repository"
)

// CheckLimits reports the user-scoped quota without consuming it.
func (e *Engine) CheckLimits(ctx context.Context, email string) (model.Decision, error) {
	return e.decideForUser(ctx, email, false)
}

// IncrementUsage consumes one unit of the user-scoped quota. A decision with
// Allowed=false and ReasonLimitReached means the increment was refused.
func (e *Engine) IncrementUsage(ctx context.Context, email string) (model.Decision, error) {
	return e.decideForUser(ctx, email, true)
}

// decideForUser runs the shared evaluation against the counter embedded in
// the user row, used by the built-in solution.
func (e *Engine) decideForUser(ctx context.Context, email string, mutate bool) (model.Decision, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	email = NormalizeEmail(email)
	if email == "" {
		return model.Decision{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return model.Decision{}, ErrUnknownUser
	}
	if err != nil {
		e.observe(model.Decision{}, err, time.Since(start))
		return model.Decision{}, fmt.Errorf("lookup user: %w", err)
	}

	tier, err := e.userTier(ctx, user)
	if err != nil {
		e.observe(model.Decision{}, err, time.Since(start))
		return model.Decision{}, err
	}

	d, err := e.evaluate(ctx, tier, userCounter(e.users, user), mutate)
	e.observe(d, err, time.Since(start))
	if err != nil {
		return model.Decision{}, err
	}
	d.Subject = user.Subject
	d.Email = user.Email
	d.SolutionID = e.builtinSolutionID
	return d, nil
}

// userTier resolves User.tier, then the built-in entitlement's tier, then free.
func (e *Engine) userTier(ctx context.Context, user *model.User) (model.Tier, error) {
	if user.HasTierOverride() {
		return user.Tier, nil
	}
	if e.builtinSolutionID == "" {
		return model.TierFree, nil
	}

	ent, err := e.entitlements.GetEntitlement(ctx, user.Subject, e.builtinSolutionID)
	if errors.Is(err, repository.ErrEntitlementNotFound) {
		return model.TierFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup built-in entitlement: %w", err)
	}
	return ent.Tier, nil
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
