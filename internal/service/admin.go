package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/repository"
)

// EntitlementView is an entitlement as the decision engine sees it today:
// effective tier and normalized usage.
type EntitlementView struct {
	Entitlement    *model.Entitlement
	Tier           model.Tier
	Usage          model.Usage
	DailyLimit     int
	QuotaRemaining int
}

// ListEntitlements returns a subject's entitlements with today's usage.
func (e *Engine) ListEntitlements(ctx context.Context, subject string) ([]EntitlementView, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}

	ents, err := e.entitlements.ListEntitlements(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	user, err := e.lookupUser(ctx, subject)
	if err != nil {
		return nil, err
	}

	views := make([]EntitlementView, 0, len(ents))
	for _, ent := range ents {
		d, err := e.evaluate(ctx, effectiveTier(ent, user), entitlementCounter(e.entitlements, ent), false)
		if err != nil {
			return nil, err
		}
		views = append(views, EntitlementView{
			Entitlement:    ent,
			Tier:           d.Tier,
			Usage:          model.Usage{Date: d.Day, Count: d.Count},
			DailyLimit:     d.DailyLimit,
			QuotaRemaining: d.QuotaRemaining,
		})
	}
	return views, nil
}

// SetEntitlementStatus activates or deactivates an entitlement.
func (e *Engine) SetEntitlementStatus(ctx context.Context, key model.EntitlementKey, status model.EntitlementStatus) error {
	if status != model.StatusActive && status != model.StatusInactive {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}

	err := e.entitlements.SetEntitlementStatus(ctx, key, status)
	if errors.Is(err, repository.ErrEntitlementNotFound) {
		return ErrEntitlementNotFound
	}
	if err != nil {
		return fmt.Errorf("set entitlement status: %w", err)
	}

	e.logger.Info("entitlement status changed",
		"subject", key.Subject,
		"solution_id", key.SolutionID,
		"status", status,
	)
	return nil
}
