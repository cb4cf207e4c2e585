package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quotagate/quotagate/internal/metrics"
	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/quota"
	"github.com/quotagate/quotagate/internal/reconcile"
	"github.com/quotagate/quotagate/internal/repository"
)

// SignupService registers users and grants the built-in solution entitlement.
type SignupService struct {
	users             UserStore
	minter            *Minter
	calendar          *quota.Calendar
	builtinSolutionID string
	metrics           metrics.Recorder
	logger            *slog.Logger
}

// NewSignupService creates a new SignupService.
func NewSignupService(users UserStore, minter *Minter, calendar *quota.Calendar, builtinSolutionID string, recorder metrics.Recorder, logger *slog.Logger) *SignupService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &SignupService{
		users:             users,
		minter:            minter,
		calendar:          calendar,
		builtinSolutionID: builtinSolutionID,
		metrics:           recorder,
		logger:            logger.With("component", "service.signup"),
	}
}

// SignupInput defines input for a signup.
type SignupInput struct {
	Subject string
	Email   string
}

// SignupResult is the outcome of a signup.
type SignupResult struct {
	User        *model.User
	Entitlement *model.Entitlement // nil while pending
	Created     bool
	Pending     bool
}

// Signup creates the user (idempotent per subject) and mints the built-in
// entitlement with tier registered. A mint failure does not fail signup: the
// user is left in the pending state and the reconcile worker retries later.
// If the pending state cannot be recorded either, signup fails so the caller
// retries; the user row is kept and a repeated signup mints again.
func (s *SignupService) Signup(ctx context.Context, input SignupInput) (*SignupResult, error) {
	subject := strings.TrimSpace(input.Subject)
	email := NormalizeEmail(input.Email)
	if subject == "" || email == "" {
		return nil, fmt.Errorf("%w: subject and email are required", ErrInvalidInput)
	}

	now := s.calendar.Now().UTC()
	user, created, err := s.users.CreateUser(ctx, &model.User{
		Subject:          subject,
		Email:            email,
		DailyUsage:       model.Usage{Date: s.calendar.Today(), Count: 0},
		EntitlementState: model.EntitlementStateReady,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if errors.Is(err, repository.ErrEmailExists) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if created {
		s.logger.Info("user created", "subject", subject)
	}

	result := &SignupResult{User: user, Created: created}

	ent, _, mintErr := s.minter.Mint(ctx, MintInput{
		Subject:    subject,
		SolutionID: s.builtinSolutionID,
		Tier:       model.TierRegistered,
	})
	if mintErr != nil {
		if err := s.deferEntitlement(ctx, user, mintErr); err != nil {
			return nil, err
		}
		result.Pending = true
		return result, nil
	}

	if user.IsEntitlementPending() {
		if err := s.users.ClearEntitlementPending(ctx, subject); err != nil {
			s.logger.Error("failed to clear pending entitlement", "subject", subject, "error", err)
		} else {
			user.EntitlementState = model.EntitlementStateReady
		}
	}

	result.Entitlement = ent
	return result, nil
}

// ReconcilePending retries the built-in entitlement for a pending user.
// On failure the next attempt is rescheduled with backoff.
func (s *SignupService) ReconcilePending(ctx context.Context, user *model.User) error {
	solutionID := user.PendingSolutionID
	if solutionID == "" {
		solutionID = s.builtinSolutionID
	}

	_, _, err := s.minter.Mint(ctx, MintInput{
		Subject:    user.Subject,
		SolutionID: solutionID,
		Tier:       model.TierRegistered,
	})
	if err != nil {
		next := reconcile.NextRetryAt(s.calendar.Now(), user.PendingAttempts)
		if markErr := s.users.MarkEntitlementPending(ctx, user.Subject, solutionID, next, err.Error()); markErr != nil {
			return errors.Join(err, fmt.Errorf("reschedule pending entitlement: %w", markErr))
		}
		return err
	}

	if err := s.users.ClearEntitlementPending(ctx, user.Subject); err != nil {
		return fmt.Errorf("clear pending entitlement: %w", err)
	}
	return nil
}

func (s *SignupService) deferEntitlement(ctx context.Context, user *model.User, mintErr error) error {
	next := reconcile.NextRetryAt(s.calendar.Now(), user.PendingAttempts)
	if err := s.users.MarkEntitlementPending(ctx, user.Subject, s.builtinSolutionID, next, mintErr.Error()); err != nil {
		s.logger.Error("failed to record pending entitlement",
			"subject", user.Subject,
			"mint_error", mintErr,
			"error", err,
		)
		return errors.Join(
			fmt.Errorf("mint built-in entitlement: %w", mintErr),
			fmt.Errorf("record pending entitlement: %w", err),
		)
	}

	s.metrics.IncEntitlementPending()
	s.logger.Warn("built-in entitlement deferred",
		"subject", user.Subject,
		"solution_id", s.builtinSolutionID,
		"error", mintErr,
	)
	user.EntitlementState = model.EntitlementStatePending
	user.PendingSolutionID = s.builtinSolutionID
	return nil
}
