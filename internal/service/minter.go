package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/metrics"
	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/quota"
	"github.com/quotagate/quotagate/internal/repository"
)

// maxMintRetries bounds retries after a random token collides with an existing one.
const maxMintRetries = 3

// MintInput defines input for minting an entitlement token.
type MintInput struct {
	Subject    string
	SolutionID string
	Tier       model.Tier // Defaults to registered
}

// Minter issues bearer tokens and writes the matching entitlement row.
type Minter struct {
	store    EntitlementStore
	strategy auth.TokenStrategy
	calendar *quota.Calendar
	metrics  metrics.Recorder
	logger   *slog.Logger
}

// NewMinter creates a new Minter.
func NewMinter(store EntitlementStore, strategy auth.TokenStrategy, calendar *quota.Calendar, recorder metrics.Recorder, logger *slog.Logger) *Minter {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Minter{
		store:    store,
		strategy: strategy,
		calendar: calendar,
		metrics:  recorder,
		logger:   logger.With("component", "service.minter"),
	}
}

// Strategy returns the configured strategy name.
func (m *Minter) Strategy() string {
	return m.strategy.Name()
}

// Mint returns the entitlement for (subject, solution), creating it with a
// fresh token if absent. An existing entitlement is returned unchanged with
// created=false: its token and tier are never overwritten.
func (m *Minter) Mint(ctx context.Context, input MintInput) (*model.Entitlement, bool, error) {
	subject := strings.TrimSpace(input.Subject)
	solutionID := strings.TrimSpace(input.SolutionID)
	if subject == "" || solutionID == "" {
		return nil, false, fmt.Errorf("%w: subject and solution id are required", ErrInvalidInput)
	}

	tier := input.Tier
	if tier == "" {
		tier = model.TierRegistered
	}
	if !tier.IsValid() {
		return nil, false, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
	}

	existing, err := m.store.GetEntitlement(ctx, subject, solutionID)
	if err == nil {
		m.metrics.IncTokenMinted(m.strategy.Name(), metrics.MintExisting)
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrEntitlementNotFound) {
		m.metrics.IncTokenMinted(m.strategy.Name(), metrics.MintFailed)
		return nil, false, fmt.Errorf("lookup entitlement: %w", err)
	}

	for attempt := 0; attempt < maxMintRetries; attempt++ {
		token, err := m.strategy.Mint(subject, solutionID)
		if err != nil {
			m.metrics.IncTokenMinted(m.strategy.Name(), metrics.MintFailed)
			return nil, false, fmt.Errorf("mint token: %w", err)
		}

		now := m.calendar.Now().UTC()
		stored, created, err := m.store.CreateEntitlement(ctx, &model.Entitlement{
			ID:              ulid.Make().String(),
			Subject:         subject,
			SolutionID:      solutionID,
			Token:           token,
			Tier:            tier,
			DailyUsageCount: 0,
			LastUsageDate:   m.calendar.Today(),
			Status:          model.StatusActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if errors.Is(err, repository.ErrTokenConflict) && m.strategy.Name() == auth.StrategyRandom {
			m.logger.Warn("random token collided, retrying", "attempt", attempt+1)
			continue
		}
		if err != nil {
			m.metrics.IncTokenMinted(m.strategy.Name(), metrics.MintFailed)
			return nil, false, fmt.Errorf("create entitlement: %w", err)
		}

		result := metrics.MintExisting
		if created {
			result = metrics.MintCreated
			m.logger.Info("entitlement created",
				"subject", subject,
				"solution_id", solutionID,
				"tier", tier,
				"token_fp", auth.Fingerprint(stored.Token),
			)
		}
		m.metrics.IncTokenMinted(m.strategy.Name(), result)
		return stored, created, nil
	}

	m.metrics.IncTokenMinted(m.strategy.Name(), metrics.MintFailed)
	return nil, false, fmt.Errorf("create entitlement: %w", repository.ErrTokenConflict)
}
