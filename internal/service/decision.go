package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/metrics"
	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/quota"
	"github.com/quotagate/quotagate/internal/repository"
)

// DefaultDecisionTimeout bounds a single decision when none is configured.
const DefaultDecisionTimeout = 10 * time.Second

// Engine turns a bearer token or a user into an allow/deny decision.
type Engine struct {
	entitlements      EntitlementStore
	users             UserStore
	cache             TokenCache
	calendar          *quota.Calendar
	builtinSolutionID string
	timeout           time.Duration
	metrics           metrics.Recorder
	logger            *slog.Logger
}

// EngineConfig holds the engine's tunables.
type EngineConfig struct {
	BuiltinSolutionID string
	Timeout           time.Duration
}

// NewEngine creates a new decision Engine. cache may be nil.
func NewEngine(entitlements EntitlementStore, users UserStore, cache TokenCache, calendar *quota.Calendar, cfg EngineConfig, recorder metrics.Recorder, logger *slog.Logger) *Engine {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultDecisionTimeout
	}
	return &Engine{
		entitlements:      entitlements,
		users:             users,
		cache:             cache,
		calendar:          calendar,
		builtinSolutionID: cfg.BuiltinSolutionID,
		timeout:           cfg.Timeout,
		metrics:           recorder,
		logger:            logger.With("component", "service.engine"),
	}
}

// DecideInput defines input for a token decision.
type DecideInput struct {
	Token      string
	SolutionID string
	Action     string
	Mutate     bool
}

// Decide resolves token -> entitlement -> user -> tier -> quota and returns
// the decision. Denials are values; an error means the store failed or the
// decision timed out, and callers must treat it as a deny.
func (e *Engine) Decide(ctx context.Context, input DecideInput) (model.Decision, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	decision, err := e.decide(ctx, input)
	e.observe(decision, err, time.Since(start))
	if err != nil {
		return model.Decision{SolutionID: input.SolutionID}, err
	}

	e.logger.Debug("decision",
		"solution_id", input.SolutionID,
		"action", input.Action,
		"mutate", input.Mutate,
		"allowed", decision.Allowed,
		"reason", decision.Reason,
		"tier", decision.Tier,
	)
	return decision, nil
}

func (e *Engine) decide(ctx context.Context, input DecideInput) (model.Decision, error) {
	deny := func(reason model.DenyReason) model.Decision {
		return model.Decision{Allowed: false, Reason: reason, SolutionID: input.SolutionID}
	}

	ent, err := e.resolveToken(ctx, input.Token)
	if errors.Is(err, repository.ErrEntitlementNotFound) {
		return deny(model.ReasonInvalidToken), nil
	}
	if err != nil {
		return model.Decision{}, err
	}

	if ent.SolutionID != input.SolutionID {
		return deny(model.ReasonSolutionMismatch), nil
	}
	if !ent.IsActive() {
		d := deny(model.ReasonInactive)
		d.Subject = ent.Subject
		return d, nil
	}

	user, err := e.lookupUser(ctx, ent.Subject)
	if err != nil {
		return model.Decision{}, err
	}

	email := ""
	if user != nil {
		email = user.Email
	}

	d, err := e.evaluate(ctx, effectiveTier(ent, user), entitlementCounter(e.entitlements, ent), input.Mutate)
	if err != nil {
		return model.Decision{}, err
	}
	d.Subject = ent.Subject
	d.Email = email
	d.SolutionID = ent.SolutionID
	return d, nil
}

// ValidationResult is the outcome of the simple token validation.
type ValidationResult struct {
	Valid          bool
	Reason         model.DenyReason
	Subject        string
	SolutionID     string
	Tier           model.Tier
	QuotaRemaining int
}

// ValidateToken checks that a token resolves to an active entitlement and,
// when subject is given, that it belongs to that subject. Quota is reported
// but does not affect validity.
func (e *Engine) ValidateToken(ctx context.Context, token, subject string) (ValidationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ent, err := e.resolveToken(ctx, token)
	if errors.Is(err, repository.ErrEntitlementNotFound) {
		return ValidationResult{Reason: model.ReasonInvalidToken}, nil
	}
	if err != nil {
		return ValidationResult{}, err
	}

	if subject != "" && subject != ent.Subject {
		return ValidationResult{Reason: model.ReasonUserMismatch}, nil
	}
	if !ent.IsActive() {
		return ValidationResult{Reason: model.ReasonInactive}, nil
	}

	user, err := e.lookupUser(ctx, ent.Subject)
	if err != nil {
		return ValidationResult{}, err
	}
	d, err := e.evaluate(ctx, effectiveTier(ent, user), entitlementCounter(e.entitlements, ent), false)
	if err != nil {
		return ValidationResult{}, err
	}

	return ValidationResult{
		Valid:          true,
		Subject:        ent.Subject,
		SolutionID:     ent.SolutionID,
		Tier:           d.Tier,
		QuotaRemaining: d.QuotaRemaining,
	}, nil
}

// effectiveTier applies the user-level tier over the entitlement's own.
// user may be nil.
func effectiveTier(ent *model.Entitlement, user *model.User) model.Tier {
	if user != nil && user.HasTierOverride() {
		return user.Tier
	}
	return ent.Tier
}

// counter is the usage record a decision is evaluated against.
type counter struct {
	scope     string
	usage     model.Usage
	increment func(ctx context.Context, today string, limit int) (model.UsageResult, error)
}

func entitlementCounter(store EntitlementStore, ent *model.Entitlement) counter {
	key := ent.Key()
	return counter{
		scope: "entitlement",
		usage: ent.Usage(),
		increment: func(ctx context.Context, today string, limit int) (model.UsageResult, error) {
			return store.IncrementEntitlementUsage(ctx, key, today, limit)
		},
	}
}

func userCounter(store UserStore, u *model.User) counter {
	subject := u.Subject
	return counter{
		scope: "user",
		usage: u.DailyUsage,
		increment: func(ctx context.Context, today string, limit int) (model.UsageResult, error) {
			return store.IncrementUserUsage(ctx, subject, today, limit)
		},
	}
}

// evaluate is the only place quota arithmetic happens. Check-only and
// increment-and-check differ solely in mutate.
func (e *Engine) evaluate(ctx context.Context, tier model.Tier, c counter, mutate bool) (model.Decision, error) {
	limit := quota.DailyLimit(tier)
	today := e.calendar.Today()
	usage := quota.Normalize(c.usage, today)

	d := model.Decision{
		Tier:       tier,
		Day:        today,
		DailyLimit: limit,
		Count:      usage.Count,
	}

	if d.IsUnlimited() {
		d.Allowed = true
		d.QuotaRemaining = model.Unlimited
		return d, nil
	}

	if !mutate {
		d.Allowed = usage.Count < limit
		d.QuotaRemaining = quota.Remaining(limit, usage.Count)
		d.LimitReached = usage.Count >= limit
		if !d.Allowed {
			d.Reason = model.ReasonLimitReached
		}
		return d, nil
	}

	res, err := c.increment(ctx, today, limit)
	if err != nil {
		return model.Decision{}, fmt.Errorf("increment %s usage: %w", c.scope, err)
	}
	e.metrics.IncUsageIncrement(c.scope, res.Applied)

	d.Count = res.Count
	d.QuotaRemaining = quota.Remaining(limit, res.Count)
	d.LimitReached = res.Count >= limit
	if !res.Applied {
		d.Allowed = false
		d.Reason = model.ReasonLimitReached
		return d, nil
	}
	d.Allowed = true
	d.Incremented = true
	return d, nil
}

// resolveToken finds the entitlement for a token, consulting the token
// cache for its key first. Cache failures fall back to the store.
func (e *Engine) resolveToken(ctx context.Context, token string) (*model.Entitlement, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, repository.ErrEntitlementNotFound
	}

	if e.cache != nil {
		key, ok, err := e.cache.GetTokenKey(ctx, token)
		if err != nil {
			e.logger.Warn("token cache lookup failed", "token_fp", auth.Fingerprint(token), "error", err)
		}
		if ok {
			ent, err := e.entitlements.GetEntitlement(ctx, key.Subject, key.SolutionID)
			if err == nil && ent.Token == token {
				e.metrics.IncTokenCacheHit()
				return ent, nil
			}
			if err != nil && !errors.Is(err, repository.ErrEntitlementNotFound) {
				return nil, err
			}
			// Stale entry: the key no longer holds this token.
			if err := e.cache.DeleteTokenKey(ctx, token); err != nil {
				e.logger.Warn("token cache evict failed", "token_fp", auth.Fingerprint(token), "error", err)
			}
		}
		e.metrics.IncTokenCacheMiss()
	}

	ent, err := e.entitlements.GetEntitlementByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.SetTokenKey(ctx, token, ent.Key()); err != nil {
			e.logger.Warn("token cache store failed", "token_fp", auth.Fingerprint(token), "error", err)
		}
	}
	return ent, nil
}

// lookupUser returns nil without error when the subject has no user row.
func (e *Engine) lookupUser(ctx context.Context, subject string) (*model.User, error) {
	u, err := e.users.GetUser(ctx, subject)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return u, nil
}

func (e *Engine) observe(d model.Decision, err error, elapsed time.Duration) {
	switch {
	case err != nil:
		e.metrics.ObserveDecision(metrics.OutcomeError, "", "", elapsed)
	case d.Allowed:
		e.metrics.ObserveDecision(metrics.OutcomeAllowed, string(d.Reason), string(d.Tier), elapsed)
	default:
		e.metrics.ObserveDecision(metrics.OutcomeDenied, string(d.Reason), string(d.Tier), elapsed)
	}
}
