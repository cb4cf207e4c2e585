// Package memstore is an in-memory record store for users and entitlements.
//
// It mirrors the repository contract, including its sentinel errors, and
// serializes mutations per key so the conditional increment keeps the same
// guarantees as the Postgres implementation.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/quota"
	"github.com/quotagate/quotagate/internal/repository"
)

// Store holds users and entitlements in maps guarded by a store-wide RWMutex
// for the indexes and one mutex per record for counter updates.
type Store struct {
	mu sync.RWMutex

	entitlements map[model.EntitlementKey]*entry[model.Entitlement]
	byToken      map[string]model.EntitlementKey
	users        map[string]*entry[model.User]
	byEmail      map[string]string
}

type entry[T any] struct {
	mu  sync.Mutex
	rec T
}

func (e *entry[T]) snapshot() *T {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.rec
	return &out
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entitlements: make(map[model.EntitlementKey]*entry[model.Entitlement]),
		byToken:      make(map[string]model.EntitlementKey),
		users:        make(map[string]*entry[model.User]),
		byEmail:      make(map[string]string),
	}
}

// ============================================================================
// Entitlements
// ============================================================================

// CreateEntitlement inserts the entitlement unless one already exists for
// (subject, solution_id). An existing row is returned untouched.
func (s *Store) CreateEntitlement(_ context.Context, e *model.Entitlement) (*model.Entitlement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := e.Key()
	if existing, ok := s.entitlements[key]; ok {
		return existing.snapshot(), false, nil
	}
	if _, taken := s.byToken[e.Token]; taken {
		return nil, false, repository.ErrTokenConflict
	}

	stored := &entry[model.Entitlement]{rec: *e}
	s.entitlements[key] = stored
	s.byToken[e.Token] = key
	return stored.snapshot(), true, nil
}

// GetEntitlement retrieves an entitlement by its composite key.
func (s *Store) GetEntitlement(_ context.Context, subject, solutionID string) (*model.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entitlements[model.EntitlementKey{Subject: subject, SolutionID: solutionID}]
	if !ok {
		return nil, repository.ErrEntitlementNotFound
	}
	return e.snapshot(), nil
}

// GetEntitlementByToken resolves a bearer token through the token index.
func (s *Store) GetEntitlementByToken(_ context.Context, token string) (*model.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.byToken[token]
	if !ok {
		return nil, repository.ErrEntitlementNotFound
	}
	return s.entitlements[key].snapshot(), nil
}

// ListEntitlements returns a subject's entitlements oldest first.
func (s *Store) ListEntitlements(_ context.Context, subject string) ([]*model.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*model.Entitlement
	for key, e := range s.entitlements {
		if key.Subject == subject {
			out = append(out, e.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SolutionID < out[j].SolutionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// IncrementEntitlementUsage applies rollover and the ceiling check under the
// record's lock.
func (s *Store) IncrementEntitlementUsage(_ context.Context, key model.EntitlementKey, today string, limit int) (model.UsageResult, error) {
	s.mu.RLock()
	e, ok := s.entitlements[key]
	s.mu.RUnlock()
	if !ok {
		return model.UsageResult{}, repository.ErrEntitlementNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	usage, res := conditionalIncrement(e.rec.Usage(), today, limit)
	e.rec.LastUsageDate = usage.Date
	e.rec.DailyUsageCount = usage.Count
	if res.Applied {
		e.rec.UpdatedAt = time.Now().UTC()
	}
	return res, nil
}

// SetEntitlementStatus changes the activation state of an entitlement.
func (s *Store) SetEntitlementStatus(_ context.Context, key model.EntitlementKey, status model.EntitlementStatus) error {
	s.mu.RLock()
	e, ok := s.entitlements[key]
	s.mu.RUnlock()
	if !ok {
		return repository.ErrEntitlementNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rec.Status = status
	e.rec.UpdatedAt = time.Now().UTC()
	return nil
}

// ============================================================================
// Users
// ============================================================================

// CreateUser inserts the user unless one already exists for the subject.
func (s *Store) CreateUser(_ context.Context, u *model.User) (*model.User, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[u.Subject]; ok {
		return existing.snapshot(), false, nil
	}
	email := strings.ToLower(u.Email)
	if _, taken := s.byEmail[email]; taken {
		return nil, false, repository.ErrEmailExists
	}

	rec := *u
	if rec.EntitlementState == "" {
		rec.EntitlementState = model.EntitlementStateReady
	}
	stored := &entry[model.User]{rec: rec}
	s.users[u.Subject] = stored
	s.byEmail[email] = u.Subject
	return stored.snapshot(), true, nil
}

// GetUser retrieves a user by subject.
func (s *Store) GetUser(_ context.Context, subject string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[subject]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u.snapshot(), nil
}

// GetUserByEmail retrieves a user by email address, case-insensitively.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subject, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return s.users[subject].snapshot(), nil
}

// IncrementUserUsage applies the conditional increment to the user counter.
func (s *Store) IncrementUserUsage(_ context.Context, subject, today string, limit int) (model.UsageResult, error) {
	u, err := s.userEntry(subject)
	if err != nil {
		return model.UsageResult{}, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	usage, res := conditionalIncrement(u.rec.DailyUsage, today, limit)
	u.rec.DailyUsage = usage
	if res.Applied {
		u.rec.UpdatedAt = time.Now().UTC()
	}
	return res, nil
}

// MarkEntitlementPending records a failed mint and schedules a retry.
func (s *Store) MarkEntitlementPending(_ context.Context, subject, solutionID string, nextAttemptAt time.Time, lastErr string) error {
	u, err := s.userEntry(subject)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	next := nextAttemptAt
	u.rec.EntitlementState = model.EntitlementStatePending
	u.rec.PendingSolutionID = solutionID
	u.rec.PendingAttempts++
	u.rec.PendingNextAttemptAt = &next
	u.rec.PendingLastError = lastErr
	u.rec.UpdatedAt = time.Now().UTC()
	return nil
}

// ClearEntitlementPending marks the user's built-in entitlement as ready.
func (s *Store) ClearEntitlementPending(_ context.Context, subject string) error {
	u, err := s.userEntry(subject)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	u.rec.EntitlementState = model.EntitlementStateReady
	u.rec.PendingSolutionID = ""
	u.rec.PendingAttempts = 0
	u.rec.PendingNextAttemptAt = nil
	u.rec.PendingLastError = ""
	u.rec.UpdatedAt = time.Now().UTC()
	return nil
}

// ListPendingEntitlements returns users whose next mint attempt is due.
func (s *Store) ListPendingEntitlements(_ context.Context, now time.Time, limit int) ([]*model.User, error) {
	s.mu.RLock()
	var due []*model.User
	for _, u := range s.users {
		snap := u.snapshot()
		if snap.IsEntitlementPending() && snap.PendingNextAttemptAt != nil && !snap.PendingNextAttemptAt.After(now) {
			due = append(due, snap)
		}
	}
	s.mu.RUnlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].PendingNextAttemptAt.Before(*due[j].PendingNextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) userEntry(subject string) (*entry[model.User], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[subject]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u, nil
}

// conditionalIncrement is the single-step rollover-then-increment applied
// under the caller's lock.
func conditionalIncrement(current model.Usage, today string, limit int) (model.Usage, model.UsageResult) {
	usage := quota.Normalize(current, today)
	if usage.Count >= limit {
		// Refused increments leave the stored record as it was.
		return current, model.UsageResult{Count: usage.Count, Applied: false}
	}
	usage.Count++
	return usage, model.UsageResult{Count: usage.Count, Applied: true}
}
