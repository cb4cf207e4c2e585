package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/memstore"
	"github.com/quotagate/quotagate/internal/metrics"
	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/quota"
	"github.com/quotagate/quotagate/internal/testutil"
)

const (
	testSecret  = "unit-test-secret"
	testBuiltin = "search"
)

var errStoreDown = errors.New("store unavailable")

type testEnv struct {
	store    *memstore.Store
	calendar *quota.Calendar
	recorder *metrics.InMemoryRecorder
	minter   *Minter
	engine   *Engine
	signup   *SignupService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil, nil)
}

// newTestEnvWith lets a test wrap the entitlement store or add a token cache.
func newTestEnvWith(t *testing.T, wrap func(*memstore.Store) EntitlementStore, cache TokenCache) *testEnv {
	t.Helper()

	store := memstore.New()
	var entitlements EntitlementStore = store
	if wrap != nil {
		entitlements = wrap(store)
	}

	strategy, err := auth.NewDeterministic("qg_", testSecret, auth.DefaultTokenBodyLen)
	require.NoError(t, err)

	calendar := quota.NewFixedCalendar(testutil.Clock())
	recorder := metrics.NewInMemory()
	logger := discardLogger()

	minter := NewMinter(entitlements, strategy, calendar, recorder, logger)
	engine := NewEngine(entitlements, store, cache, calendar, EngineConfig{BuiltinSolutionID: testBuiltin}, recorder, logger)
	signup := NewSignupService(store, minter, calendar, testBuiltin, recorder, logger)

	return &testEnv{
		store:    store,
		calendar: calendar,
		recorder: recorder,
		minter:   minter,
		engine:   engine,
		signup:   signup,
	}
}

// seedEntitlement stores an entitlement with the given usage counter.
func (e *testEnv) seedEntitlement(t *testing.T, subject, solutionID string, tier model.Tier, date string, count int) *model.Entitlement {
	t.Helper()
	ent := testutil.NewTestEntitlementWithUsage(t, subject, solutionID, tier, date, count)
	stored, created, err := e.store.CreateEntitlement(context.Background(), ent)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

// seedUser stores a user with an optional tier and usage counter.
func (e *testEnv) seedUser(t *testing.T, subject string, tier model.Tier, usage model.Usage) *model.User {
	t.Helper()
	u := testutil.NewTestUserWithTier(t, subject, tier)
	u.DailyUsage = usage
	stored, _, err := e.store.CreateUser(context.Background(), u)
	require.NoError(t, err)
	return stored
}

func failWith(configure func(*failingEntitlements)) func(*memstore.Store) EntitlementStore {
	return func(s *memstore.Store) EntitlementStore {
		f := &failingEntitlements{Store: s}
		configure(f)
		return f
	}
}

// failingEntitlements fails the selected operations and delegates the rest.
type failingEntitlements struct {
	*memstore.Store
	failCreate    bool
	failLookup    bool
	failIncrement bool
}

func (f *failingEntitlements) CreateEntitlement(ctx context.Context, e *model.Entitlement) (*model.Entitlement, bool, error) {
	if f.failCreate {
		return nil, false, errStoreDown
	}
	return f.Store.CreateEntitlement(ctx, e)
}

func (f *failingEntitlements) GetEntitlementByToken(ctx context.Context, token string) (*model.Entitlement, error) {
	if f.failLookup {
		return nil, errStoreDown
	}
	return f.Store.GetEntitlementByToken(ctx, token)
}

func (f *failingEntitlements) IncrementEntitlementUsage(ctx context.Context, key model.EntitlementKey, today string, limit int) (model.UsageResult, error) {
	if f.failIncrement {
		return model.UsageResult{}, errStoreDown
	}
	return f.Store.IncrementEntitlementUsage(ctx, key, today, limit)
}

// mapCache is an in-process TokenCache.
type mapCache struct {
	mu      sync.Mutex
	keys    map[string]model.EntitlementKey
	sets    int
	deletes int
	err     error
}

func newMapCache() *mapCache {
	return &mapCache{keys: make(map[string]model.EntitlementKey)}
}

func (c *mapCache) GetTokenKey(_ context.Context, token string) (model.EntitlementKey, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return model.EntitlementKey{}, false, c.err
	}
	key, ok := c.keys[token]
	return key, ok, nil
}

func (c *mapCache) SetTokenKey(_ context.Context, token string, key model.EntitlementKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.sets++
	c.keys[token] = key
	return nil
}

func (c *mapCache) DeleteTokenKey(_ context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.deletes++
	delete(c.keys, token)
	return nil
}

func (c *mapCache) lookup(token string) (model.EntitlementKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key, ok := c.keys[token]
	return key, ok
}
