package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/memstore"
	"github.com/quotagate/quotagate/internal/metrics"
	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/quota"
	"github.com/quotagate/quotagate/internal/testutil"
)

func TestMint_CreatesActiveEntitlement(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	ent, created, err := env.minter.Mint(context.Background(), MintInput{Subject: "u1", SolutionID: "s1", Tier: model.TierRegistered})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, strings.HasPrefix(ent.Token, "qg_"))
	assert.NoError(t, auth.ValidateTokenFormat(ent.Token, "qg_"))
	assert.Equal(t, model.StatusActive, ent.Status)
	assert.Equal(t, 0, ent.DailyUsageCount)
	assert.Equal(t, testutil.Today, ent.LastUsageDate)
	assert.Equal(t, model.TierRegistered, ent.Tier)
	assert.NotEmpty(t, ent.ID)
	assert.Equal(t, uint64(1), env.recorder.Snapshot().TokensCreated)
}

func TestMint_DefaultsToRegistered(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	ent, _, err := env.minter.Mint(context.Background(), MintInput{Subject: "u1", SolutionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, model.TierRegistered, ent.Tier)
}

func TestMint_IsIdempotentPerPair(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	first, _, err := env.minter.Mint(ctx, MintInput{Subject: "u1", SolutionID: "s1", Tier: model.TierFree})
	require.NoError(t, err)

	second, created, err := env.minter.Mint(ctx, MintInput{Subject: "u1", SolutionID: "s1", Tier: model.TierPro})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.Token, second.Token)
	assert.Equal(t, model.TierFree, second.Tier, "re-minting must not change the tier")

	ents, err := env.store.ListEntitlements(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ents, 1)
	assert.Equal(t, uint64(1), env.recorder.Snapshot().TokensExisting)
}

func TestMint_RandomStrategyStillSingleTokenPerPair(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := memstore.New()
	minter := NewMinter(store, auth.NewRandom("qg_"), quota.NewFixedCalendar(testutil.Clock()), metrics.NewNoop(), discardLogger())

	a, created, err := minter.Mint(ctx, MintInput{Subject: "u1", SolutionID: "s1"})
	require.NoError(t, err)
	require.True(t, created)

	b, created, err := minter.Mint(ctx, MintInput{Subject: "u1", SolutionID: "s1"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a.Token, b.Token)

	resolved, err := store.GetEntitlementByToken(ctx, a.Token)
	require.NoError(t, err)
	assert.Equal(t, a.ID, resolved.ID)
}

func TestMint_InvalidInput(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		input   MintInput
		wantErr error
	}{
		{"missing subject", MintInput{SolutionID: "s1"}, ErrInvalidInput},
		{"blank solution", MintInput{Subject: "u1", SolutionID: "   "}, ErrInvalidInput},
		{"unknown tier", MintInput{Subject: "u1", SolutionID: "s1", Tier: "gold"}, ErrInvalidTier},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			_, _, err := env.minter.Mint(context.Background(), tc.input)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestMint_StoreFailure(t *testing.T) {
	t.Parallel()
	env := newTestEnvWith(t, failWith(func(f *failingEntitlements) { f.failCreate = true }), nil)

	_, _, err := env.minter.Mint(context.Background(), MintInput{Subject: "u1", SolutionID: "s1"})
	assert.ErrorIs(t, err, errStoreDown)
	assert.Equal(t, uint64(1), env.recorder.Snapshot().TokensFailed)
}
