package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotagate/quotagate/internal/metrics"
	"github.com/quotagate/quotagate/internal/model"
)

type stubSource struct {
	users []*model.User
	err   error
	limit int
	now   time.Time
}

func (s *stubSource) ListPendingEntitlements(_ context.Context, now time.Time, limit int) ([]*model.User, error) {
	s.now = now
	s.limit = limit
	return s.users, s.err
}

type stubReconciler struct {
	fail  map[string]bool
	calls []string
}

func (r *stubReconciler) ReconcilePending(_ context.Context, u *model.User) error {
	r.calls = append(r.calls, u.Subject)
	if r.fail[u.Subject] {
		return errors.New("store unavailable")
	}
	return nil
}

func newTestWorker(src PendingSource, rec Reconciler, recorder metrics.Recorder) *Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWorker(src, rec, logger, recorder)
}

func TestProcessOnce_CountsSuccessesAndFailures(t *testing.T) {
	t.Parallel()

	src := &stubSource{users: []*model.User{
		{Subject: "a", PendingSolutionID: "search"},
		{Subject: "b", PendingSolutionID: "search"},
		{Subject: "c", PendingSolutionID: "search"},
	}}
	rec := &stubReconciler{fail: map[string]bool{"b": true}}
	recorder := metrics.NewInMemory()

	w := newTestWorker(src, rec, recorder)
	fixed := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }
	w.SetBatchSize(7)

	n, err := w.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b", "c"}, rec.calls)
	assert.Equal(t, 7, src.limit)
	assert.Equal(t, fixed, src.now)

	snap := recorder.Snapshot()
	assert.Equal(t, uint64(2), snap.ReconcileSucceeded)
	assert.Equal(t, uint64(1), snap.ReconcileFailed)
}

func TestProcessOnce_SourceError(t *testing.T) {
	t.Parallel()

	w := newTestWorker(&stubSource{err: errors.New("db down")}, &stubReconciler{}, nil)
	_, err := w.ProcessOnce(context.Background())
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	w := newTestWorker(&stubSource{}, &stubReconciler{}, nil)
	w.SetPollInterval(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Error(t, w.Run(context.Background()), "second Run must be rejected")
}
