// Package reconcile retries signups whose built-in entitlement could not be minted.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/quotagate/quotagate/internal/metrics"
	"github.com/quotagate/quotagate/internal/model"
)

const (
	// DefaultBatchSize is the number of pending users processed per poll.
	DefaultBatchSize = 50
	// DefaultPollInterval is the time between polls for due users.
	DefaultPollInterval = 15 * time.Second
)

// PendingSource lists users whose entitlement retry is due.
type PendingSource interface {
	ListPendingEntitlements(ctx context.Context, now time.Time, limit int) ([]*model.User, error)
}

// Reconciler makes one attempt at minting a pending entitlement. It is
// responsible for clearing or rescheduling the pending state.
type Reconciler interface {
	ReconcilePending(ctx context.Context, user *model.User) error
}

// Worker polls for pending entitlements and retries them.
type Worker struct {
	source       PendingSource
	reconciler   Reconciler
	logger       *slog.Logger
	metrics      metrics.Recorder
	now          func() time.Time
	batchSize    int
	pollInterval time.Duration
	started      atomic.Bool
}

// NewWorker creates a new reconcile worker.
func NewWorker(source PendingSource, reconciler Reconciler, logger *slog.Logger, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		source:       source,
		reconciler:   reconciler,
		logger:       logger.With("component", "reconcile.worker"),
		metrics:      recorder,
		now:          time.Now,
		batchSize:    DefaultBatchSize,
		pollInterval: DefaultPollInterval,
	}
}

// SetBatchSize overrides the batch size when positive.
func (w *Worker) SetBatchSize(n int) {
	if n > 0 {
		w.batchSize = n
	}
}

// SetPollInterval overrides the poll interval when positive.
func (w *Worker) SetPollInterval(d time.Duration) {
	if d > 0 {
		w.pollInterval = d
	}
}

// Run starts the worker loop. Blocks until context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("worker already started")
	}

	w.logger.Info("reconcile worker started", "poll_interval", w.pollInterval.String())

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconcile worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				w.logger.Error("process error", "error", err)
			}
		}
	}
}

// ProcessOnce handles one batch of due users and returns how many were reconciled.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	users, err := w.source.ListPendingEntitlements(ctx, w.now(), w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending entitlements: %w", err)
	}

	reconciled := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return reconciled, err
		}
		if err := w.reconciler.ReconcilePending(ctx, u); err != nil {
			w.metrics.IncEntitlementReconciled("failed")
			w.logger.Warn("pending entitlement retry failed",
				"subject", u.Subject,
				"solution_id", u.PendingSolutionID,
				"attempt", u.PendingAttempts+1,
				"error", err,
			)
			continue
		}
		w.metrics.IncEntitlementReconciled("success")
		w.logger.Info("pending entitlement reconciled",
			"subject", u.Subject,
			"solution_id", u.PendingSolutionID,
		)
		reconciled++
	}

	return reconciled, nil
}
