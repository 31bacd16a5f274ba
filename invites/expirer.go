package invites

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gatehouse-api/gatehouse/clients"
)

// Expirer periodically hardens expiry: pending invites past their deadline
// get their stored status flipped to expired. The flip is cosmetic for
// correctness, since every read and guardrail derives status from the
// deadline, but it keeps raw collection scans honest and feeds dashboards.
// Expired rows keep their pending key so a resend can still reactivate them.
type Expirer struct {
	store    clients.StoreClient
	logger   *zap.SugaredLogger
	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func NewExpirer(store clients.StoreClient, logger *zap.SugaredLogger, interval time.Duration) *Expirer {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Expirer{
		store:    store,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start launches the sweep loop. It returns immediately; the first sweep
// runs right away rather than waiting a full interval.
func (e *Expirer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		e.sweep(ctx)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.sweep(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (e *Expirer) Stop() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
}

func (e *Expirer) sweep(ctx context.Context) {
	flipped, err := e.store.MarkInvitesExpired(ctx, e.now())
	if err != nil {
		e.logger.With(zap.Error(err)).Error("sweeping expired invites")
		return
	}
	if flipped > 0 {
		e.logger.With("count", flipped).Info("marked invites expired")
	}
}
