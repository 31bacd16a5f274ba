package invites

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gatehouse-api/gatehouse/clients"
	"github.com/gatehouse-api/gatehouse/models"
	"github.com/gatehouse-api/gatehouse/testutil"
)

func TestExpirerSweep(t *testing.T) {
	engine, store, clock := newTestEngine(t)
	ctx := context.Background()

	stale := mustCreate(t, engine, "stale@example.com")
	clock.Advance(8 * 24 * time.Hour)
	fresh := mustCreate(t, engine, "fresh@example.com")

	// the zap test sink registers once per test, so the sweeper gets a nop
	expirer := NewExpirer(store, zap.NewNop().Sugar(), time.Minute)
	expirer.now = clock.Now
	expirer.sweep(ctx)

	staleStored, _ := store.FindInviteByID(ctx, stale.Invite.ID)
	if staleStored.Status != models.StatusExpired {
		t.Errorf("expected stored expired status, got %s", staleStored.Status)
	}
	freshStored, _ := store.FindInviteByID(ctx, fresh.Invite.ID)
	if freshStored.Status != models.StatusPending {
		t.Errorf("fresh invite must stay pending, got %s", freshStored.Status)
	}

	// the flip does not make expiry terminal; a resend still reactivates
	result, err := engine.Resend(ctx, stale.Invite.ID, "admin-1")
	if err != nil {
		t.Fatalf("resending swept invite: %v", err)
	}
	if !result.Reactivated {
		t.Errorf("expected reactivation after sweep")
	}
}

func TestExpirerStartStop(t *testing.T) {
	store := clients.NewMockStoreClient()
	logger := testutil.NewLogger(t)
	expirer := NewExpirer(store, logger, time.Hour)
	expirer.Start()
	expirer.Stop()

	// Stop with no Start is a no-op
	idle := NewExpirer(store, logger, time.Hour)
	idle.Stop()
}
