package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-api/gatehouse/models"
)

// The mock mirrors the Mongo filter semantics, so these tests pin down the
// store contract the engine relies on: upsert keyed by pending key, the cap
// bound inside the reminder update, and single-use accept.

func seedInvite(t *testing.T, store *MockStoreClient, email string) *models.Invite {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	invite := models.NewInvite(email, "", models.RoleMember, "admin-1", "digest-1", nil, 7*24*time.Hour, now)
	stored, err := store.UpsertPendingInvite(context.Background(), invite)
	require.NoError(t, err)
	return stored
}

func TestUpsertReusesPendingRow(t *testing.T) {
	store := NewMockStoreClient()
	ctx := context.Background()

	first := seedInvite(t, store, "ada@example.com")
	second := seedInvite(t, store, "ada@example.com")
	assert.Equal(t, first.ID, second.ID, "the pending row must be reused")

	rows, err := store.FindInvitesByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRecordReminderBoundedByCap(t *testing.T) {
	store := NewMockStoreClient()
	ctx := context.Background()
	invite := seedInvite(t, store, "ada@example.com")

	update := ReminderUpdate{
		InviteID:    invite.ID,
		Actor:       "admin-1",
		SentAt:      invite.CreatedAt.Add(time.Hour),
		ExpiresAt:   invite.CreatedAt.Add(8 * 24 * time.Hour),
		ReminderCap: 2,
		Channels:    []models.Channel{models.ChannelEmail},
	}

	for i := 1; i <= 2; i++ {
		update.Digest = "rotated-digest"
		updated, err := store.RecordReminder(ctx, update)
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, i, updated.ReminderCount)
	}

	// the filter refuses the third, no partial write happens
	updated, err := store.RecordReminder(ctx, update)
	require.NoError(t, err)
	assert.Nil(t, updated)

	stored, err := store.FindInviteByID(ctx, invite.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ReminderCount)

	records, err := store.FindRemindersByInvite(ctx, invite.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2, "refused resends append no reminder record")
}

func acceptUpdateFor(invite *models.Invite, digest string) AcceptUpdate {
	now := invite.CreatedAt.Add(time.Hour)
	return AcceptUpdate{
		InviteID: invite.ID,
		Digest:   digest,
		UsedAt:   now,
		Account:  models.NewAccount(invite, "Ada L.", "hash", now),
	}
}

func TestAcceptInviteIsSingleUse(t *testing.T) {
	store := NewMockStoreClient()
	ctx := context.Background()
	invite := seedInvite(t, store, "ada@example.com")

	winner, err := store.AcceptInvite(ctx, acceptUpdateFor(invite, "digest-1"))
	require.NoError(t, err)
	require.NotNil(t, winner)
	assert.Equal(t, models.StatusAccepted, winner.Status)
	assert.Nil(t, winner.PendingKey)

	loser, err := store.AcceptInvite(ctx, acceptUpdateFor(invite, "digest-1"))
	require.NoError(t, err)
	assert.Nil(t, loser, "exactly one accept wins")
}

func TestAcceptInvitePinsCredentialDigest(t *testing.T) {
	store := NewMockStoreClient()
	ctx := context.Background()
	invite := seedInvite(t, store, "ada@example.com")

	// a resend rotated the stored digest away
	_, err := store.RecordReminder(ctx, ReminderUpdate{
		InviteID:    invite.ID,
		Digest:      "digest-2",
		Actor:       "admin-2",
		SentAt:      invite.CreatedAt.Add(time.Minute),
		ExpiresAt:   invite.CreatedAt.Add(8 * 24 * time.Hour),
		ReminderCap: 3,
		Channels:    []models.Channel{models.ChannelEmail},
	})
	require.NoError(t, err)

	stale, err := store.AcceptInvite(ctx, acceptUpdateFor(invite, "digest-1"))
	require.NoError(t, err)
	assert.Nil(t, stale, "a rotated-away credential matches nothing")

	stored, err := store.FindInviteByID(ctx, invite.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.UsedAt)

	fresh, err := store.AcceptInvite(ctx, acceptUpdateFor(invite, "digest-2"))
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestAcceptInviteRollsBackOnAccountInsert(t *testing.T) {
	store := NewMockStoreClient()
	ctx := context.Background()
	invite := seedInvite(t, store, "ada@example.com")
	store.SeedAccount(&models.Account{
		ID:              "user-1",
		Email:           "ada@example.com",
		NormalizedEmail: "ada@example.com",
		Status:          models.AccountActive,
		CreatedAt:       invite.CreatedAt,
	})

	_, err := store.AcceptInvite(ctx, acceptUpdateFor(invite, "digest-1"))
	require.Error(t, err)

	// the refused insert must leave the invite untouched
	stored, err := store.FindInviteByID(ctx, invite.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.UsedAt)
	assert.NotNil(t, stored.PendingKey)
}

func TestRevokeClearsPendingKey(t *testing.T) {
	store := NewMockStoreClient()
	ctx := context.Background()
	invite := seedInvite(t, store, "ada@example.com")

	revoked, err := store.RevokeInvite(ctx, invite.ID, invite.CreatedAt.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, revoked)
	assert.Nil(t, revoked.PendingKey)

	// with the key free a fresh invite lands in a new row
	fresh := seedInvite(t, store, "ada@example.com")
	assert.NotEqual(t, invite.ID, fresh.ID)
}

func TestCountRecentRemindersByActor(t *testing.T) {
	store := NewMockStoreClient()
	ctx := context.Background()
	invite := seedInvite(t, store, "ada@example.com")
	base := invite.CreatedAt

	for i := 0; i < 3; i++ {
		_, err := store.RecordReminder(ctx, ReminderUpdate{
			InviteID:    invite.ID,
			Digest:      "rotated",
			Actor:       "admin-1",
			SentAt:      base.Add(time.Duration(i) * time.Minute),
			ExpiresAt:   base.Add(8 * 24 * time.Hour),
			ReminderCap: 10,
			Channels:    []models.Channel{models.ChannelEmail},
		})
		require.NoError(t, err)
	}

	count, err := store.CountRecentRemindersByActor(ctx, "admin-1", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count, "only reminders inside the window count")

	count, err = store.CountRecentRemindersByActor(ctx, "someone-else", base)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
