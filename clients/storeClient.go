package clients

import (
	"context"
	"time"

	"github.com/gatehouse-api/gatehouse/models"
)

type (
	// StoreClient is the persistence contract for invites, reminder records
	// and accounts. Lookups that find nothing return (nil, nil); the caller
	// decides whether that is an error.
	StoreClient interface {
		Ping(ctx context.Context) error
		Close(ctx context.Context) error

		// UpsertPendingInvite inserts the invite, or overwrites the existing
		// pending row for the same normalized email, keeping that row's id.
		// This is how pending uniqueness holds without a separate violation
		// path.
		UpsertPendingInvite(ctx context.Context, invite *models.Invite) (*models.Invite, error)

		FindInviteByID(ctx context.Context, id string) (*models.Invite, error)
		FindInviteByDigest(ctx context.Context, digest string) (*models.Invite, error)
		FindInvitesByEmail(ctx context.Context, normalizedEmail string) ([]*models.Invite, error)
		ListInvites(ctx context.Context, params ListInvitesParams) ([]*models.Invite, int64, error)

		// RecordReminder applies one resend atomically: the reminder count is
		// incremented in the store (bounded by the cap in the update filter,
		// never read-modify-write in application code), the credential digest
		// is rotated, the expiry window is reset, and the ReminderRecord is
		// appended in the same transaction. Returns (nil, nil) when the
		// filter matched nothing, e.g. the loser of a race to the cap.
		RecordReminder(ctx context.Context, update ReminderUpdate) (*models.Invite, error)

		// RevokeInvite moves a non-terminal invite to revoked and clears its
		// pending key. Returns (nil, nil) if the invite was already terminal.
		RevokeInvite(ctx context.Context, id string, now time.Time) (*models.Invite, error)

		// AcceptInvite flips a pending, never-used invite to accepted and
		// inserts the account in one transaction. The filter pins the
		// presented credential digest, the used-at-null guard and a live
		// expiry, so a credential rotated away by a concurrent resend
		// matches nothing and of two concurrent accepts exactly one gets a
		// non-nil result. A failed account insert aborts the invite
		// mutation with it. Returns (nil, nil) when the filter matched
		// nothing.
		AcceptInvite(ctx context.Context, update AcceptUpdate) (*models.Invite, error)

		// MarkInvitesExpired persists the expired status on pending rows past
		// their expiry, for reporting only. The enforcement path always uses
		// the derived real-time value.
		MarkInvitesExpired(ctx context.Context, now time.Time) (int64, error)

		FindRemindersByInvite(ctx context.Context, inviteID string) ([]*models.ReminderRecord, error)
		CountRecentRemindersByActor(ctx context.Context, actor string, since time.Time) (int64, error)

		FindAccountByEmail(ctx context.Context, normalizedEmail string) (*models.Account, error)
		ListAccounts(ctx context.Context, params ListAccountsParams) ([]*models.Account, int64, error)
	}

	// ListInvitesParams filters the paginated invite listing.
	ListInvitesParams struct {
		Statuses []models.Status
		Search   string
		Offset   int64
		Limit    int64
	}

	// ListAccountsParams filters the paginated account listing.
	ListAccountsParams struct {
		Statuses []models.AccountStatus
		Search   string
		Offset   int64
		Limit    int64
	}

	// AcceptUpdate carries everything one accept writes. Digest is the
	// digest of the credential the redeemer presented, not whatever is
	// currently stored.
	AcceptUpdate struct {
		InviteID string
		Digest   string
		UsedAt   time.Time
		Account  *models.Account
	}

	// ReminderUpdate carries everything one resend writes.
	ReminderUpdate struct {
		InviteID    string
		Digest      string
		Actor       string
		SentAt      time.Time
		ExpiresAt   time.Time
		ReminderCap int
		Channels    []models.Channel
		Reactivated bool
	}
)
