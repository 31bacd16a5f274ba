package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type (
	// Invite is the aggregate for a membership invitation. The plaintext
	// credential is never stored, only its digest.
	Invite struct {
		ID              string     `json:"inviteId" bson:"_id"`
		Email           string     `json:"email" bson:"email"`
		NormalizedEmail string     `json:"-" bson:"normalizedEmail"`
		FullName        string     `json:"fullName,omitempty" bson:"fullName,omitempty"`
		Role            Role       `json:"role" bson:"role"`
		Status          Status     `json:"status" bson:"status"`
		ReminderCount   int        `json:"reminderCount" bson:"reminderCount"`
		Channels        []Channel  `json:"channels" bson:"channels"`
		CreatedBy       string     `json:"createdBy" bson:"createdBy"`
		LastSentBy      string     `json:"lastSentBy,omitempty" bson:"lastSentBy,omitempty"`
		CreatedAt       time.Time  `json:"createdAt" bson:"createdAt"`
		LastSentAt      *time.Time `json:"lastSentAt,omitempty" bson:"lastSentAt,omitempty"`
		ExpiresAt       time.Time  `json:"expiresAt" bson:"expiresAt"`
		UsedAt          *time.Time `json:"usedAt,omitempty" bson:"usedAt,omitempty"`
		RevokedAt       *time.Time `json:"revokedAt,omitempty" bson:"revokedAt,omitempty"`

		CredentialDigest string `json:"-" bson:"credentialDigest"`

		// PendingKey equals NormalizedEmail while the invite is pending and is
		// unset otherwise. A unique index on it guarantees at most one pending
		// invite per email.
		PendingKey *string `json:"-" bson:"pendingKey,omitempty"`
	}

	// ReminderRecord is the append-only trail of successful resends. Rows are
	// never updated or deleted.
	ReminderRecord struct {
		ID          string    `json:"id" bson:"_id"`
		InviteID    string    `json:"inviteId" bson:"inviteId"`
		SentBy      string    `json:"sentBy" bson:"sentBy"`
		SentAt      time.Time `json:"sentAt" bson:"sentAt"`
		Channels    []Channel `json:"channels" bson:"channels"`
		Succeeded   bool      `json:"succeeded" bson:"succeeded"`
		Reactivated bool      `json:"reactivated" bson:"reactivated"`
	}

	//Enum type's
	Status  string
	Role    string
	Channel string
)

const (
	//Available Status's
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRevoked  Status = "revoked"
	StatusExpired  Status = "expired"

	//Available Role's
	RoleMember    Role = "member"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"

	//Available Channel's
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ValidRole reports whether r belongs to the closed set of membership roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleMember, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// NormalizeEmail lower-cases and trims an address. The result is used for
// uniqueness only, never for display.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidChannel reports whether c is a known delivery channel.
func ValidChannel(c Channel) bool {
	return c == ChannelEmail || c == ChannelSMS
}

// NewInvite builds a pending invite with a fresh expiry window. The caller
// supplies the digest of the credential it just issued and the delivery
// channels the invite goes out over; nil channels fall back to email alone.
func NewInvite(email, fullName string, role Role, createdBy, credentialDigest string, channels []Channel, ttl time.Duration, now time.Time) *Invite {
	normalized := NormalizeEmail(email)
	key := normalized
	if len(channels) == 0 {
		channels = []Channel{ChannelEmail}
	}
	return &Invite{
		ID:               uuid.NewString(),
		Email:            strings.TrimSpace(email),
		NormalizedEmail:  normalized,
		FullName:         strings.TrimSpace(fullName),
		Role:             role,
		Status:           StatusPending,
		ReminderCount:    0,
		Channels:         append([]Channel(nil), channels...),
		CreatedBy:        createdBy,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
		CredentialDigest: credentialDigest,
		PendingKey:       &key,
	}
}

// EffectiveStatus derives the real-time status. Expiry is a soft condition:
// a pending invite past its expiry reads as expired without any write, and a
// resend can still reactivate it. Terminal statuses are returned as stored.
func (i *Invite) EffectiveStatus(now time.Time) Status {
	switch i.Status {
	case StatusAccepted, StatusRevoked:
		return i.Status
	}
	if !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt) {
		return StatusExpired
	}
	if i.Status == StatusExpired {
		// backfilled by the sweeper but the expiry was since pushed out
		return StatusPending
	}
	return i.Status
}

// IsTerminal reports whether the stored status permits no further mutation.
func (i *Invite) IsTerminal() bool {
	return i.Status == StatusAccepted || i.Status == StatusRevoked
}

// NewReminderRecord captures one successful resend.
func NewReminderRecord(inviteID, sentBy string, channels []Channel, reactivated bool, now time.Time) *ReminderRecord {
	return &ReminderRecord{
		ID:          uuid.NewString(),
		InviteID:    inviteID,
		SentBy:      sentBy,
		SentAt:      now,
		Channels:    channels,
		Succeeded:   true,
		Reactivated: reactivated,
	}
}
