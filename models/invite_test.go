package models

import (
	"testing"
	"time"
)

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Ada@Example.COM", "ada@example.com"},
		{"  spaced@example.com  ", "spaced@example.com"},
		{"plain@example.com", "plain@example.com"},
	}
	for _, test := range tests {
		if got := NormalizeEmail(test.input); got != test.expected {
			t.Errorf("NormalizeEmail(%q) = %q, expected %q", test.input, got, test.expected)
		}
	}
}

func TestNewInvite(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	invite := NewInvite(" Ada@Example.com ", "Ada Lovelace", RoleMember, "admin-1", "digest", nil, 7*24*time.Hour, now)

	if invite.Status != StatusPending {
		t.Errorf("expected pending status, got %s", invite.Status)
	}
	if invite.Email != "Ada@Example.com" {
		t.Errorf("expected trimmed original casing, got %q", invite.Email)
	}
	if invite.NormalizedEmail != "ada@example.com" {
		t.Errorf("expected normalized email, got %q", invite.NormalizedEmail)
	}
	if invite.PendingKey == nil || *invite.PendingKey != invite.NormalizedEmail {
		t.Errorf("expected pending key to equal normalized email")
	}
	if !invite.ExpiresAt.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Errorf("unexpected expiry %v", invite.ExpiresAt)
	}
	if invite.ReminderCount != 0 {
		t.Errorf("expected zero reminders, got %d", invite.ReminderCount)
	}
	if len(invite.Channels) != 1 || invite.Channels[0] != ChannelEmail {
		t.Errorf("expected email as the default channel, got %v", invite.Channels)
	}

	mirrored := NewInvite("sms@example.com", "", RoleMember, "admin-1", "digest",
		[]Channel{ChannelEmail, ChannelSMS}, 7*24*time.Hour, now)
	if len(mirrored.Channels) != 2 || mirrored.Channels[1] != ChannelSMS {
		t.Errorf("expected requested channels to be kept, got %v", mirrored.Channels)
	}
}

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		desc     string
		stored   Status
		expires  time.Time
		expected Status
	}{
		{"pending before expiry", StatusPending, now.Add(time.Hour), StatusPending},
		{"pending past expiry", StatusPending, now.Add(-time.Hour), StatusExpired},
		{"accepted ignores expiry", StatusAccepted, now.Add(-time.Hour), StatusAccepted},
		{"revoked ignores expiry", StatusRevoked, now.Add(-time.Hour), StatusRevoked},
		{"stored expired with future expiry reads pending", StatusExpired, now.Add(time.Hour), StatusPending},
		{"stored expired past expiry stays expired", StatusExpired, now.Add(-time.Hour), StatusExpired},
	}
	for _, test := range tests {
		invite := &Invite{Status: test.stored, ExpiresAt: test.expires}
		if got := invite.EffectiveStatus(now); got != test.expected {
			t.Errorf("%s: got %s, expected %s", test.desc, got, test.expected)
		}
	}
}
