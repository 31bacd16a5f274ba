package models

import (
	"time"

	"github.com/google/uuid"
)

type (
	// Account is created exactly once, when an invite is accepted. This
	// service never mutates it afterwards.
	Account struct {
		ID              string        `json:"userId" bson:"_id"`
		Email           string        `json:"email" bson:"email"`
		NormalizedEmail string        `json:"-" bson:"normalizedEmail"`
		FullName        string        `json:"fullName,omitempty" bson:"fullName,omitempty"`
		Role            Role          `json:"role" bson:"role"`
		Status          AccountStatus `json:"status" bson:"status"`
		InviteID        string        `json:"-" bson:"inviteId"`
		InvitedBy       string        `json:"-" bson:"invitedBy"`
		CreatedAt       time.Time     `json:"createdAt" bson:"createdAt"`

		PasswordHash string `json:"-" bson:"passwordHash"`
	}

	AccountStatus string
)

const (
	AccountActive      AccountStatus = "active"
	AccountDeactivated AccountStatus = "deactivated"
)

// NewAccount builds the account minted by a successful accept.
func NewAccount(invite *Invite, fullName, passwordHash string, now time.Time) *Account {
	name := fullName
	if name == "" {
		name = invite.FullName
	}
	return &Account{
		ID:              uuid.NewString(),
		Email:           invite.Email,
		NormalizedEmail: invite.NormalizedEmail,
		FullName:        name,
		Role:            invite.Role,
		Status:          AccountActive,
		InviteID:        invite.ID,
		InvitedBy:       invite.CreatedBy,
		CreatedAt:       now,
		PasswordHash:    passwordHash,
	}
}
