// Package invites implements the invite lifecycle: create, resend, revoke
// and accept as atomic operations over the store, with credential rotation,
// guardrails and mandatory audit emission on every attempt.
package invites

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/gatehouse-api/gatehouse/audit"
	"github.com/gatehouse-api/gatehouse/clients"
	"github.com/gatehouse-api/gatehouse/models"
	"github.com/gatehouse-api/gatehouse/utils/token"
)

const (
	// ChannelPolicyMirror resends over whatever channels the original send
	// used; ChannelPolicyEmailOnly always falls back to email alone.
	ChannelPolicyMirror    = "mirror-original"
	ChannelPolicyEmailOnly = "email-only"
)

const (
	// StatusInvalidOrExpired is the single user-facing reason for every way
	// an accept can fail against the credential: unknown, rotated, expired,
	// revoked or already used. Collapsing them avoids an oracle for probing.
	StatusInvalidOrExpired = "Invalid or expired invite"
	StatusUserExists       = "User already exists"

	statusPasswordTooShort = "Password must be at least 8 characters"

	minPasswordLength = 8
)

type (
	// Config is consumed, not owned, by the engine; values come from the
	// environment.
	Config struct {
		ReminderCap          int
		InviteTTL            time.Duration
		WebURL               string
		ChannelPolicy        string
		ResendAlertThreshold int64
		ResendAlertWindow    time.Duration
		SessionSecret        string
		SessionTTL           time.Duration
	}

	// Engine orchestrates the lifecycle. The storage handle is threaded
	// through the constructor; there is no ambient global state.
	Engine struct {
		store    clients.StoreClient
		notifier clients.Notifier
		recorder *audit.Recorder
		config   Config
		logger   *zap.SugaredLogger
		now      func() time.Time
	}

	CreateParams struct {
		Email    string
		FullName string
		Role     models.Role
		Actor    string
		Channels []models.Channel
	}

	CreateResult struct {
		Invite     *models.Invite
		InviteLink audit.Sensitive
		ExpiresAt  time.Time
		Conflicts  []models.ConflictFlag
	}

	ResendResult struct {
		Invite      *models.Invite
		InviteURL   audit.Sensitive
		Eligibility models.Eligibility
		Reactivated bool
	}

	RevokeResult struct {
		Invite *models.Invite
	}

	AcceptParams struct {
		Password string
		FullName string
	}

	AcceptResult struct {
		Account      *models.Account
		SessionToken audit.Sensitive
	}

	// Context is the read-only resend projection. InviteURL is always null
	// by contract: a live credential is only ever minted and returned by the
	// mutating resend call.
	Context struct {
		InviteID          string           `json:"inviteId"`
		Email             string           `json:"email"`
		FullName          string           `json:"fullName,omitempty"`
		Status            models.Status    `json:"status"`
		ReminderCount     int              `json:"reminderCount"`
		ReminderCap       int              `json:"reminderCap"`
		LastSentAt        *time.Time       `json:"lastSentAt"`
		LastSentBy        string           `json:"lastSentBy,omitempty"`
		Channels          []models.Channel `json:"channels"`
		ResendEligible    bool             `json:"resendEligible"`
		EligibilityReason string           `json:"eligibilityReason,omitempty"`
		InviteURL         *string          `json:"inviteUrl"`
		UsedAt            *time.Time       `json:"usedAt"`
		RevokedAt         *time.Time       `json:"revokedAt"`
		ExpiresAt         time.Time        `json:"expiresAt"`
	}
)

// NewEngine wires the lifecycle engine. Zero config values fall back to safe
// defaults.
func NewEngine(store clients.StoreClient, notifier clients.Notifier, recorder *audit.Recorder, config Config, logger *zap.SugaredLogger) *Engine {
	if config.ReminderCap <= 0 {
		config.ReminderCap = 3
	}
	if config.InviteTTL <= 0 {
		config.InviteTTL = 7 * 24 * time.Hour
	}
	if config.ChannelPolicy == "" {
		config.ChannelPolicy = ChannelPolicyMirror
	}
	if config.ResendAlertWindow <= 0 {
		config.ResendAlertWindow = time.Hour
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 24 * time.Hour
	}
	return &Engine{
		store:    store,
		notifier: notifier,
		recorder: recorder,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// SetClock overrides the engine clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// ReminderCap exposes the configured cap for read-side projections.
func (e *Engine) ReminderCap() int { return e.config.ReminderCap }

func (e *Engine) inviteURL(credential string) string {
	return fmt.Sprintf("%s/join?token=%s", strings.TrimRight(e.config.WebURL, "/"), credential)
}

// Create issues a fresh pending invite. It is an upsert keyed by normalized
// email: an existing pending row for the address is overwritten rather than
// duplicated, and any terminal or expired row is superseded.
func (e *Engine) Create(ctx context.Context, params CreateParams) (*CreateResult, error) {
	email := strings.TrimSpace(params.Email)
	if email == "" || !strings.Contains(email, "@") {
		reason := "a valid email address is required"
		e.recordFailure(ctx, audit.ActionCreate, "", params.Actor, email, reason, nil)
		return nil, &GuardrailError{Reason: reason}
	}
	if !models.ValidRole(params.Role) {
		reason := fmt.Sprintf("unknown role %q", params.Role)
		e.recordFailure(ctx, audit.ActionCreate, "", params.Actor, email, reason, nil)
		return nil, &GuardrailError{Reason: reason}
	}
	channels, bad := normalizeChannels(params.Channels)
	if bad != "" {
		reason := fmt.Sprintf("unknown channel %q", bad)
		e.recordFailure(ctx, audit.ActionCreate, "", params.Actor, email, reason, nil)
		return nil, &GuardrailError{Reason: reason}
	}

	now := e.now()
	conflicts := e.detectConflicts(ctx, models.NormalizeEmail(email))

	credential, digest, err := token.Issue()
	if err != nil {
		e.recordFailure(ctx, audit.ActionCreate, "", params.Actor, email, "credential issuance failed", err)
		return nil, errors.Wrap(err, "issuing credential")
	}

	invite := models.NewInvite(email, params.FullName, params.Role, params.Actor, digest, channels, e.config.InviteTTL, now)
	stored, err := e.store.UpsertPendingInvite(ctx, invite)
	if err != nil {
		e.recordFailure(ctx, audit.ActionCreate, invite.ID, params.Actor, email, "storage failure", err)
		return nil, errors.Wrap(err, "storing invite")
	}

	link := e.inviteURL(credential)
	e.recorder.Record(ctx, audit.Event{
		Action:   audit.ActionCreate,
		Outcome:  audit.OutcomeSuccess,
		InviteID: stored.ID,
		Actor:    params.Actor,
		Email:    stored.Email,
		Fields: map[string]interface{}{
			"role":      stored.Role,
			"expiresAt": stored.ExpiresAt,
			"conflicts": conflictStrings(conflicts),
			"inviteUrl": audit.Sensitive(link),
		},
	})

	e.deliver(stored, link, "You have been invited")

	return &CreateResult{
		Invite:     stored,
		InviteLink: audit.Sensitive(link),
		ExpiresAt:  stored.ExpiresAt,
		Conflicts:  conflicts,
	}, nil
}

// Resend rotates the credential and reminds the invitee. A soft-expired
// invite is deliberately still resendable and is silently reactivated to
// pending with a fresh expiry; the audit trail distinguishes that case.
func (e *Engine) Resend(ctx context.Context, id, actor string) (*ResendResult, error) {
	started := e.now()
	outcome := audit.OutcomeFailure
	defer func() {
		e.recorder.ObserveResendLatency(ctx, e.now().Sub(started), outcome)
	}()

	invite, err := e.store.FindInviteByID(ctx, id)
	if err != nil {
		e.recordFailure(ctx, audit.ActionResend, id, actor, "", "storage failure", err)
		return nil, errors.Wrap(err, "finding invite")
	}
	if invite == nil {
		e.recordFailure(ctx, audit.ActionResend, id, actor, "", "unknown invite", nil)
		return nil, ErrNotFound
	}

	if eligibility := models.EvaluateResend(invite, e.config.ReminderCap); !eligibility.Eligible {
		e.recordFailure(ctx, audit.ActionResend, id, actor, invite.Email, eligibility.Reason, nil)
		return nil, eligibilityError(invite, eligibility)
	}

	now := e.now()
	reactivated := invite.EffectiveStatus(now) == models.StatusExpired
	action := audit.ActionResend
	if reactivated {
		action = audit.ActionReactivate
	}

	credential, digest, err := token.Issue()
	if err != nil {
		e.recordFailure(ctx, action, id, actor, invite.Email, "credential issuance failed", err)
		return nil, errors.Wrap(err, "issuing credential")
	}

	updated, err := e.store.RecordReminder(ctx, clients.ReminderUpdate{
		InviteID:    id,
		Digest:      digest,
		Actor:       actor,
		SentAt:      now,
		ExpiresAt:   now.Add(e.config.InviteTTL),
		ReminderCap: e.config.ReminderCap,
		Channels:    e.resendChannels(invite),
		Reactivated: reactivated,
	})
	if err != nil {
		e.recordFailure(ctx, action, id, actor, invite.Email, "storage failure", err)
		return nil, errors.Wrap(err, "recording reminder")
	}
	if updated == nil {
		// lost a race: someone else moved the invite or took the last slot
		return nil, e.resendRaceOutcome(ctx, action, id, actor)
	}

	e.monitorActorRate(ctx, actor, now)

	link := e.inviteURL(credential)
	outcome = audit.OutcomeSuccess
	e.recorder.Record(ctx, audit.Event{
		Action:   action,
		Outcome:  audit.OutcomeSuccess,
		InviteID: updated.ID,
		Actor:    actor,
		Email:    updated.Email,
		Fields: map[string]interface{}{
			"reminderCount": updated.ReminderCount,
			"reminderCap":   e.config.ReminderCap,
			"channels":      channelStrings(updated.Channels),
			"expiresAt":     updated.ExpiresAt,
			"inviteUrl":     audit.Sensitive(link),
		},
	})

	subject := "Reminder: you have been invited"
	if reactivated {
		subject = "Your invitation has been renewed"
	}
	e.deliver(updated, link, subject)

	return &ResendResult{
		Invite:      updated,
		InviteURL:   audit.Sensitive(link),
		Eligibility: models.EvaluateResend(updated, e.config.ReminderCap),
		Reactivated: reactivated,
	}, nil
}

func (e *Engine) resendRaceOutcome(ctx context.Context, action, id, actor string) error {
	invite, err := e.store.FindInviteByID(ctx, id)
	if err != nil {
		e.recordFailure(ctx, action, id, actor, "", "storage failure", err)
		return errors.Wrap(err, "re-reading invite")
	}
	if invite == nil {
		e.recordFailure(ctx, action, id, actor, "", "unknown invite", nil)
		return ErrNotFound
	}
	if eligibility := models.EvaluateResend(invite, e.config.ReminderCap); !eligibility.Eligible {
		e.recordFailure(ctx, action, id, actor, invite.Email, eligibility.Reason, nil)
		return eligibilityError(invite, eligibility)
	}
	e.recordFailure(ctx, action, id, actor, invite.Email, "concurrent update", nil)
	return errors.New("invite changed concurrently")
}

func eligibilityError(invite *models.Invite, eligibility models.Eligibility) error {
	if invite.IsTerminal() {
		return &ConflictError{Reason: "invite " + eligibility.Reason}
	}
	return &GuardrailError{Reason: eligibility.Reason}
}

// normalizeChannels dedupes the requested channels and guarantees email is
// always among them. Returns the first unknown channel, if any.
func normalizeChannels(requested []models.Channel) ([]models.Channel, models.Channel) {
	channels := []models.Channel{models.ChannelEmail}
	seen := map[models.Channel]bool{models.ChannelEmail: true}
	for _, c := range requested {
		if !models.ValidChannel(c) {
			return nil, c
		}
		if !seen[c] {
			seen[c] = true
			channels = append(channels, c)
		}
	}
	return channels, ""
}

func (e *Engine) resendChannels(invite *models.Invite) []models.Channel {
	if e.config.ChannelPolicy == ChannelPolicyEmailOnly || len(invite.Channels) == 0 {
		return []models.Channel{models.ChannelEmail}
	}
	return append([]models.Channel(nil), invite.Channels...)
}

func (e *Engine) monitorActorRate(ctx context.Context, actor string, now time.Time) {
	if e.config.ResendAlertThreshold <= 0 {
		return
	}
	count, err := e.store.CountRecentRemindersByActor(ctx, actor, now.Add(-e.config.ResendAlertWindow))
	if err != nil {
		e.logger.With(zap.Error(err)).Warn("counting recent resends")
		return
	}
	if count > e.config.ResendAlertThreshold {
		e.recorder.AlertResendRate(ctx, actor, count, e.config.ResendAlertThreshold)
	}
}

// Revoke moves a non-terminal invite to revoked, freeing the email for a
// fresh create.
func (e *Engine) Revoke(ctx context.Context, id, actor, reason string) (*RevokeResult, error) {
	invite, err := e.store.FindInviteByID(ctx, id)
	if err != nil {
		e.recordFailure(ctx, audit.ActionRevoke, id, actor, "", "storage failure", err)
		return nil, errors.Wrap(err, "finding invite")
	}
	if invite == nil {
		e.recordFailure(ctx, audit.ActionRevoke, id, actor, "", "unknown invite", nil)
		return nil, ErrNotFound
	}

	if eligibility := models.EvaluateRevoke(invite); !eligibility.Eligible {
		e.recordFailure(ctx, audit.ActionRevoke, id, actor, invite.Email, eligibility.Reason, nil)
		return nil, &ConflictError{Reason: "invite " + eligibility.Reason}
	}

	updated, err := e.store.RevokeInvite(ctx, id, e.now())
	if err != nil {
		e.recordFailure(ctx, audit.ActionRevoke, id, actor, invite.Email, "storage failure", err)
		return nil, errors.Wrap(err, "revoking invite")
	}
	if updated == nil {
		// raced against another revoke or an accept
		refetched, err := e.store.FindInviteByID(ctx, id)
		if err == nil && refetched != nil {
			eligibility := models.EvaluateRevoke(refetched)
			e.recordFailure(ctx, audit.ActionRevoke, id, actor, refetched.Email, eligibility.Reason, nil)
			return nil, &ConflictError{Reason: "invite " + eligibility.Reason}
		}
		e.recordFailure(ctx, audit.ActionRevoke, id, actor, invite.Email, "unknown invite", err)
		return nil, ErrNotFound
	}

	e.recorder.Record(ctx, audit.Event{
		Action:   audit.ActionRevoke,
		Outcome:  audit.OutcomeSuccess,
		InviteID: updated.ID,
		Actor:    actor,
		Email:    updated.Email,
		Fields:   map[string]interface{}{"note": reason},
	})

	return &RevokeResult{Invite: updated}, nil
}

// Accept redeems a presented credential exactly once, creating the account
// and minting a session. Every distinct failure collapses to the same
// user-facing reason.
func (e *Engine) Accept(ctx context.Context, credential string, params AcceptParams) (*AcceptResult, error) {
	invalid := func(internalReason string) error {
		e.recordFailure(ctx, audit.ActionAccept, "", "", "", internalReason, nil)
		return &GuardrailError{Reason: StatusInvalidOrExpired}
	}

	if credential == "" {
		return nil, invalid("no credential presented")
	}

	invite, err := e.store.FindInviteByDigest(ctx, token.Digest(credential))
	if err != nil {
		e.recordFailure(ctx, audit.ActionAccept, "", "", "", "storage failure", err)
		return nil, errors.Wrap(err, "finding invite")
	}
	if invite == nil {
		return nil, invalid("no invite for presented credential")
	}
	if !token.Verify(credential, invite.CredentialDigest) {
		return nil, invalid("credential digest mismatch")
	}

	now := e.now()
	if invite.EffectiveStatus(now) != models.StatusPending || invite.UsedAt != nil || invite.RevokedAt != nil {
		e.recordFailure(ctx, audit.ActionAccept, invite.ID, "", invite.Email,
			fmt.Sprintf("invite not redeemable in status %s", invite.EffectiveStatus(now)), nil)
		return nil, &GuardrailError{Reason: StatusInvalidOrExpired}
	}

	if len(params.Password) < minPasswordLength {
		e.recordFailure(ctx, audit.ActionAccept, invite.ID, "", invite.Email, "password too short", nil)
		return nil, &GuardrailError{Reason: statusPasswordTooShort}
	}

	existing, err := e.store.FindAccountByEmail(ctx, invite.NormalizedEmail)
	if err != nil {
		e.recordFailure(ctx, audit.ActionAccept, invite.ID, "", invite.Email, "storage failure", err)
		return nil, errors.Wrap(err, "checking for existing account")
	}
	if existing != nil {
		e.recordFailure(ctx, audit.ActionAccept, invite.ID, "", invite.Email, "account already exists", nil)
		return nil, &GuardrailError{Reason: StatusUserExists}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		e.recordFailure(ctx, audit.ActionAccept, invite.ID, "", invite.Email, "hashing password failed", err)
		return nil, errors.Wrap(err, "hashing password")
	}

	account := models.NewAccount(invite, params.FullName, string(hash), now)
	updated, err := e.store.AcceptInvite(ctx, clients.AcceptUpdate{
		InviteID: invite.ID,
		Digest:   invite.CredentialDigest,
		UsedAt:   now,
		Account:  account,
	})
	if err != nil {
		e.recordFailure(ctx, audit.ActionAccept, invite.ID, "", invite.Email, "storage failure", err)
		return nil, errors.Wrap(err, "accepting invite")
	}
	if updated == nil {
		// a concurrent accept or resend got there first: the row no longer
		// matches the presented credential unused
		e.recordFailure(ctx, audit.ActionAccept, invite.ID, "", invite.Email, "invite no longer redeemable", nil)
		return nil, &GuardrailError{Reason: StatusInvalidOrExpired}
	}

	session, err := e.mintSession(account, now)
	if err != nil {
		e.recordFailure(ctx, audit.ActionAccept, updated.ID, "", updated.Email, "minting session failed", err)
		return nil, errors.Wrap(err, "minting session")
	}

	e.recorder.Record(ctx, audit.Event{
		Action:   audit.ActionAccept,
		Outcome:  audit.OutcomeSuccess,
		InviteID: updated.ID,
		Email:    updated.Email,
		Fields: map[string]interface{}{
			"accountId":    account.ID,
			"role":         account.Role,
			"sessionToken": session,
		},
	})

	return &AcceptResult{Account: account, SessionToken: session}, nil
}

func (e *Engine) mintSession(account *models.Account, now time.Time) (audit.Sensitive, error) {
	claims := jwt.MapClaims{
		"sub":   account.ID,
		"email": account.Email,
		"role":  string(account.Role),
		"iat":   now.Unix(),
		"exp":   now.Add(e.config.SessionTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(e.config.SessionSecret))
	if err != nil {
		return "", err
	}
	return audit.Sensitive(signed), nil
}

// ResendContext returns the read-only projection behind the resend dialog.
// No credential is minted or returned here.
func (e *Engine) ResendContext(ctx context.Context, id string) (*Context, error) {
	invite, err := e.store.FindInviteByID(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "finding invite")
	}
	if invite == nil {
		return nil, ErrNotFound
	}

	eligibility := models.EvaluateResend(invite, e.config.ReminderCap)
	return &Context{
		InviteID:          invite.ID,
		Email:             invite.Email,
		FullName:          invite.FullName,
		Status:            invite.EffectiveStatus(e.now()),
		ReminderCount:     invite.ReminderCount,
		ReminderCap:       e.config.ReminderCap,
		LastSentAt:        invite.LastSentAt,
		LastSentBy:        invite.LastSentBy,
		Channels:          invite.Channels,
		ResendEligible:    eligibility.Eligible,
		EligibilityReason: eligibility.Reason,
		InviteURL:         nil,
		UsedAt:            invite.UsedAt,
		RevokedAt:         invite.RevokedAt,
		ExpiresAt:         invite.ExpiresAt,
	}, nil
}

func (e *Engine) detectConflicts(ctx context.Context, normalizedEmail string) []models.ConflictFlag {
	var flags []models.ConflictFlag

	account, err := e.store.FindAccountByEmail(ctx, normalizedEmail)
	if err != nil {
		e.logger.With(zap.Error(err)).Warn("checking for existing account")
	} else if account != nil && account.Status == models.AccountDeactivated {
		flags = append(flags, models.ConflictDeactivatedUser)
	}

	history, err := e.store.FindInvitesByEmail(ctx, normalizedEmail)
	if err != nil {
		e.logger.With(zap.Error(err)).Warn("checking invite history")
	} else if len(history) > 1 {
		flags = append(flags, models.ConflictDuplicateEmail)
	}

	return flags
}

func (e *Engine) deliver(invite *models.Invite, link, subject string) {
	body := fmt.Sprintf("<p>Hello %s,</p><p>Follow <a href=%q>this link</a> to join.</p>",
		invite.FullName, link)
	if code, details := e.notifier.Send([]string{invite.Email}, subject, body); code != http.StatusOK {
		e.logger.With(
			"inviteId", invite.ID,
			"status", code,
			"message", audit.Redact(details),
		).Error("sending invite notification")
	}
}

func (e *Engine) recordFailure(ctx context.Context, action, inviteID, actor, email, reason string, err error) {
	event := audit.Event{
		Action:   action,
		Outcome:  audit.OutcomeFailure,
		InviteID: inviteID,
		Actor:    actor,
		Email:    email,
		Reason:   reason,
	}
	if err != nil {
		event.Fields = map[string]interface{}{"error": err.Error()}
	}
	e.recorder.Record(ctx, event)
}

func conflictStrings(flags []models.ConflictFlag) []string {
	out := make([]string, len(flags))
	for i, flag := range flags {
		out[i] = string(flag)
	}
	return out
}

func channelStrings(channels []models.Channel) []string {
	out := make([]string, len(channels))
	for i, channel := range channels {
		out[i] = string(channel)
	}
	return out
}
