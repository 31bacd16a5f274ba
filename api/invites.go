package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gatehouse-api/gatehouse/invites"
	"github.com/gatehouse-api/gatehouse/models"
)

type (
	createInviteBody struct {
		Email    string           `json:"email"`
		FullName string           `json:"fullName"`
		Role     models.Role      `json:"role"`
		Channels []models.Channel `json:"channels"`
	}

	createInviteResponse struct {
		InviteID   string                `json:"inviteId"`
		Email      string                `json:"email"`
		Role       models.Role           `json:"role"`
		Status     models.Status         `json:"status"`
		Channels   []models.Channel      `json:"channels"`
		ExpiresAt  time.Time             `json:"expiresAt"`
		InviteLink string                `json:"inviteLink"`
		Conflicts  []models.ConflictFlag `json:"conflicts,omitempty"`
	}

	resendInviteResponse struct {
		InviteID       string           `json:"inviteId"`
		Status         models.Status    `json:"status"`
		ReminderCount  int              `json:"reminderCount"`
		LastSentAt     *time.Time       `json:"lastSentAt"`
		Channels       []models.Channel `json:"channels"`
		ResendEligible bool             `json:"resendEligible"`
		InviteURL      string           `json:"inviteUrl"`
		Message        string           `json:"message"`
	}

	revokeInviteBody struct {
		Reason string `json:"reason"`
	}

	revokeInviteResponse struct {
		ID        string        `json:"id"`
		Status    models.Status `json:"status"`
		RevokedAt *time.Time    `json:"revokedAt"`
		Message   string        `json:"message"`
	}
)

// CreateInvite issues a pending invite for an email address.
//
// status: 201 created, conflicts flagged inline
// status: 400 invalid email, role or channel
func (a *Api) CreateInvite(res http.ResponseWriter, req *http.Request, vars map[string]string) {
	ctx := req.Context()
	actor := a.actor(res, req)
	if actor == "" {
		return
	}

	var body createInviteBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		a.sendError(ctx, res, http.StatusBadRequest, STATUS_ERR_DECODING_BODY, err)
		return
	}

	result, err := a.engine.Create(ctx, invites.CreateParams{
		Email:    body.Email,
		FullName: body.FullName,
		Role:     body.Role,
		Actor:    actor,
		Channels: body.Channels,
	})
	if err != nil {
		a.handleEngineError(ctx, res, err, STATUS_ERR_CREATING_INVITE)
		return
	}

	a.sendModelAsResWithStatus(ctx, res, createInviteResponse{
		InviteID:   result.Invite.ID,
		Email:      result.Invite.Email,
		Role:       result.Invite.Role,
		Status:     result.Invite.Status,
		Channels:   result.Invite.Channels,
		ExpiresAt:  result.ExpiresAt,
		InviteLink: result.InviteLink.Reveal(),
		Conflicts:  result.Conflicts,
	}, http.StatusCreated)
}

// GetResendContext returns the read-only projection behind the resend
// dialog. The inviteUrl field is always null here; a live link only comes
// back from the mutating resend.
//
// status: 200
// status: 404 unknown invite
func (a *Api) GetResendContext(res http.ResponseWriter, req *http.Request, vars map[string]string) {
	ctx := req.Context()
	if a.actor(res, req) == "" {
		return
	}

	context, err := a.engine.ResendContext(ctx, vars["inviteId"])
	if err != nil {
		a.handleEngineError(ctx, res, err, STATUS_ERR_FINDING_INVITE)
		return
	}
	a.sendModelAsResWithStatus(ctx, res, context, http.StatusOK)
}

// ResendInvite rotates the credential and re-delivers the invite. A
// soft-expired invite is reactivated with a fresh expiry.
//
// status: 200 resent
// status: 404 unknown invite
// status: 409 invite already accepted or revoked
// status: 400 reminder cap reached
func (a *Api) ResendInvite(res http.ResponseWriter, req *http.Request, vars map[string]string) {
	ctx := req.Context()
	actor := a.actor(res, req)
	if actor == "" {
		return
	}

	result, err := a.engine.Resend(ctx, vars["inviteId"], actor)
	if err != nil {
		a.handleEngineError(ctx, res, err, STATUS_ERR_RESENDING_INVITE)
		return
	}

	message := "Invite resent"
	if result.Reactivated {
		message = "Invite reactivated and resent"
	}
	a.sendModelAsResWithStatus(ctx, res, resendInviteResponse{
		InviteID:       result.Invite.ID,
		Status:         result.Invite.Status,
		ReminderCount:  result.Invite.ReminderCount,
		LastSentAt:     result.Invite.LastSentAt,
		Channels:       result.Invite.Channels,
		ResendEligible: result.Eligibility.Eligible,
		InviteURL:      result.InviteURL.Reveal(),
		Message:        message,
	}, http.StatusOK)
}

// RevokeInvite moves a pending or expired invite to revoked, freeing the
// email for a fresh invite.
//
// status: 200 revoked
// status: 404 unknown invite
// status: 409 invite already accepted or revoked
func (a *Api) RevokeInvite(res http.ResponseWriter, req *http.Request, vars map[string]string) {
	ctx := req.Context()
	actor := a.actor(res, req)
	if actor == "" {
		return
	}

	var body revokeInviteBody
	if req.Body != nil {
		// note is optional, an empty or absent body is fine
		_ = json.NewDecoder(req.Body).Decode(&body)
	}

	result, err := a.engine.Revoke(ctx, vars["inviteId"], actor, body.Reason)
	if err != nil {
		a.handleEngineError(ctx, res, err, STATUS_ERR_REVOKING_INVITE)
		return
	}

	a.sendModelAsResWithStatus(ctx, res, revokeInviteResponse{
		ID:        result.Invite.ID,
		Status:    result.Invite.Status,
		RevokedAt: result.Invite.RevokedAt,
		Message:   "Invite revoked",
	}, http.StatusOK)
}
