package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gatehouse-api/gatehouse/invites"
	"github.com/gatehouse-api/gatehouse/models"
)

type (
	acceptInviteBody struct {
		Password string `json:"password"`
		FullName string `json:"fullName"`
	}

	acceptInviteResponse struct {
		UserID       string      `json:"userId"`
		Email        string      `json:"email"`
		Role         models.Role `json:"role"`
		CreatedAt    time.Time   `json:"createdAt"`
		SessionToken string      `json:"sessionToken"`
	}
)

// AcceptInvite redeems an invite credential exactly once: it creates the
// account and returns a session token. All credential failures share one
// reason so callers cannot probe invite state.
//
// status: 201 account created
// status: 400 invalid or expired credential, weak password, or existing user
func (a *Api) AcceptInvite(res http.ResponseWriter, req *http.Request, vars map[string]string) {
	ctx := req.Context()

	var body acceptInviteBody
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		a.sendError(ctx, res, http.StatusBadRequest, STATUS_ERR_DECODING_BODY, err)
		return
	}

	result, err := a.engine.Accept(ctx, vars["token"], invites.AcceptParams{
		Password: body.Password,
		FullName: body.FullName,
	})
	if err != nil {
		a.handleEngineError(ctx, res, err, STATUS_ERR_ACCEPTING_INVITE)
		return
	}

	a.sendModelAsResWithStatus(ctx, res, acceptInviteResponse{
		UserID:       result.Account.ID,
		Email:        result.Account.Email,
		Role:         result.Account.Role,
		CreatedAt:    result.Account.CreatedAt,
		SessionToken: result.SessionToken.Reveal(),
	}, http.StatusCreated)
}
