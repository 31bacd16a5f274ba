package invites

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/gatehouse-api/gatehouse/clients"
	"github.com/gatehouse-api/gatehouse/models"
)

// Directory views over invites and accounts.
const (
	ViewInvited  = "invited"
	ViewActive   = "active"
	ViewInactive = "inactive"
	ViewAll      = "all"
)

const (
	defaultPageSize = 25
	minPageSize     = 10
	maxPageSize     = 100
)

type (
	ListParams struct {
		View     string
		Search   string
		Page     int
		PageSize int
	}

	// UserRow is one directory entry. Invite rows carry resend eligibility
	// and conflict flags so the portal can render per-row actions without a
	// second round trip; account rows leave those fields null.
	UserRow struct {
		ID                string             `json:"id"`
		Email             string             `json:"email"`
		FullName          string             `json:"fullName,omitempty"`
		Role              models.Role        `json:"role"`
		Status            string             `json:"status"`
		Source            string             `json:"source"`
		ReminderCount     *int               `json:"reminderCount,omitempty"`
		ResendEligible    *bool              `json:"resendEligible,omitempty"`
		EligibilityReason string             `json:"eligibilityReason,omitempty"`
		Conflicts         []models.ConflictFlag `json:"conflicts,omitempty"`
		CreatedAt         time.Time          `json:"createdAt"`
	}

	Pagination struct {
		Page       int   `json:"page"`
		PageSize   int   `json:"pageSize"`
		Total      int64 `json:"total"`
		TotalPages int64 `json:"totalPages"`
	}

	Listing struct {
		Data       []UserRow  `json:"data"`
		Pagination Pagination `json:"pagination"`
	}
)

func clampPaging(params *ListParams) {
	if params.Page < 1 {
		params.Page = 1
	}
	switch {
	case params.PageSize == 0:
		params.PageSize = defaultPageSize
	case params.PageSize < minPageSize:
		params.PageSize = minPageSize
	case params.PageSize > maxPageSize:
		params.PageSize = maxPageSize
	}
}

// List serves the admin directory. The invited view is backed by the invite
// collection, active and inactive by accounts, and all by both sources
// merged page-locally.
func (e *Engine) List(ctx context.Context, params ListParams) (*Listing, error) {
	clampPaging(&params)
	offset := int64(params.Page-1) * int64(params.PageSize)

	switch params.View {
	case ViewInvited:
		return e.listInvited(ctx, params, offset)
	case ViewActive:
		return e.listAccounts(ctx, params, offset, []models.AccountStatus{models.AccountActive})
	case ViewInactive:
		return e.listAccounts(ctx, params, offset, []models.AccountStatus{models.AccountDeactivated})
	case ViewAll, "":
		return e.listAll(ctx, params, offset)
	default:
		return nil, &GuardrailError{Reason: "unknown view " + params.View}
	}
}

func (e *Engine) listInvited(ctx context.Context, params ListParams, offset int64) (*Listing, error) {
	invites, total, err := e.store.ListInvites(ctx, clients.ListInvitesParams{
		Statuses: []models.Status{models.StatusPending, models.StatusExpired, models.StatusRevoked},
		Search:   params.Search,
		Offset:   offset,
		Limit:    int64(params.PageSize),
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing invites")
	}

	rows := make([]UserRow, 0, len(invites))
	for _, invite := range invites {
		rows = append(rows, e.inviteRow(ctx, invite))
	}
	return &Listing{Data: rows, Pagination: paginate(params, total)}, nil
}

func (e *Engine) listAccounts(ctx context.Context, params ListParams, offset int64, statuses []models.AccountStatus) (*Listing, error) {
	accounts, total, err := e.store.ListAccounts(ctx, clients.ListAccountsParams{
		Statuses: statuses,
		Search:   params.Search,
		Offset:   offset,
		Limit:    int64(params.PageSize),
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing accounts")
	}

	rows := make([]UserRow, 0, len(accounts))
	for _, account := range accounts {
		rows = append(rows, accountRow(account))
	}
	return &Listing{Data: rows, Pagination: paginate(params, total)}, nil
}

// listAll concatenates accounts before open invites. Pagination treats the
// two collections as one virtual list with accounts first.
func (e *Engine) listAll(ctx context.Context, params ListParams, offset int64) (*Listing, error) {
	accounts, accountTotal, err := e.store.ListAccounts(ctx, clients.ListAccountsParams{
		Search: params.Search,
		Offset: offset,
		Limit:  int64(params.PageSize),
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing accounts")
	}

	rows := make([]UserRow, 0, params.PageSize)
	for _, account := range accounts {
		rows = append(rows, accountRow(account))
	}

	inviteOffset := offset - accountTotal
	if inviteOffset < 0 {
		inviteOffset = 0
	}
	inviteLimit := int64(params.PageSize - len(rows))

	inviteParams := clients.ListInvitesParams{
		Statuses: []models.Status{models.StatusPending, models.StatusExpired, models.StatusRevoked},
		Search:   params.Search,
		Offset:   inviteOffset,
		Limit:    inviteLimit,
	}
	if inviteLimit > 0 {
		invites, inviteTotal, err := e.store.ListInvites(ctx, inviteParams)
		if err != nil {
			return nil, errors.Wrap(err, "listing invites")
		}
		for _, invite := range invites {
			rows = append(rows, e.inviteRow(ctx, invite))
		}
		return &Listing{Data: rows, Pagination: paginate(params, accountTotal+inviteTotal)}, nil
	}

	// page filled by accounts alone; still need the invite total
	inviteParams.Limit = 1
	inviteParams.Offset = 0
	_, inviteTotal, err := e.store.ListInvites(ctx, inviteParams)
	if err != nil {
		return nil, errors.Wrap(err, "counting invites")
	}
	return &Listing{Data: rows, Pagination: paginate(params, accountTotal+inviteTotal)}, nil
}

func (e *Engine) inviteRow(ctx context.Context, invite *models.Invite) UserRow {
	eligibility := models.EvaluateResend(invite, e.config.ReminderCap)
	count := invite.ReminderCount
	eligible := eligibility.Eligible
	return UserRow{
		ID:                invite.ID,
		Email:             invite.Email,
		FullName:          invite.FullName,
		Role:              invite.Role,
		Status:            string(invite.EffectiveStatus(e.now())),
		Source:            "invite",
		ReminderCount:     &count,
		ResendEligible:    &eligible,
		EligibilityReason: eligibility.Reason,
		Conflicts:         e.detectConflicts(ctx, invite.NormalizedEmail),
		CreatedAt:         invite.CreatedAt,
	}
}

func accountRow(account *models.Account) UserRow {
	return UserRow{
		ID:        account.ID,
		Email:     account.Email,
		FullName:  account.FullName,
		Role:      account.Role,
		Status:    string(account.Status),
		Source:    "account",
		CreatedAt: account.CreatedAt,
	}
}

func paginate(params ListParams, total int64) Pagination {
	pages := total / int64(params.PageSize)
	if total%int64(params.PageSize) != 0 {
		pages++
	}
	return Pagination{
		Page:       params.Page,
		PageSize:   params.PageSize,
		Total:      total,
		TotalPages: pages,
	}
}
