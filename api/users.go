package api

import (
	"net/http"
	"strconv"

	"github.com/gatehouse-api/gatehouse/invites"
)

// ListUsers serves the admin directory across invites and accounts.
//
//	GET /admin/users?view=invited&search=ada&page=2&pageSize=25
//
// status: 200
// status: 400 unknown view
func (a *Api) ListUsers(res http.ResponseWriter, req *http.Request, vars map[string]string) {
	ctx := req.Context()
	if a.actor(res, req) == "" {
		return
	}

	query := req.URL.Query()
	params := invites.ListParams{
		View:   query.Get("view"),
		Search: query.Get("search"),
	}
	if page := query.Get("page"); page != "" {
		params.Page, _ = strconv.Atoi(page)
	}
	if size := query.Get("pageSize"); size != "" {
		params.PageSize, _ = strconv.Atoi(size)
	}

	listing, err := a.engine.List(ctx, params)
	if err != nil {
		a.handleEngineError(ctx, res, err, STATUS_ERR_LISTING_USERS)
		return
	}
	a.sendModelAsResWithStatus(ctx, res, listing, http.StatusOK)
}
