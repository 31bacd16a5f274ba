package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/gatehouse-api/gatehouse/audit"
	"github.com/gatehouse-api/gatehouse/clients"
	"github.com/gatehouse-api/gatehouse/invites"
	"github.com/gatehouse-api/gatehouse/models"
	"github.com/gatehouse-api/gatehouse/testutil"
)

const testAdminHeader = "x-gatehouse-admin"

type testRig struct {
	router *mux.Router
	store  *clients.MockStoreClient
	engine *invites.Engine
}

func newTestRig(t *testing.T) *testRig {
	logger := testutil.NewLogger(t)
	store := clients.NewMockStoreClient()
	engine := invites.NewEngine(store, clients.NewNullNotifier(logger), audit.NewRecorder(logger), invites.Config{
		ReminderCap:   3,
		InviteTTL:     7 * 24 * time.Hour,
		WebURL:        "https://portal.example.com",
		SessionSecret: "test-secret",
	}, logger)

	a := NewApi(Config{AdminHeader: testAdminHeader}, store, engine, logger)
	router := mux.NewRouter()
	a.SetHandlers("", router)
	return &testRig{router: router, store: store, engine: engine}
}

func (rig *testRig) do(t *testing.T, method, url, actor string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	if actor != "" {
		req.Header.Set(testAdminHeader, actor)
	}
	rec := httptest.NewRecorder()
	rig.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return body
}

func (rig *testRig) createInvite(t *testing.T, email string) (string, string) {
	t.Helper()
	result, err := rig.engine.Create(context.Background(), invites.CreateParams{
		Email: email, Role: models.RoleMember, Actor: "admin-1",
	})
	if err != nil {
		t.Fatalf("creating invite: %v", err)
	}
	link := result.InviteLink.Reveal()
	return result.Invite.ID, link[len("https://portal.example.com/join?token="):]
}

func TestCreateInviteEndpoint(t *testing.T) {
	rig := newTestRig(t)

	rec := rig.do(t, http.MethodPost, "/admin/invites", "admin-1", map[string]interface{}{
		"email": "ada@example.com", "fullName": "Ada", "role": "member",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "pending" {
		t.Errorf("expected pending, got %v", body["status"])
	}
	if link, _ := body["inviteLink"].(string); link == "" {
		t.Errorf("create must return the live invite link")
	}

	rec = rig.do(t, http.MethodPost, "/admin/invites", "admin-1", map[string]interface{}{
		"email": "nonsense", "role": "member",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad email, got %d", rec.Code)
	}

	rec = rig.do(t, http.MethodPost, "/admin/invites", "", map[string]interface{}{
		"email": "ada@example.com", "role": "member",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without the admin header, got %d", rec.Code)
	}
}

func TestResendEndpoint(t *testing.T) {
	rig := newTestRig(t)
	inviteID, _ := rig.createInvite(t, "ada@example.com")

	rec := rig.do(t, http.MethodPost, "/admin/invites/"+inviteID+"/resend", "admin-2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["message"] != "Invite resent" {
		t.Errorf("unexpected message %v", body["message"])
	}
	if count, _ := body["reminderCount"].(float64); count != 1 {
		t.Errorf("expected reminderCount 1, got %v", body["reminderCount"])
	}
	if url, _ := body["inviteUrl"].(string); url == "" {
		t.Errorf("resend must return the fresh invite link")
	}
	if eligible, _ := body["resendEligible"].(bool); !eligible {
		t.Errorf("expected resendEligible true")
	}

	rec = rig.do(t, http.MethodPost, "/admin/invites/no-such-invite/resend", "admin-2", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestResendEndpointGuardrails(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	capped, _ := rig.createInvite(t, "capped@example.com")
	for i := 0; i < 3; i++ {
		if _, err := rig.engine.Resend(ctx, capped, "admin-1"); err != nil {
			t.Fatalf("resend %d: %v", i+1, err)
		}
	}
	rec := rig.do(t, http.MethodPost, "/admin/invites/"+capped+"/resend", "admin-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 at the cap, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["reason"] != "reminder cap of 3 reached" {
		t.Errorf("unexpected reason %v", body["reason"])
	}

	revoked, _ := rig.createInvite(t, "revoked@example.com")
	if _, err := rig.engine.Revoke(ctx, revoked, "admin-1", ""); err != nil {
		t.Fatalf("revoking: %v", err)
	}
	rec = rig.do(t, http.MethodPost, "/admin/invites/"+revoked+"/resend", "admin-1", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for a revoked invite, got %d", rec.Code)
	}
}

func TestResendContextEndpoint(t *testing.T) {
	rig := newTestRig(t)
	inviteID, _ := rig.createInvite(t, "ada@example.com")

	rec := rig.do(t, http.MethodGet, "/admin/invites/"+inviteID+"/resend-context", "admin-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if url, present := body["inviteUrl"]; !present || url != nil {
		t.Errorf("inviteUrl must be present and null, got %v (present %v)", url, present)
	}
	if body["email"] != "ada@example.com" {
		t.Errorf("unexpected email %v", body["email"])
	}
	if eligible, _ := body["resendEligible"].(bool); !eligible {
		t.Errorf("expected resendEligible true")
	}

	rec = rig.do(t, http.MethodGet, "/admin/invites/no-such-invite/resend-context", "admin-1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRevokeEndpoint(t *testing.T) {
	rig := newTestRig(t)
	inviteID, _ := rig.createInvite(t, "ada@example.com")

	rec := rig.do(t, http.MethodPatch, "/admin/invites/"+inviteID+"/revoke", "admin-1", map[string]interface{}{
		"reason": "sent to the wrong person",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "revoked" || body["revokedAt"] == nil {
		t.Errorf("unexpected revoke response %v", body)
	}

	rec = rig.do(t, http.MethodPatch, "/admin/invites/"+inviteID+"/revoke", "admin-1", nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on a double revoke, got %d", rec.Code)
	}
}

func TestAcceptEndpoint(t *testing.T) {
	rig := newTestRig(t)
	_, credential := rig.createInvite(t, "ada@example.com")

	rec := rig.do(t, http.MethodPost, "/invites/"+credential+"/accept", "", map[string]interface{}{
		"password": "correct horse battery", "fullName": "Ada L.",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["email"] != "ada@example.com" {
		t.Errorf("unexpected email %v", body["email"])
	}
	if session, _ := body["sessionToken"].(string); session == "" {
		t.Errorf("expected a session token")
	}

	// the credential is single use
	rec = rig.do(t, http.MethodPost, "/invites/"+credential+"/accept", "", map[string]interface{}{
		"password": "correct horse battery",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on reuse, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["reason"] != "Invalid or expired invite" {
		t.Errorf("unexpected reason %v", body["reason"])
	}

	rec = rig.do(t, http.MethodPost, "/invites/bogus-credential/accept", "", map[string]interface{}{
		"password": "correct horse battery",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown credential, got %d", rec.Code)
	}
}

func TestListUsersEndpoint(t *testing.T) {
	rig := newTestRig(t)
	rig.createInvite(t, "pending@example.com")

	rec := rig.do(t, http.MethodGet, "/admin/users?view=invited", "admin-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, _ := body["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("expected one row, got %v", body["data"])
	}
	row := data[0].(map[string]interface{})
	if row["source"] != "invite" || row["email"] != "pending@example.com" {
		t.Errorf("unexpected row %v", row)
	}

	rec = rig.do(t, http.MethodGet, "/admin/users?view=bogus", "admin-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown view, got %d", rec.Code)
	}

	rec = rig.do(t, http.MethodGet, "/admin/users", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without the admin header, got %d", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	rig := newTestRig(t)

	for _, url := range []string{"/status", "/ready", "/live"} {
		rec := rig.do(t, http.MethodGet, url, "", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", url, rec.Code)
		}
	}

	rig.store.FailAll(true)
	rec := rig.do(t, http.MethodGet, "/status", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 with a failing store, got %d", rec.Code)
	}
	rec = rig.do(t, http.MethodGet, "/live", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("liveness must not depend on the store, got %d", rec.Code)
	}
}
