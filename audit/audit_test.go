package audit

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/gatehouse-api/gatehouse/testutil"
)

func TestRecordNeverLogsCredentials(t *testing.T) {
	var buf bytes.Buffer
	recorder := NewRecorder(testutil.NewLoggerWithWriter(t, &buf))

	credential := "dGhpc2lzYXNlY3JldGNyZWRlbnRpYWw"
	recorder.Record(context.Background(), Event{
		Action:   ActionResend,
		Outcome:  OutcomeSuccess,
		InviteID: "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		Actor:    "admin-1",
		Email:    "ada@example.com",
		Fields: map[string]interface{}{
			"inviteUrl":     Sensitive("https://portal.example.com/join?token=" + credential),
			"reminderCount": 2,
		},
	})

	logged := buf.String()
	if logged == "" {
		t.Fatalf("expected an audit line")
	}
	if strings.Contains(logged, credential) {
		t.Fatalf("credential leaked into the audit log: %s", logged)
	}
	if !strings.Contains(logged, "invite.resend") {
		t.Errorf("expected the action in the audit line")
	}
	if !strings.Contains(logged, "ada@example.com") {
		t.Errorf("the invitee email is auditable and should survive redaction")
	}
}

func TestRecordFailureLogsReason(t *testing.T) {
	var buf bytes.Buffer
	recorder := NewRecorder(testutil.NewLoggerWithWriter(t, &buf))

	recorder.Record(context.Background(), Event{
		Action:  ActionRevoke,
		Outcome: OutcomeFailure,
		Reason:  "already revoked",
	})

	logged := buf.String()
	if !strings.Contains(logged, "already revoked") {
		t.Errorf("expected the failure reason in the audit line, got %s", logged)
	}
	if !strings.Contains(logged, "WARN") {
		t.Errorf("failures log at warn, got %s", logged)
	}
}

func TestObserveResendLatency(t *testing.T) {
	recorder := NewRecorder(testutil.NewLogger(t))
	// instruments are no-op without an exporter; this must not panic
	recorder.ObserveResendLatency(context.Background(), 42*time.Millisecond, OutcomeSuccess)
	recorder.AlertResendRate(context.Background(), "admin-1", 31, 30)
}
