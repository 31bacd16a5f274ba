package models

import "testing"

func TestEvaluateResend(t *testing.T) {
	tests := []struct {
		desc     string
		status   Status
		count    int
		eligible bool
		reason   string
	}{
		{"pending under cap", StatusPending, 0, true, ""},
		{"pending at one below cap", StatusPending, 2, true, ""},
		{"expired still resendable", StatusExpired, 1, true, ""},
		{"at cap", StatusPending, 3, false, "reminder cap of 3 reached"},
		{"over cap", StatusPending, 5, false, "reminder cap of 3 reached"},
		{"accepted", StatusAccepted, 0, false, ReasonAlreadyAccepted},
		{"revoked", StatusRevoked, 0, false, ReasonAlreadyRevoked},
	}
	for _, test := range tests {
		invite := &Invite{Status: test.status, ReminderCount: test.count}
		got := EvaluateResend(invite, 3)
		if got.Eligible != test.eligible {
			t.Errorf("%s: eligible = %v, expected %v", test.desc, got.Eligible, test.eligible)
		}
		if got.Reason != test.reason {
			t.Errorf("%s: reason = %q, expected %q", test.desc, got.Reason, test.reason)
		}
	}
}

func TestEvaluateRevoke(t *testing.T) {
	// the reminder cap never blocks a revoke
	capped := &Invite{Status: StatusPending, ReminderCount: 99}
	if got := EvaluateRevoke(capped); !got.Eligible {
		t.Errorf("expected capped pending invite to be revocable, got %q", got.Reason)
	}

	expired := &Invite{Status: StatusExpired}
	if got := EvaluateRevoke(expired); !got.Eligible {
		t.Errorf("expected expired invite to be revocable, got %q", got.Reason)
	}

	accepted := &Invite{Status: StatusAccepted}
	if got := EvaluateRevoke(accepted); got.Eligible || got.Reason != ReasonAlreadyAccepted {
		t.Errorf("expected accepted invite to be blocked, got %+v", got)
	}

	revoked := &Invite{Status: StatusRevoked}
	if got := EvaluateRevoke(revoked); got.Eligible || got.Reason != ReasonAlreadyRevoked {
		t.Errorf("expected revoked invite to be blocked, got %+v", got)
	}
}
