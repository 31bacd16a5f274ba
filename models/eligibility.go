package models

import "fmt"

// Eligibility is the outcome of the pure resend/revoke gate. The same value
// drives both the enforcement path and the read-side flags, so the UI and the
// mutation path can never disagree.
type Eligibility struct {
	Eligible bool   `json:"resendEligible"`
	Reason   string `json:"eligibilityReason,omitempty"`
}

const (
	ReasonAlreadyAccepted = "already accepted"
	ReasonAlreadyRevoked  = "already revoked"
)

// EvaluateResend decides whether the invite may be reminded again.
// A soft-expired invite is deliberately still resendable.
func EvaluateResend(invite *Invite, reminderCap int) Eligibility {
	switch invite.Status {
	case StatusAccepted:
		return Eligibility{Reason: ReasonAlreadyAccepted}
	case StatusRevoked:
		return Eligibility{Reason: ReasonAlreadyRevoked}
	}
	if invite.ReminderCount >= reminderCap {
		return Eligibility{Reason: fmt.Sprintf("reminder cap of %d reached", reminderCap)}
	}
	return Eligibility{Eligible: true}
}

// EvaluateRevoke decides whether the invite may be revoked. The reminder cap
// does not apply here; only terminal states block a revoke.
func EvaluateRevoke(invite *Invite) Eligibility {
	switch invite.Status {
	case StatusAccepted:
		return Eligibility{Reason: ReasonAlreadyAccepted}
	case StatusRevoked:
		return Eligibility{Reason: ReasonAlreadyRevoked}
	}
	return Eligibility{Eligible: true}
}
