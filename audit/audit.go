// Package audit records every lifecycle attempt, success or failure, as a
// structured redacted log entry plus the counters and histograms the resend
// latency SLA is monitored with.
package audit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/gatehouse-api/gatehouse/audit"

// Actions recorded by the lifecycle engine. Reactivation is distinguishable
// from a routine resend so operators can see an expired invite coming back to
// life.
const (
	ActionCreate     = "invite.create"
	ActionResend     = "invite.resend"
	ActionReactivate = "invite.reactivate"
	ActionRevoke     = "invite.revoke"
	ActionAccept     = "invite.accept"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Event is one lifecycle attempt. Fields go through Redact before they touch
// the log, so handing over request payload maps is safe.
type Event struct {
	Action  string
	Outcome string
	InviteID string
	Actor   string
	Email   string
	Reason  string
	Fields  map[string]interface{}
}

// Recorder writes audit entries and metrics. Emission happens before the
// response is written and is never skipped on the failure path.
type Recorder struct {
	logger        *zap.SugaredLogger
	attempts      metric.Int64Counter
	resendLatency metric.Float64Histogram
	rateAlerts    metric.Int64Counter
}

func NewRecorder(logger *zap.SugaredLogger) *Recorder {
	meter := otel.Meter(meterName)

	attempts, err := meter.Int64Counter("gatehouse_invite_attempts_total",
		metric.WithDescription("Lifecycle attempts by action and outcome"))
	if err != nil {
		logger.With(zap.Error(err)).Warn("creating attempts counter")
	}
	resendLatency, err := meter.Float64Histogram("gatehouse_resend_duration_ms",
		metric.WithDescription("Resend latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		logger.With(zap.Error(err)).Warn("creating resend latency histogram")
	}
	rateAlerts, err := meter.Int64Counter("gatehouse_admin_resend_rate_alerts_total",
		metric.WithDescription("Per-admin resend volume threshold crossings"))
	if err != nil {
		logger.With(zap.Error(err)).Warn("creating resend rate alert counter")
	}

	return &Recorder{
		logger:        logger,
		attempts:      attempts,
		resendLatency: resendLatency,
		rateAlerts:    rateAlerts,
	}
}

// Record emits exactly one audit entry for the attempt.
func (r *Recorder) Record(ctx context.Context, event Event) {
	log := r.logger.With(
		"audit", true,
		"action", event.Action,
		"outcome", event.Outcome,
	)
	if event.InviteID != "" {
		log = log.With("inviteId", event.InviteID)
	}
	if event.Actor != "" {
		log = log.With("actor", event.Actor)
	}
	if event.Email != "" {
		log = log.With("email", event.Email)
	}
	if event.Reason != "" {
		log = log.With("reason", event.Reason)
	}
	if len(event.Fields) > 0 {
		log = log.With("details", Redact(event.Fields))
	}

	if event.Outcome == OutcomeSuccess {
		log.Info("invite lifecycle attempt")
	} else {
		log.Warn("invite lifecycle attempt")
	}

	r.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", event.Action),
		attribute.String("outcome", event.Outcome),
	))
}

// ObserveResendLatency feeds the histogram behind the p95 resend SLA.
func (r *Recorder) ObserveResendLatency(ctx context.Context, d time.Duration, outcome string) {
	r.resendLatency.Record(ctx, float64(d)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

// AlertResendRate notes an admin crossing the configured resend volume
// threshold. Monitoring only; the mutation is not blocked.
func (r *Recorder) AlertResendRate(ctx context.Context, actor string, count int64, threshold int64) {
	r.logger.With(
		"actor", actor,
		"recentResends", count,
		"threshold", threshold,
	).Warn("admin resend volume above threshold")
	r.rateAlerts.Add(ctx, 1, metric.WithAttributes(attribute.String("actor", actor)))
}
