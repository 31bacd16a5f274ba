package clients

import (
	"net/http"

	"go.uber.org/zap"
)

type (
	// NullNotifier is the default: invite links travel back to the operator
	// in the API response and nothing is delivered out of band.
	NullNotifier struct {
		logger *zap.SugaredLogger
	}
)

// NewNullNotifier creates a notifier that does not deliver anything.
func NewNullNotifier(logger *zap.SugaredLogger) *NullNotifier {
	logger.Info("mail delivery is disabled, no messages will be sent")
	return &NullNotifier{logger: logger}
}

// Send does nothing and reports success.
func (c *NullNotifier) Send(to []string, subject string, msg string) (int, string) {
	c.logger.With(zap.Int("recipients", len(to))).
		Debugf("not sending %q, delivery disabled by configuration", subject)
	return http.StatusOK, "OK"
}
