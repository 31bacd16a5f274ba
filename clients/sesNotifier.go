package clients

import (
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"go.uber.org/zap"
)

const (
	// CharSet The character encoding for the email.
	CharSet = "UTF-8"

	// DefaultTextMessage will be sent to non-HTML email clients that receive our messages
	DefaultTextMessage = "You need an HTML client to read this email."
)

type (
	// SesNotifier delivers invite mail through Amazon SES.
	SesNotifier struct {
		Config *SesNotifierConfig
		SES    *ses.SES
		logger *zap.SugaredLogger
	}

	// SesNotifierConfig contains the static configuration for the Amazon SES
	// service. Credentials come from the environment, not from configuration.
	SesNotifierConfig struct {
		From   string `split_words:"true" default:"noreply@gatehouse.local"`
		Region string `default:"us-west-2"`
	}
)

// NewSesNotifier creates a new Amazon SES notifier.
func NewSesNotifier(cfg *SesNotifierConfig, logger *zap.SugaredLogger) (*SesNotifier, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
	})
	if err != nil {
		return nil, err
	}

	// Credentials are resolved from env vars, the shared profile or an
	// instance role; validity is not checked here.
	if creds, err := sess.Config.Credentials.Get(); err != nil {
		logger.Warnf("no AWS credentials were found, email will not be sent: %s", err)
	} else {
		logger.Infof("AWS credentials found with provider %s", creds.ProviderName)
	}

	return &SesNotifier{
		Config: cfg,
		SES:    ses.New(sess),
		logger: logger,
	}, nil
}

// Send a message to a list of recipients with a given subject.
func (c *SesNotifier) Send(to []string, subject string, msg string) (int, string) {
	var toAwsAddress = make([]*string, len(to))
	for i, x := range to {
		toAwsAddress[i] = aws.String(x)
	}

	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			ToAddresses: toAwsAddress,
		},
		Message: &ses.Message{
			Body: &ses.Body{
				Html: &ses.Content{
					Charset: aws.String(CharSet),
					Data:    aws.String(msg),
				},
				Text: &ses.Content{
					Charset: aws.String(CharSet),
					Data:    aws.String(DefaultTextMessage),
				},
			},
			Subject: &ses.Content{
				Charset: aws.String(CharSet),
				Data:    aws.String(subject),
			},
		},
		Source: aws.String(c.Config.From),
	}

	result, err := c.SES.SendEmail(input)
	if err != nil {
		// error details are traced by the caller
		if aerr, ok := err.(awserr.Error); ok {
			return http.StatusInternalServerError, aerr.Error()
		}
		return http.StatusInternalServerError, err.Error()
	}
	c.logger.Debugf("SES email sent: %s", subject)
	return http.StatusOK, result.String()
}
