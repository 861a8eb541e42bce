// Package mailer sends support notifications through Amazon SES and renders
// them from Liquid templates.
package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/audience-core/internal/pkg/logger"
)

var log = logger.Named("mailer")

// Content types accepted by SendEmail.
const (
	ContentHTML = "html"
	ContentText = "text"
)

// ErrNoRecipient is returned when the destination address is empty.
var ErrNoRecipient = errors.New("mailer: recipient is required")

// SESAPI is the slice of the SES v2 client the sender uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends single emails with SES v2.
type SESSender struct {
	client           SESAPI
	configurationSet string
}

// NewSESSender wraps an SES client. configurationSet may be empty.
func NewSESSender(client SESAPI, configurationSet string) *SESSender {
	return &SESSender{client: client, configurationSet: configurationSet}
}

// SendEmail sends content to a single recipient. contentType selects an HTML
// or plain-text body; anything but "text" is sent as HTML.
func (s *SESSender) SendEmail(ctx context.Context, from, to, subject, content, contentType string) error {
	if to == "" {
		return ErrNoRecipient
	}

	part := &types.Content{Data: aws.String(content), Charset: aws.String("UTF-8")}
	body := &types.Body{Html: part}
	if contentType == ContentText {
		body = &types.Body{Text: part}
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{to}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body:    body,
			},
		},
	}
	if s.configurationSet != "" {
		input.ConfigurationSetName = aws.String(s.configurationSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	log.Info("email sent", "email", to, "message_id", aws.ToString(out.MessageId))
	return nil
}

// LogSender logs emails instead of sending them. Used by the "log" mail
// driver in development.
type LogSender struct{}

func (LogSender) SendEmail(_ context.Context, from, to, subject, _, _ string) error {
	if to == "" {
		return ErrNoRecipient
	}
	log.Info("email not sent (log driver)", "from", from, "email", to, "subject", subject)
	return nil
}
