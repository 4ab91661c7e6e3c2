// Package sesmail implements the ports.Email contract over SESv2, used by
// the export stage (spec §4.4) to deliver the rendered HTML report.
package sesmail

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

// Mailer implements ports.Email over SESv2.
type Mailer struct {
	client *sesv2.Client
}

func New(client *sesv2.Client) *Mailer {
	return &Mailer{client: client}
}

func (m *Mailer) SendHTML(ctx context.Context, msg ports.EmailMessage) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("sesmail: no recipients")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			BccAddresses: msg.Bcc,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(msg.HTMLBody), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	if _, err := m.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("sesmail: send email: %w", err)
	}
	return nil
}
