package notifications

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"
)

// SESAPI is the slice of the SES v2 client the email channel uses
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// AddressResolver maps a user id to their email address
type AddressResolver func(ctx context.Context, userID uuid.UUID) (string, error)

// EmailChannel delivers notifications over SES
type EmailChannel struct {
	client  SESAPI
	from    string
	resolve AddressResolver
}

func NewEmailChannel(client SESAPI, from string, resolve AddressResolver) *EmailChannel {
	return &EmailChannel{client: client, from: from, resolve: resolve}
}

// Send sends the notification as a plain-text email
func (c *EmailChannel) Send(ctx context.Context, n Notification) error {
	to, err := c.resolve(ctx, n.RecipientID)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient address: %w", err)
	}

	_, err = c.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(n.Title)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(n.Message)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
