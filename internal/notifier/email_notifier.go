package notifier

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	config "github.com/jsmidelov/TomasosTre/configs"
)

// SESAPI is the part of the SES client the email notifier uses.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailNotifier sends order confirmations through AWS SES.
type EmailNotifier struct {
	client SESAPI
	sender string
}

func NewEmailNotifier(ctx context.Context, cfg config.EmailConfig) (*EmailNotifier, error) {
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("sender email address is not configured in environment variables")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	return NewEmailNotifierWithClient(ses.NewFromConfig(awsCfg), cfg.SenderEmail), nil
}

func NewEmailNotifierWithClient(client SESAPI, sender string) *EmailNotifier {
	return &EmailNotifier{client: client, sender: sender}
}

func (n *EmailNotifier) OrderPlaced(ctx context.Context, receipt Receipt) error {
	if receipt.Email == "" {
		return fmt.Errorf("recipient email address is empty")
	}

	name := receipt.Name
	if name == "" {
		name = "customer"
	}

	subject := fmt.Sprintf("Order #%d Confirmation - Thank You for Your Order!", receipt.OrderID)

	totalAmountStr := strconv.FormatFloat(receipt.Total, 'f', 2, 64)

	bodyHTML := fmt.Sprintf(`
        <html>
        <body>
            <p>Dear %s,</p>
            <p>Thank you for your order! Your order #%d has been placed and the kitchen is on it.</p>
            <p><strong>Order Details:</strong></p>
            <ul>
                <li>Order ID: %d</li>
                <li>Total Amount: SEK %s</li>
            </ul>
            <p>Best regards,</p>
            <p>Tomasos Pizzeria</p>
        </body>
        </html>`, name, receipt.OrderID, receipt.OrderID, totalAmountStr)

	bodyText := fmt.Sprintf(
		"Dear %s,\n\nThank you for your order! Your order #%d has been placed and the kitchen is on it.\n\n"+
			"Order Details:\nOrder ID: %d\nTotal Amount: SEK %s\n\n"+
			"Best regards,\nTomasos Pizzeria",
		name, receipt.OrderID, receipt.OrderID, totalAmountStr)

	input := &ses.SendEmailInput{
		Source: aws.String(n.sender),
		Destination: &types.Destination{
			ToAddresses: []string{receipt.Email},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Charset: aws.String("UTF-8"),
				Data:    aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Charset: aws.String("UTF-8"),
					Data:    aws.String(bodyHTML),
				},
				Text: &types.Content{
					Charset: aws.String("UTF-8"),
					Data:    aws.String(bodyText),
				},
			},
		},
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email for order %d: %w", receipt.OrderID, err)
	}
	return nil
}
