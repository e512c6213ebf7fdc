package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/google/uuid"

	pkglogger "github.com/BradenHooton/farmtrack/pkg/logger"
)

const resetEmailSubject = "Password Reset Request - Action Required"

// Message is an outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Mailer delivers email out of band. Send returns the provider message ID.
type Mailer interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// sesAPI is the subset of the SES client used by SESMailer
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESMailer sends email using AWS SES
type SESMailer struct {
	client      sesAPI
	fromAddress string
	logger      *slog.Logger
}

// NewSESMailer loads the default AWS configuration for region and creates an SES mailer
func NewSESMailer(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*SESMailer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newSESMailer(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func newSESMailer(client sesAPI, fromAddress string, logger *slog.Logger) *SESMailer {
	return &SESMailer{client: client, fromAddress: fromAddress, logger: logger}
}

func (m *SESMailer) Send(ctx context.Context, msg Message) (string, error) {
	input := &ses.SendEmailInput{
		Source: aws.String(m.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(msg.HTML)},
				Text: &types.Content{Data: aws.String(msg.Text)},
			},
		},
	}

	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		m.logger.Error("failed to send email via SES",
			slog.String("email", pkglogger.SanitizedEmail(msg.To)),
			slog.Any("error", err))
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	messageID := aws.ToString(result.MessageId)
	m.logger.Info("email sent",
		slog.String("email", pkglogger.SanitizedEmail(msg.To)),
		slog.String("message_id", messageID))
	return messageID, nil
}

// LogMailer writes messages to the log instead of delivering them.
// Bodies are logged at debug level only.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) (string, error) {
	id := uuid.New().String()
	m.logger.InfoContext(ctx, "email not delivered (log provider)",
		slog.String("email", pkglogger.SanitizedEmail(msg.To)),
		slog.String("subject", msg.Subject),
		slog.String("message_id", id))
	m.logger.DebugContext(ctx, "email body", slog.String("message_id", id), slog.String("text", msg.Text))
	return id, nil
}

// passwordResetMessage builds the email carrying a reset link.
func passwordResetMessage(to, firstName, link string, ttl time.Duration) Message {
	minutes := int(ttl.Minutes())
	if firstName == "" {
		firstName = "there"
	}

	html := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; background-color: #2e7d32; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <p>Hello %s,</p>
        <p>We received a request to reset the password for your FarmTrack account. Click the link below to choose a new password:</p>
        <p><a href="%s" class="button">Reset Password</a></p>
        <p>Or copy and paste this link in your browser:<br>
        <code>%s</code></p>
        <div class="warning">
            <strong>This link will expire in %d minutes.</strong>
        </div>
        <p>If you did not request a password reset, you can ignore this email. Your password will not change.</p>
        <div class="footer">
            <p>Best regards,<br>FarmTrack Team</p>
        </div>
    </div>
</body>
</html>
`, firstName, link, link, minutes)

	text := fmt.Sprintf(`Hello %s,

We received a request to reset the password for your FarmTrack account. Open the link below to choose a new password:

%s

This link will expire in %d minutes.

If you did not request a password reset, you can ignore this email. Your password will not change.

Best regards,
FarmTrack Team
`, firstName, link, minutes)

	return Message{To: to, Subject: resetEmailSubject, HTML: html, Text: text}
}
