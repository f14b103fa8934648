package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Mailer providers.
const (
	ProviderResend = "resend"
	ProviderSES    = "ses"
	ProviderNoop   = "noop"
)

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, to, subject, html, text string) error
	Provider() string
}

// SESConfig holds configuration for AWS SES. Empty keys use the default credential chain.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// MailerConfig holds configuration for creating a mailer.
type MailerConfig struct {
	Provider     string
	FromAddress  string
	FromName     string
	ResendAPIKey string
	SES          SESConfig
}

func (c MailerConfig) from() string {
	if c.FromName == "" {
		return c.FromAddress
	}
	return fmt.Sprintf("%s <%s>", c.FromName, c.FromAddress)
}

// NewMailer creates a mailer from config. Unknown providers are rejected at config load,
// so anything else here falls back to noop.
func NewMailer(ctx context.Context, cfg MailerConfig, logger *zap.Logger) (Mailer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case ProviderResend:
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("resend: RESEND_API_KEY is required")
		}
		return &resendMailer{client: resend.NewClient(cfg.ResendAPIKey), from: cfg.from(), logger: logger}, nil
	case ProviderSES:
		awsCfg, err := sesAWSConfig(ctx, cfg.SES)
		if err != nil {
			return nil, err
		}
		return &sesMailer{client: ses.NewFromConfig(awsCfg), from: cfg.from(), logger: logger}, nil
	default:
		return &noopMailer{logger: logger}, nil
	}
}

func sesAWSConfig(ctx context.Context, c SESConfig) (aws.Config, error) {
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		return aws.Config{
			Region: c.Region,
			Credentials: aws.NewCredentialsCache(
				credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
			),
		}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.Region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

type resendMailer struct {
	client *resend.Client
	from   string
	logger *zap.Logger
}

func (m *resendMailer) Provider() string { return ProviderResend }

func (m *resendMailer) Send(ctx context.Context, to, subject, html, text string) error {
	sent, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		Html:    html,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("send via resend: %w", err)
	}
	m.logger.Debug("email sent", zap.String("provider", ProviderResend), zap.String("message_id", sent.Id))
	return nil
}

type sesMailer struct {
	client *ses.Client
	from   string
	logger *zap.Logger
}

func (m *sesMailer) Provider() string { return ProviderSES }

func (m *sesMailer) Send(ctx context.Context, to, subject, html, text string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(m.from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{},
		},
	}
	if html != "" {
		input.Message.Body.Html = &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")}
	}
	if text != "" {
		input.Message.Body.Text = &types.Content{Data: aws.String(text), Charset: aws.String("UTF-8")}
	}
	result, err := m.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("send via ses: %w", err)
	}
	m.logger.Debug("email sent", zap.String("provider", ProviderSES), zap.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

type noopMailer struct {
	logger *zap.Logger
}

func (m *noopMailer) Provider() string { return ProviderNoop }

func (m *noopMailer) Send(_ context.Context, to, subject, _, _ string) error {
	m.logger.Info("email would be sent (noop)", zap.String("to", to), zap.String("subject", subject))
	return nil
}
