package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/leadcapture/pkg/logging"
)

const (
	defaultFromName = "Lead Capture"
	// alertCategory tags lead alerts in provider activity feeds.
	alertCategory = "lead-alert"
)

// EmailSender delivers lead alert emails. SendGrid and SES implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one lead alert addressed to one operator.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string
	HTML    string
	// ReplyTo lets the operator answer the lead straight from the alert.
	ReplyTo     string
	ReplyToName string
	// LeadID is attached as provider metadata so bounces and opens can be
	// traced to a lead.
	LeadID string
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGridSender posts lead alerts to the SendGrid v3 mail endpoint.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
	logger *logging.Logger
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   mail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	response, err := s.client.SendWithContext(ctx, s.alertMail(msg))
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 300 {
		s.logger.Error("sendgrid rejected lead alert",
			"status", response.StatusCode,
			"body", response.Body,
			"lead_id", msg.LeadID,
		)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("lead alert accepted by sendgrid",
		"to", logging.MaskEmail(msg.To),
		"lead_id", msg.LeadID,
		"message_id", firstHeader(response.Headers, "X-Message-Id"),
	)
	return nil
}

func (s *SendGridSender) alertMail(msg EmailMessage) *mail.SGMailV3 {
	m := mail.NewSingleEmail(s.from, msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Body, msg.HTML)
	m.AddCategories(alertCategory)
	if msg.LeadID != "" {
		m.SetCustomArg("lead_id", msg.LeadID)
	}
	if msg.ReplyTo != "" {
		m.SetReplyTo(mail.NewEmail(msg.ReplyToName, msg.ReplyTo))
	}
	// Source URLs in the body stay unrewritten.
	m.SetTrackingSettings(mail.NewTrackingSettings().
		SetClickTracking(mail.NewClickTrackingSetting().SetEnable(false)))
	return m
}

func firstHeader(headers map[string][]string, key string) string {
	if v := headers[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// StubEmailSender logs instead of sending. Used when EMAIL_PROVIDER is stub.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("stub email sender: would send lead alert",
		"to", logging.MaskEmail(msg.To),
		"subject", msg.Subject,
		"lead_id", msg.LeadID,
	)
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
