package services

import (
	"context"
	"fmt"
	"html"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"

	"lmsinquiry/internal/config"
	"lmsinquiry/internal/domain"
	"lmsinquiry/internal/logging"
	"lmsinquiry/internal/metrics"
)

// Mailer delivers a single message. EmailService picks one from configuration.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
	Name() string
}

// Message is an outgoing email with an HTML body and plain-text fallback
type Message struct {
	ToName   string
	ToEmail  string
	Subject  string
	HTMLBody string
	TextBody string
}

// EmailService handles sending staff notifications
type EmailService struct {
	cfg      *config.EmailConfig
	notifyTo string
	mailer   Mailer
	log      *logrus.Entry
}

// NewEmailService creates a new email service. When email is disabled
// messages are only logged.
func NewEmailService(cfg *config.EmailConfig, notifyTo string) *EmailService {
	s := &EmailService{
		cfg:      cfg,
		notifyTo: notifyTo,
		log:      logging.For("email"),
	}
	switch {
	case !cfg.Enabled || cfg.Provider == "console":
		s.mailer = &consoleMailer{log: s.log}
	case cfg.Provider == "sendgrid":
		s.mailer = &sendgridMailer{cfg: cfg, client: sendgrid.NewSendClient(cfg.SendgridAPIKey)}
	default:
		s.mailer = &smtpMailer{cfg: cfg}
	}
	return s
}

// WithMailer replaces the delivery backend.
func (s *EmailService) WithMailer(m Mailer) *EmailService {
	s.mailer = m
	return s
}

// IsEnabled returns whether email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.cfg.Enabled
}

// NotifyInquiry sends the staff notification for a new faculty inquiry
func (s *EmailService) NotifyInquiry(ctx context.Context, inq *domain.FacultyInquiry) error {
	msg := buildInquiryNotification(inq, s.notifyTo)
	err := s.mailer.Send(ctx, msg)
	metrics.RecordNotification(s.mailer.Name(), err == nil)
	if err != nil {
		return fmt.Errorf("failed to send inquiry notification via %s: %w", s.mailer.Name(), err)
	}
	return nil
}

func buildInquiryNotification(inq *domain.FacultyInquiry, to string) *Message {
	submitted := inq.CreatedAt.UTC().Format("January 2, 2006 at 3:04 PM MST")

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>New Faculty Inquiry</title>
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #334155;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
        <h2 style="color: #4338CA;">New Faculty Inquiry</h2>
        <div style="background: #F8FAFC; padding: 20px; border-radius: 8px; margin: 20px 0;">
            <p><strong>Name:</strong> %s</p>
            <p><strong>Email:</strong> <a href="mailto:%s">%s</a></p>
            <p><strong>Phone:</strong> %s</p>
            <p><strong>Submitted:</strong> %s</p>
        </div>
        <div style="background: #FFFFFF; padding: 20px; border-left: 4px solid #4338CA; margin: 20px 0;">
            <h3 style="margin-top: 0;">Query:</h3>
            <p style="white-space: pre-wrap;">%s</p>
        </div>
        <p style="color: #64748B; font-size: 14px;">Inquiry ID: #%d</p>
    </div>
</body>
</html>`,
		html.EscapeString(inq.Name),
		html.EscapeString(inq.Email), html.EscapeString(inq.Email),
		html.EscapeString(inq.Phone),
		submitted,
		html.EscapeString(inq.Query),
		inq.ID)

	textBody := fmt.Sprintf(`New Faculty Inquiry

Name: %s
Email: %s
Phone: %s
Submitted: %s

Query:
%s

Inquiry ID: #%d`, inq.Name, inq.Email, inq.Phone, submitted, inq.Query, inq.ID)

	return &Message{
		ToName:   "Faculty Team",
		ToEmail:  to,
		Subject:  fmt.Sprintf("New faculty inquiry from %s", inq.Name),
		HTMLBody: htmlBody,
		TextBody: textBody,
	}
}

type consoleMailer struct {
	log *logrus.Entry
}

func (m *consoleMailer) Name() string { return "console" }

func (m *consoleMailer) Send(_ context.Context, msg *Message) error {
	m.log.Infof("Would send to %s: %s", msg.ToEmail, msg.Subject)
	return nil
}

type sendgridMailer struct {
	cfg    *config.EmailConfig
	client *sendgrid.Client
}

func (m *sendgridMailer) Name() string { return "sendgrid" }

func (m *sendgridMailer) Send(ctx context.Context, msg *Message) error {
	if m.cfg.SendgridAPIKey == "" {
		return fmt.Errorf("sendgrid not properly configured")
	}
	from := mail.NewEmail(m.cfg.FromName, m.cfg.FromEmail)
	to := mail.NewEmail(msg.ToName, msg.ToEmail)
	email := mail.NewSingleEmail(from, msg.Subject, to, msg.TextBody, msg.HTMLBody)

	resp, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid API error (status %d): %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type smtpMailer struct {
	cfg *config.EmailConfig
}

func (m *smtpMailer) Name() string { return "smtp" }

// Send delivers msg as multipart/alternative. net/smtp has no context
// support, so ctx is only checked before dialing.
func (m *smtpMailer) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.cfg.SMTPHost == "" || m.cfg.Username == "" || m.cfg.Password == "" {
		return fmt.Errorf("email service not properly configured")
	}

	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", m.cfg.SMTPHost, m.cfg.SMTPPort)
	if err := smtp.SendMail(addr, auth, m.cfg.FromEmail, []string{msg.ToEmail}, buildMIME(m.cfg, msg)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

var headerBreaks = strings.NewReplacer("\r", "", "\n", "")

// headerValue keeps an address on a single header line.
func headerValue(s string) string {
	return headerBreaks.Replace(s)
}

func buildMIME(cfg *config.EmailConfig, msg *Message) []byte {
	from := headerValue(cfg.FromEmail)
	if cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", headerValue(cfg.FromName)), from)
	}
	boundary := fmt.Sprintf("----=_Part_%d", time.Now().UnixNano())

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", headerValue(msg.ToEmail))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.TextBody + "\r\n")

	if msg.HTMLBody != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTMLBody + "\r\n")
	}

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
