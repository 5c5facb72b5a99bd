// Package mailer turns notifications into plain-text emails.
package mailer

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"

	"bikeservice/internal/config"
	"bikeservice/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Transport sends composed messages. *gomail.Dialer satisfies it.
type Transport interface {
	DialAndSend(m ...*gomail.Message) error
}

// LogTransport writes messages to the log instead of sending them. It is
// used when SMTP credentials are not configured.
type LogTransport struct {
	logger *zerolog.Logger
}

func NewLogTransport(logger *zerolog.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) DialAndSend(messages ...*gomail.Message) error {
	for _, m := range messages {
		t.logger.Info().
			Strs("to", m.GetHeader("To")).
			Strs("subject", m.GetHeader("Subject")).
			Msg("SMTP not configured, email not sent")
	}
	return nil
}

// NewTransport returns a gomail dialer for cfg, or a LogTransport when SMTP
// is disabled.
func NewTransport(cfg config.SMTPConfig, logger *zerolog.Logger) Transport {
	if !cfg.Enabled() {
		return NewLogTransport(logger)
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.TLS {
		d.TLSConfig = &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	}
	d.SSL = cfg.Port == 465
	return d
}

type Mailer struct {
	transport   Transport
	fromEmail   string
	fromName    string
	frontendURL string
	logger      *zerolog.Logger
}

func New(transport Transport, cfg config.SMTPConfig, frontendURL string, logger *zerolog.Logger) *Mailer {
	return &Mailer{
		transport:   transport,
		fromEmail:   cfg.FromEmail,
		fromName:    cfg.FromName,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		logger:      logger,
	}
}

// Deliver composes and sends one outbox notification.
func (m *Mailer) Deliver(ctx context.Context, n *models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var payload models.NotificationPayload
	if err := json.Unmarshal([]byte(n.Payload), &payload); err != nil {
		return fmt.Errorf("failed to decode notification payload: %w", err)
	}

	subject, body, err := m.Compose(n.Kind, payload)
	if err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.fromEmail, m.fromName))
	msg.SetHeader("To", n.Recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.transport.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send %s email: %w", n.Kind, err)
	}

	m.logger.Debug().Str("kind", n.Kind).Int64("notification_id", n.ID).Msg("email sent")
	return nil
}

// Compose renders the subject and plain-text body for a notification kind.
func (m *Mailer) Compose(kind string, p models.NotificationPayload) (string, string, error) {
	var b strings.Builder

	switch kind {
	case models.NotifyBookingConfirmation:
		fmt.Fprintf(&b, "Hi %s,\n\n", p.CustomerName)
		fmt.Fprintf(&b, "Your booking for %s has been received.\n\n", p.BookingDate)
		writeSummary(&b, p)
		b.WriteString("\nWe will let you know when your bike is ready.\n")
		return "Booking Confirmed - " + p.BookingDate, b.String(), nil

	case models.NotifyNewBooking:
		fmt.Fprintf(&b, "New booking from %s for %s.\n\n", p.CustomerName, p.BookingDate)
		fmt.Fprintf(&b, "Customer: %s\nEmail: %s\nPhone: %s\n\n", p.CustomerName, p.CustomerEmail, p.CustomerPhone)
		writeSummary(&b, p)
		if p.Notes != "" {
			fmt.Fprintf(&b, "\nNotes: %s\n", p.Notes)
		}
		return fmt.Sprintf("New Booking from %s - %s", p.CustomerName, p.BookingDate), b.String(), nil

	case models.NotifyReadyForDelivery:
		fmt.Fprintf(&b, "Hi %s,\n\n", p.CustomerName)
		fmt.Fprintf(&b, "Your bike is ready for pickup (booking %s).\n", p.BookingID)
		fmt.Fprintf(&b, "Total due: %s\n", p.Total.StringFixed(2))
		return "Your Bike is Ready for Pickup!", b.String(), nil

	case models.NotifyEmailVerification:
		fmt.Fprintf(&b, "Hi %s,\n\n", p.RecipientName)
		b.WriteString("Please confirm your email address by opening the link below:\n\n")
		fmt.Fprintf(&b, "%s/verify-email?token=%s\n", m.frontendURL, p.VerificationToken)
		return "Verify Your Email - Bike Service Station", b.String(), nil

	default:
		return "", "", fmt.Errorf("unknown notification kind %q", kind)
	}
}

func writeSummary(b *strings.Builder, p models.NotificationPayload) {
	fmt.Fprintf(b, "Booking ID: %s\n", p.BookingID)
	b.WriteString("Services:\n")
	for _, line := range p.Lines {
		fmt.Fprintf(b, "  - %s: $%s\n", line.Name, line.Price.StringFixed(2))
	}
	fmt.Fprintf(b, "Total: $%s\n", p.Total.StringFixed(2))
}
