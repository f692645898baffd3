package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"

	"github.com/vaultgate/vaultgate/internal/shared"
)

// SMTPMailer sends mail over implicit TLS with PLAIN auth.
type SMTPMailer struct {
	host string
	port int
	from string
	user string
	pass string
}

// NewSMTPMailer constructs an SMTPMailer.
func NewSMTPMailer(host string, port int, from, user, pass string) *SMTPMailer {
	return &SMTPMailer{host: host, port: port, from: from, user: user, pass: pass}
}

// Send dispatches one HTML message. Every transport failure wraps
// shared.ErrDelivery so callers can distinguish it from validation errors.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	msg := []byte(
		"From: " + m.from + "\r\n" +
			"To: " + to + "\r\n" +
			"Subject: " + subject + "\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/html; charset=\"utf-8\"\r\n" +
			"\r\n" +
			htmlBody,
	)

	addr := net.JoinHostPort(m.host, strconv.Itoa(m.port))
	dialer := &tls.Dialer{Config: &tls.Config{ServerName: m.host}}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", shared.ErrDelivery, addr, err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, m.host)
	if err != nil {
		return fmt.Errorf("%w: handshake: %w", shared.ErrDelivery, err)
	}
	defer client.Quit()

	if m.user != "" {
		auth := smtp.PlainAuth("", m.user, m.pass, m.host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("%w: auth: %w", shared.ErrDelivery, err)
		}
	}

	if err := client.Mail(m.from); err != nil {
		return fmt.Errorf("%w: mail from: %w", shared.ErrDelivery, err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("%w: rcpt to: %w", shared.ErrDelivery, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%w: data: %w", shared.ErrDelivery, err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("%w: write: %w", shared.ErrDelivery, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", shared.ErrDelivery, err)
	}
	return nil
}

var _ Mailer = (*SMTPMailer)(nil)
