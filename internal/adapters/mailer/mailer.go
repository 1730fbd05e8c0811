// Package mailer sends HTML notifications over SMTP with STARTTLS.
package mailer

import (
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

// Config is the SMTP endpoint and sender identity.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type Mailer struct {
	cfg Config
}

func New(cfg Config) *Mailer {
	return &Mailer{cfg: cfg}
}

// Configured reports whether sending can be attempted.
func (m *Mailer) Configured() bool {
	return m.cfg.Host != "" && m.cfg.From != ""
}

// Send delivers one HTML message to all recipients in a single SMTP session.
// An empty recipient list is a no-op.
func (m *Mailer) Send(subject, htmlBody string, recipients []string) error {
	if len(recipients) == 0 {
		return nil
	}

	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprintf("%d", m.cfg.Port))
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("%w: smtp dial %s: %v", core.ErrExternalFailure, addr, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return fmt.Errorf("%w: smtp starttls: %v", core.ErrExternalFailure, err)
		}
	}
	if m.cfg.Username != "" {
		auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("%w: smtp auth: %v", core.ErrExternalFailure, err)
		}
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("%w: smtp mail from: %v", core.ErrExternalFailure, err)
	}
	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("%w: smtp rcpt %s: %v", core.ErrExternalFailure, rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("%w: smtp data: %v", core.ErrExternalFailure, err)
	}
	if _, err := w.Write(buildMessage(m.cfg.From, recipients, subject, htmlBody)); err != nil {
		return fmt.Errorf("%w: smtp write: %v", core.ErrExternalFailure, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: smtp close data: %v", core.ErrExternalFailure, err)
	}
	return client.Quit()
}

func buildMessage(from string, recipients []string, subject, htmlBody string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(htmlBody)
	b.WriteString("\r\n")
	return []byte(b.String())
}
