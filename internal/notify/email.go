package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// sendEmail speaks SMTP step by step instead of using smtp.SendMail so
// each failure (dial, STARTTLS, auth, envelope, body) surfaces as a
// distinct wrapped cause in the audit log.
func (d *Dispatcher) sendEmail(ctx context.Context, recipient, subject, body string) error {
	cfg := d.cfg.Email
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("email: dial %s: %w", addr, err)
	}
	// net/smtp has no context support past the dial; the connection
	// deadline covers the rest of the exchange.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("email: handshake with %s: %w", addr, err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			return fmt.Errorf("email: starttls: %w", err)
		}
	}

	if cfg.Username != "" {
		auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("email: auth as %s: %w", cfg.Username, err)
		}
	}

	if err := client.Mail(cfg.From); err != nil {
		return fmt.Errorf("email: mail from %s: %w", cfg.From, err)
	}
	if err := client.Rcpt(recipient); err != nil {
		return fmt.Errorf("email: rcpt to %s: %w", recipient, err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("email: data: %w", err)
	}
	if _, err := wc.Write([]byte(buildEmailMessage(cfg.From, recipient, subject, body))); err != nil {
		wc.Close()
		return fmt.Errorf("email: write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("email: close body: %w", err)
	}

	if err := client.Quit(); err != nil {
		return fmt.Errorf("email: quit: %w", err)
	}
	return nil
}

func buildEmailMessage(from, to, subject, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString(`Content-Type: text/plain; charset="UTF-8"` + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return b.String()
}
