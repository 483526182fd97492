package report

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/indago/internal/common"
	"github.com/ternarybob/indago/internal/models"
)

// Mailer delivers run reports and failure notices over SMTP
type Mailer struct {
	config *common.SMTPConfig
	logger arbor.ILogger
}

func NewMailer(config *common.SMTPConfig, logger arbor.ILogger) *Mailer {
	return &Mailer{
		config: config,
		logger: logger,
	}
}

// IsConfigured checks that the minimum SMTP settings are present
func (m *Mailer) IsConfigured() bool {
	return m.config.Host != "" && m.config.From != "" && len(m.config.To) > 0
}

// SendReport emails the rendered digest to all configured recipients
func (m *Mailer) SendReport(ctx context.Context, report *models.RunReport, html, text string) error {
	subject := fmt.Sprintf("arXiv Digest %s — %d papers analyzed",
		report.StartedAt.Format("2006-01-02"), len(report.Analyzed))

	if err := m.send(subject, html, text); err != nil {
		return err
	}

	m.logger.Info().
		Str("run_id", report.RunID).
		Strs("to", m.config.To).
		Msg("Report email sent")
	return nil
}

// SendFailure emails a run-level failure notice. Sent instead of a report when
// the pipeline could not obtain any analysis at all.
func (m *Mailer) SendFailure(ctx context.Context, runID string, reason string) error {
	subject := "arXiv Digest pipeline failure"
	body := fmt.Sprintf("Pipeline run %s failed to produce any analysis.\n\nReason: %s\n", runID, reason)

	if err := m.send(subject, "", body); err != nil {
		return err
	}

	m.logger.Info().
		Str("run_id", runID).
		Strs("to", m.config.To).
		Msg("Failure notification sent")
	return nil
}

// send builds a multipart/alternative message and delivers it. Bodies are
// base64 encoded; RFC 5322 caps line length at 998 chars and rendered HTML
// routinely exceeds that.
func (m *Mailer) send(subject, htmlBody, textBody string) error {
	if !m.IsConfigured() {
		return fmt.Errorf("SMTP is not configured")
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", m.config.FromName, m.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(m.config.To, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))

	if htmlBody != "" {
		boundary := generateBoundary()
		msg.WriteString("MIME-Version: 1.0\r\n")
		msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
		msg.WriteString("\r\n")

		if textBody != "" {
			msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
			msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
			msg.WriteString("Content-Transfer-Encoding: base64\r\n")
			msg.WriteString("\r\n")
			msg.WriteString(encodeBase64WithLineBreaks(textBody))
			msg.WriteString("\r\n")
		}

		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(encodeBase64WithLineBreaks(htmlBody))
		msg.WriteString("\r\n")

		msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))
	} else {
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(textBody)
	}

	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	auth := smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)

	if m.config.UseTLS {
		return m.sendWithTLS(addr, auth, msg.String())
	}
	return smtp.SendMail(addr, auth, m.config.From, m.config.To, []byte(msg.String()))
}

// sendWithTLS connects over direct TLS, falling back to STARTTLS for servers
// that only upgrade after the greeting.
func (m *Mailer) sendWithTLS(addr string, auth smtp.Auth, msg string) error {
	host := strings.Split(addr, ":")[0]

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return m.sendWithSTARTTLS(addr, auth, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return m.deliver(client, auth, msg)
}

func (m *Mailer) sendWithSTARTTLS(addr string, auth smtp.Auth, msg string) error {
	host := strings.Split(addr, ":")[0]

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return m.deliver(client, auth, msg)
}

func (m *Mailer) deliver(client *smtp.Client, auth smtp.Auth, msg string) error {
	if m.config.Username != "" {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(m.config.From); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, to := range m.config.To {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("failed to set mail recipient %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// generateBoundary returns a random MIME boundary unlikely to collide with
// message content.
func generateBoundary() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "indago-boundary-fallback"
	}
	return fmt.Sprintf("indago-%x", buf)
}

// encodeBase64WithLineBreaks encodes content with 76-char lines per RFC 2045
func encodeBase64WithLineBreaks(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	var result strings.Builder
	for len(encoded) > 76 {
		result.WriteString(encoded[:76])
		result.WriteString("\r\n")
		encoded = encoded[76:]
	}
	result.WriteString(encoded)

	return result.String()
}
