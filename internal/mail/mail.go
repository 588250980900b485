package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BusyMan009/my-thrift-backend/internal/config"
	"github.com/charmbracelet/log"
)

// Mailer sends transactional email.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// New builds the configured mailer. "resend" sends through the Resend HTTP
// API; anything else only logs, which keeps local development mail-free.
func New(cfg *config.Config) (Mailer, error) {
	switch cfg.MailerType {
	case "resend":
		if cfg.ResendAPIKey == "" {
			return nil, fmt.Errorf("resend mailer requires an API key")
		}
		return &resendMailer{
			apiKey: cfg.ResendAPIKey,
			from:   cfg.MailFrom,
			client: &http.Client{Timeout: 10 * time.Second},
		}, nil
	case "log":
		return &logMailer{from: cfg.MailFrom}, nil
	default:
		return nil, fmt.Errorf("unknown mailer type %q; valid: resend, log", cfg.MailerType)
	}
}

const resendEndpoint = "https://api.resend.com/emails"

type resendMailer struct {
	apiKey string
	from   string
	client *http.Client
}

func (m *resendMailer) Send(ctx context.Context, to, subject, html string) error {
	body, err := json.Marshal(map[string]any{
		"from":    m.from,
		"to":      []string{to},
		"subject": subject,
		"html":    html,
	})
	if err != nil {
		return fmt.Errorf("failed to encode mail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, resendEndpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build mail request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("mail provider rejected the message: status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

type logMailer struct {
	from string
}

func (m *logMailer) Send(_ context.Context, to, subject, _ string) error {
	log.Info("Mail suppressed (log mailer)", "from", m.from, "to", to, "subject", subject)
	return nil
}
