// Package notify delivers alert and account messages over the connectors a
// collection is configured with (email over SMTP, Telegram bot API).
//
// Delivery is best-effort: the row-write path that triggers an
// alert never waits for, and never fails on, a connector error. Failures are
// logged by the caller and swallowed.
package notify

import (
	"context"
	"net/http"
	"time"
)

// EmailConnector holds the per-collection SMTP credentials used to report
// triggered action rules.
type EmailConnector struct {
	Host      string   `json:"host"`
	User      string   `json:"user"`
	Password  string   `json:"password"`
	Receivers []string `json:"receivers"`
}

// TelegramConnector holds the per-collection Telegram bot credentials.
type TelegramConnector struct {
	ChatID   string `json:"chat_id"`
	BotToken string `json:"bot_token"`
}

// Notifier is the outbound notification collaborator. The rule engine only
// depends on this interface so tests can substitute a recording fake.
type Notifier interface {
	SendEmail(ctx context.Context, conn EmailConnector, subject, message string) error
	SendTelegram(ctx context.Context, conn TelegramConnector, text string) error
}

// Service is the production Notifier backed by gomail and the Telegram HTTP
// API.
type Service struct {
	// WebURL is the public frontend URL embedded in alert emails so the
	// receiver can jump straight to the collection.
	WebURL string

	httpClient *http.Client
}

// NewService creates a Notifier for the given frontend URL.
func NewService(webURL string) *Service {
	return &Service{
		WebURL: webURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}
