package notify

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/bookline/whatsgate/internal/observability/logger"
	"github.com/bookline/whatsgate/internal/settings"
)

// SignatureHeader carries the signed JWT on generic webhook deliveries
const SignatureHeader = "X-Whatsgate-Signature"

const userAgent = "whatsgate-notifier/1.0"

// NewHTTPClient returns the instrumented client used by HTTP sinks
func NewHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

// EmailSender hands a message to the platform's mail service
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// LogSender is an EmailSender that only logs; used when no mail relay is configured
type LogSender struct {
	From string
}

func (s LogSender) SendEmail(ctx context.Context, to, subject, _ string) error {
	slog.InfoContext(ctx, "email notification",
		logger.String("from", s.From),
		logger.String("to", to),
		logger.String("subject", subject))
	return nil
}

// EmailSink sends notifications to prefs.Email
type EmailSink struct {
	sender EmailSender
}

func NewEmailSink(sender EmailSender) *EmailSink {
	if sender == nil {
		sender = LogSender{}
	}
	return &EmailSink{sender: sender}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Enabled(prefs settings.NotificationPreferences) bool {
	return prefs.Email != ""
}

func (s *EmailSink) Send(ctx context.Context, prefs settings.NotificationPreferences, n Notification) error {
	return s.sender.SendEmail(ctx, prefs.Email, n.Subject(), n.Text())
}

// WebhookSink POSTs the notification as JSON to prefs.WebhookURL. When a
// webhook secret is configured the body is signed with an HS256 JWT.
type WebhookSink struct {
	client *http.Client
	issuer string
	now    func() time.Time
}

func NewWebhookSink(client *http.Client, issuer string) *WebhookSink {
	if client == nil {
		client = NewHTTPClient()
	}
	return &WebhookSink{client: client, issuer: issuer, now: time.Now}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Enabled(prefs settings.NotificationPreferences) bool {
	return prefs.WebhookURL != ""
}

type webhookBody struct {
	Event        string       `json:"event"`
	Notification Notification `json:"notification"`
}

func (s *WebhookSink) Send(ctx context.Context, prefs settings.NotificationPreferences, n Notification) error {
	body, err := json.Marshal(webhookBody{Event: "whatsapp.credential_health", Notification: n})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	headers := map[string]string{}
	if prefs.WebhookSecret != "" {
		sig, err := s.sign(n, body, prefs.WebhookSecret)
		if err != nil {
			return err
		}
		headers[SignatureHeader] = sig
	}
	return post(ctx, s.client, prefs.WebhookURL, body, headers)
}

func (s *WebhookSink) sign(n Notification, body []byte, secret string) (string, error) {
	now := s.now()
	sum := sha256.Sum256(body)
	claims := jwt.MapClaims{
		"iss":         s.issuer,
		"sub":         n.TenantID,
		"jti":         n.ID,
		"iat":         now.Unix(),
		"exp":         now.Add(5 * time.Minute).Unix(),
		"body_sha256": hex.EncodeToString(sum[:]),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign notification: %w", err)
	}
	return signed, nil
}

// ChatSink posts a Slack-compatible {"text": ...} message to prefs.SlackWebhookURL
type ChatSink struct {
	client *http.Client
}

func NewChatSink(client *http.Client) *ChatSink {
	if client == nil {
		client = NewHTTPClient()
	}
	return &ChatSink{client: client}
}

func (s *ChatSink) Name() string { return "chat" }

func (s *ChatSink) Enabled(prefs settings.NotificationPreferences) bool {
	return prefs.SlackWebhookURL != ""
}

func (s *ChatSink) Send(ctx context.Context, prefs settings.NotificationPreferences, n Notification) error {
	body, err := json.Marshal(map[string]string{"text": n.Text()})
	if err != nil {
		return fmt.Errorf("failed to encode chat message: %w", err)
	}
	return post(ctx, s.client, prefs.SlackWebhookURL, body, nil)
}

func post(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("delivery rejected with status %d", resp.StatusCode)
	}
	return nil
}
