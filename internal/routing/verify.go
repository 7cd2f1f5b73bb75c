package routing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"

	"github.com/bookline/whatsgate/internal/audit"
	"github.com/bookline/whatsgate/internal/credential"
	"github.com/bookline/whatsgate/internal/errcode"
	"github.com/bookline/whatsgate/internal/observability/logger"
)

// ModeSubscribe is the only handshake mode accepted
const ModeSubscribe = "subscribe"

// SignatureHeader carries the HMAC of a webhook body
const SignatureHeader = "X-Hub-Signature-256"

// HandshakeRequest is the provider's subscription verification query
type HandshakeRequest struct {
	Mode        string
	VerifyToken string
	Challenge   string
}

// VerifyWebhook answers a subscription handshake for phoneNumberID. The
// challenge is returned unmodified only when the mode is subscribe and the
// token matches the owning tenant's verify token.
func (r *Router) VerifyWebhook(ctx context.Context, phoneNumberID string, req HandshakeRequest) (string, error) {
	t, err := r.Resolve(ctx, phoneNumberID)
	if err != nil {
		return "", err
	}

	creds, err := r.loadCredentials(ctx, t.ID)
	if err != nil {
		return "", err
	}
	if creds.WebhookVerifyToken == "" {
		return "", errcode.New(errcode.WhatsAppSettingsNotFound, "tenant has no webhook verify token")
	}

	if req.Mode != ModeSubscribe || !constantTimeEqual(req.VerifyToken, creds.WebhookVerifyToken) {
		r.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeWebhookVerificationFailed,
			TenantID: t.ID,
			ActorID:  audit.ActorWebhook,
			Resource: phoneNumberID,
			Metadata: map[string]any{"mode": req.Mode},
		})
		return "", errcode.New(errcode.WebhookVerificationFailed, "webhook verification failed")
	}
	return req.Challenge, nil
}

// VerifySignature checks the X-Hub-Signature-256 header of a webhook body
// against the tenant's app secret. Tenants without an app secret are not
// checked.
func (r *Router) VerifySignature(ctx context.Context, tenantID string, body []byte, header string) error {
	creds, err := r.loadCredentials(ctx, tenantID)
	if err != nil {
		return err
	}
	if creds.AppSecret == "" {
		slog.DebugContext(ctx, "signature check skipped, no app secret", logger.TenantID(tenantID))
		return nil
	}

	sig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return errcode.New(errcode.InvalidSignature, "missing or malformed signature header")
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return errcode.New(errcode.InvalidSignature, "malformed signature")
	}

	mac := hmac.New(sha256.New, []byte(creds.AppSecret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return errcode.New(errcode.InvalidSignature, "signature mismatch")
	}
	return nil
}

func (r *Router) loadCredentials(ctx context.Context, tenantID string) (*credential.Credentials, error) {
	creds, err := r.creds.Load(ctx, tenantID)
	switch {
	case err == nil:
		return creds, nil
	case errors.Is(err, credential.ErrNotConfigured):
		return nil, errcode.Wrap(errcode.WhatsAppSettingsNotFound, "tenant has no WhatsApp settings", err)
	case errors.Is(err, credential.ErrUnreadable):
		return nil, errcode.Wrap(errcode.EncryptionError, "tenant WhatsApp settings unreadable", err)
	default:
		return nil, errcode.Wrap(errcode.RoutingError, "failed to load WhatsApp settings", err)
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
