package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookline/whatsgate/internal/secrets"
	"github.com/bookline/whatsgate/internal/settings"
)

var (
	// ErrNotConfigured means the tenant has no stored credentials
	ErrNotConfigured = errors.New("credentials not configured")
	// ErrUnreadable means stored credentials exist but cannot be decrypted or decoded
	ErrUnreadable = errors.New("stored credentials are unreadable")
	// ErrEncryption means a secret could not be sealed before storage
	ErrEncryption = errors.New("failed to encrypt credentials")
)

// Store persists credentials through the settings repository, encrypting
// secret fields on the way in and decrypting them on the way out.
type Store struct {
	repo  *settings.Repository
	codec *secrets.Codec
	now   func() time.Time
}

// NewStore creates a credentials store
func NewStore(repo *settings.Repository, codec *secrets.Codec) *Store {
	return &Store{repo: repo, codec: codec, now: time.Now}
}

// Load returns the tenant's decrypted credentials
func (s *Store) Load(ctx context.Context, tenantID string) (*Credentials, error) {
	rec, err := s.repo.Credentials(ctx, tenantID)
	if err != nil {
		switch {
		case errors.Is(err, settings.ErrNotFound):
			return nil, ErrNotConfigured
		case errors.Is(err, settings.ErrInvalidRecord):
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		return nil, err
	}

	out := &Credentials{
		PhoneNumberID:      rec.PhoneNumberID,
		BusinessAccountID:  rec.BusinessAccountID,
		WebhookVerifyToken: rec.WebhookVerifyToken,
		AppID:              rec.AppID,
		UpdatedAt:          rec.UpdatedAt,
	}
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&out.AccessToken, rec.AccessToken},
		{&out.AppSecret, rec.AppSecret},
		{&out.SystemUserToken, rec.SystemUserToken},
	} {
		if f.src == "" {
			continue
		}
		if !secrets.IsEnvelope(f.src) {
			return nil, fmt.Errorf("%w: secret field is not encrypted", ErrUnreadable)
		}
		plain, err := s.codec.Decrypt(f.src)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		*f.dst = plain
	}
	return out, nil
}

// Save encrypts and stores creds, stamping UpdatedAt
func (s *Store) Save(ctx context.Context, tenantID string, creds Credentials) error {
	rec := settings.EncryptedCredentials{
		PhoneNumberID:      creds.PhoneNumberID,
		BusinessAccountID:  creds.BusinessAccountID,
		WebhookVerifyToken: creds.WebhookVerifyToken,
		AppID:              creds.AppID,
		UpdatedAt:          s.now().UTC(),
	}
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&rec.AccessToken, creds.AccessToken},
		{&rec.AppSecret, creds.AppSecret},
		{&rec.SystemUserToken, creds.SystemUserToken},
	} {
		if f.src == "" {
			continue
		}
		env, err := s.codec.Encrypt(f.src)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrEncryption, err)
		}
		*f.dst = env
	}
	return s.repo.SaveCredentials(ctx, tenantID, &rec)
}

// Delete removes the tenant's credentials
func (s *Store) Delete(ctx context.Context, tenantID string) error {
	return s.repo.DeleteCredentials(ctx, tenantID)
}
