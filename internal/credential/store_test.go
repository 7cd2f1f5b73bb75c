package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookline/whatsgate/internal/settings"
)

// TestPurpose: Validates that secret fields are encrypted at rest and decrypted on load.
// Scope: Unit Test
// Security: Tokens never reach the settings store in plaintext
// Expected: Stored record holds envelopes only; Load returns the original values.
// Test Case ID: CRD-09
func TestStore_EncryptsAtRest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.Save(ctx, "tenant-1", goodCredentials()))

	rec, err := f.repo.Credentials(ctx, "tenant-1")
	require.NoError(t, err)
	assert.NotContains(t, rec.AccessToken, "EAAG-good-token")
	assert.NotContains(t, rec.AppSecret, "app-secret-1")
	assert.Equal(t, "phone-123", rec.PhoneNumberID)
	assert.Equal(t, f.clock.Now(), rec.UpdatedAt)

	got, err := f.store.Load(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "EAAG-good-token", got.AccessToken)
	assert.Equal(t, "app-secret-1", got.AppSecret)
}

func TestStore_PlaintextSecretIsUnreadable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.SaveCredentials(ctx, "tenant-1", &settings.EncryptedCredentials{
		PhoneNumberID: "phone-123",
		AccessToken:   "EAAG-plain-token",
	}))

	_, err := f.store.Load(ctx, "tenant-1")
	assert.ErrorIs(t, err, ErrUnreadable)

	_, err = f.store.Load(ctx, "tenant-2")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
