package settings

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*MemoryStore
	gets atomic.Int32
}

func (s *countingStore) GetSettings(ctx context.Context, tenantID string, category Category) ([]byte, error) {
	s.gets.Add(1)
	return s.MemoryStore.GetSettings(ctx, tenantID, category)
}

// TestPurpose: Validates that notification preferences are served from cache until saved again.
// Scope: Unit Test
// Expected: one store read for repeated lookups; a save invalidates the cached copy.
// Test Case ID: SET-07
func TestCachedPreferences_ReadThroughAndInvalidate(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	repo := NewRepository(store)
	ctx := context.Background()
	require.NoError(t, repo.SaveNotificationPreferences(ctx, "tenant-1", &NotificationPreferences{NotifyOnError: true, Email: "ops@example.com"}))

	prefs, err := NewCachedPreferences(repo, time.Minute)
	require.NoError(t, err)

	got, err := prefs.NotificationPreferences(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", got.Email)
	_, err = prefs.NotificationPreferences(ctx, "tenant-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, store.gets.Load())

	require.NoError(t, prefs.SaveNotificationPreferences(ctx, "tenant-1", &NotificationPreferences{NotifyOnWarning: true, Email: "alerts@example.com"}))
	got, err = prefs.NotificationPreferences(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, "alerts@example.com", got.Email)
	assert.True(t, got.NotifyOnWarning)
	assert.EqualValues(t, 2, store.gets.Load())
}

func TestCachedPreferences_MissingIsNotFound(t *testing.T) {
	prefs, err := NewCachedPreferences(NewRepository(NewMemoryStore()), time.Minute)
	require.NoError(t, err)

	_, err = prefs.NotificationPreferences(context.Background(), "tenant-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewCachedPreferences_RequiresRepository(t *testing.T) {
	_, err := NewCachedPreferences(nil, time.Minute)
	assert.Error(t, err)
}
