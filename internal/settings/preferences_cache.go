// Copyright 2026 The Whatsgate Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package settings

import (
	"context"
	"fmt"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const preferencesCacheKeyPrefix = "whatsgate::notification_preferences::v1"

// CachedPreferences reads notification preferences through a read-through
// cache. Saves invalidate the tenant's entry.
type CachedPreferences struct {
	repo  *Repository
	cache repositorycache.CacheService
}

// NewCachedPreferences wraps repo with a cache whose entries live for ttl
func NewCachedPreferences(repo *Repository, ttl time.Duration) (*CachedPreferences, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings: repository is required")
	}
	cfg := repositorycache.DefaultConfig()
	if ttl > 0 {
		cfg.TTL = ttl
	}
	svc, err := repositorycache.NewCacheService(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create preferences cache: %w", err)
	}
	return &CachedPreferences{repo: repo, cache: svc}, nil
}

func preferencesCacheKey(tenantID string) string {
	return preferencesCacheKeyPrefix + "::" + tenantID
}

// NotificationPreferences returns the tenant's alert preferences, loading
// them on a miss. ErrNotFound is not cached.
func (c *CachedPreferences) NotificationPreferences(ctx context.Context, tenantID string) (*NotificationPreferences, error) {
	prefs, err := repositorycache.GetOrFetch(ctx, c.cache, preferencesCacheKey(tenantID), func(ctx context.Context) (NotificationPreferences, error) {
		rec, err := c.repo.NotificationPreferences(ctx, tenantID)
		if err != nil {
			return NotificationPreferences{}, err
		}
		return *rec, nil
	})
	if err != nil {
		return nil, err
	}
	return &prefs, nil
}

// SaveNotificationPreferences stores rec and drops the cached copy
func (c *CachedPreferences) SaveNotificationPreferences(ctx context.Context, tenantID string, rec *NotificationPreferences) error {
	if err := c.repo.SaveNotificationPreferences(ctx, tenantID, rec); err != nil {
		return err
	}
	return c.cache.Delete(ctx, preferencesCacheKey(tenantID))
}
