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

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bookline/whatsgate/internal/settings"
)

// SettingsRepository implements settings.Store on the tenant_settings table
type SettingsRepository struct {
	db *DB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetSettings returns the raw value of one category
func (r *SettingsRepository) GetSettings(ctx context.Context, tenantID string, category settings.Category) ([]byte, error) {
	var value []byte
	err := r.db.pool.QueryRow(ctx, `
		SELECT value
		FROM tenant_settings
		WHERE tenant_id = $1 AND category = $2
	`, tenantID, string(category)).Scan(&value)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, settings.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	return value, nil
}

// UpdateSettings upserts the value of one category
func (r *SettingsRepository) UpdateSettings(ctx context.Context, tenantID string, category settings.Category, value []byte) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO tenant_settings (tenant_id, category, value, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW())
		ON CONFLICT (tenant_id, category)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`, tenantID, string(category), string(value))
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}

// DeleteSettings removes one category. Deleting a missing row is a no-op.
func (r *SettingsRepository) DeleteSettings(ctx context.Context, tenantID string, category settings.Category) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM tenant_settings
		WHERE tenant_id = $1 AND category = $2
	`, tenantID, string(category))
	if err != nil {
		return fmt.Errorf("failed to delete settings: %w", err)
	}
	return nil
}
