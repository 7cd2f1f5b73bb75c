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
	"errors"
	"fmt"
	"sync"
)

// DefaultHistoryLimit bounds the validation history kept per tenant
const DefaultHistoryLimit = 50

// Repository reads and writes typed records through a Store.
type Repository struct {
	store        Store
	historyLimit int

	// historyLocks serializes read-modify-write of one tenant's history
	historyLocks sync.Map
}

// NewRepository creates a typed repository over store
func NewRepository(store Store) *Repository {
	return &Repository{store: store, historyLimit: DefaultHistoryLimit}
}

// SetHistoryLimit changes how many validation history entries are retained
func (r *Repository) SetHistoryLimit(n int) {
	if n > 0 {
		r.historyLimit = n
	}
}

func (r *Repository) load(ctx context.Context, tenantID string, category Category) (Record, error) {
	raw, err := r.store.GetSettings(ctx, tenantID, category)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s settings: %w", category, err)
	}
	return Decode(category, raw)
}

func (r *Repository) save(ctx context.Context, tenantID string, rec Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := r.store.UpdateSettings(ctx, tenantID, rec.Category(), data); err != nil {
		return fmt.Errorf("failed to update %s settings: %w", rec.Category(), err)
	}
	return nil
}

func (r *Repository) remove(ctx context.Context, tenantID string, category Category) error {
	if err := r.store.DeleteSettings(ctx, tenantID, category); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete %s settings: %w", category, err)
	}
	return nil
}

// Credentials returns the encrypted credentials record
func (r *Repository) Credentials(ctx context.Context, tenantID string) (*EncryptedCredentials, error) {
	rec, err := r.load(ctx, tenantID, CategoryCredentials)
	if err != nil {
		return nil, err
	}
	v := rec.(EncryptedCredentials)
	return &v, nil
}

// SaveCredentials stores the encrypted credentials record
func (r *Repository) SaveCredentials(ctx context.Context, tenantID string, rec *EncryptedCredentials) error {
	return r.save(ctx, tenantID, *rec)
}

// DeleteCredentials removes the credentials record
func (r *Repository) DeleteCredentials(ctx context.Context, tenantID string) error {
	return r.remove(ctx, tenantID, CategoryCredentials)
}

// PhoneMapping returns the tenant's phone-number registration
func (r *Repository) PhoneMapping(ctx context.Context, tenantID string) (*PhoneMapping, error) {
	rec, err := r.load(ctx, tenantID, CategoryPhoneMapping)
	if err != nil {
		return nil, err
	}
	v := rec.(PhoneMapping)
	if v.TenantID == "" {
		v.TenantID = tenantID
	}
	return &v, nil
}

// SavePhoneMapping stores the tenant's phone-number registration
func (r *Repository) SavePhoneMapping(ctx context.Context, tenantID string, rec *PhoneMapping) error {
	return r.save(ctx, tenantID, *rec)
}

// NotificationPreferences returns the tenant's alert preferences
func (r *Repository) NotificationPreferences(ctx context.Context, tenantID string) (*NotificationPreferences, error) {
	rec, err := r.load(ctx, tenantID, CategoryNotifications)
	if err != nil {
		return nil, err
	}
	v := rec.(NotificationPreferences)
	return &v, nil
}

// SaveNotificationPreferences stores the tenant's alert preferences
func (r *Repository) SaveNotificationPreferences(ctx context.Context, tenantID string, rec *NotificationPreferences) error {
	return r.save(ctx, tenantID, *rec)
}

// ValidationHistory returns the tenant's validation log, oldest first.
// A tenant that was never validated has an empty history.
func (r *Repository) ValidationHistory(ctx context.Context, tenantID string) (*ValidationHistory, error) {
	rec, err := r.load(ctx, tenantID, CategoryValidationHistory)
	if errors.Is(err, ErrNotFound) {
		return &ValidationHistory{}, nil
	}
	if err != nil {
		return nil, err
	}
	v := rec.(ValidationHistory)
	return &v, nil
}

// AppendValidationHistory adds entry and trims the log to the history limit.
func (r *Repository) AppendValidationHistory(ctx context.Context, tenantID string, entry HistoryEntry) error {
	lock, _ := r.historyLocks.LoadOrStore(tenantID, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	history, err := r.ValidationHistory(ctx, tenantID)
	if err != nil {
		return err
	}

	history.Entries = append(history.Entries, entry)
	if over := len(history.Entries) - r.historyLimit; over > 0 {
		history.Entries = append([]HistoryEntry(nil), history.Entries[over:]...)
	}
	return r.save(ctx, tenantID, *history)
}

// DeleteValidationHistory removes the tenant's validation log
func (r *Repository) DeleteValidationHistory(ctx context.Context, tenantID string) error {
	return r.remove(ctx, tenantID, CategoryValidationHistory)
}
