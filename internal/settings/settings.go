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

// Package settings defines the per-tenant settings store contract and the
// typed records the gateway keeps in it.
package settings

import (
	"context"
	"errors"
)

// Category names one settings blob per tenant
type Category string

const (
	CategoryCredentials       Category = "whatsapp"
	CategoryPhoneMapping      Category = "whatsapp_phone_mapping"
	CategoryNotifications     Category = "whatsapp_notifications"
	CategoryValidationHistory Category = "whatsapp_validation_history"
)

var (
	ErrNotFound        = errors.New("settings not found")
	ErrUnknownCategory = errors.New("unknown settings category")
	ErrInvalidRecord   = errors.New("invalid settings record")
)

// Store is the external key/value persistence for tenant settings.
// Get returns ErrNotFound when the category has never been written.
type Store interface {
	GetSettings(ctx context.Context, tenantID string, category Category) ([]byte, error)
	UpdateSettings(ctx context.Context, tenantID string, category Category, value []byte) error
	DeleteSettings(ctx context.Context, tenantID string, category Category) error
}
