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
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Record is one of the typed settings blobs. The set is closed: only the
// types in this file implement it, and Decode switches over every category.
type Record interface {
	Category() Category
	validate() error
}

// EncryptedCredentials is the at-rest form of a tenant's WhatsApp credentials.
// AccessToken, AppSecret and SystemUserToken hold encrypted envelopes.
type EncryptedCredentials struct {
	PhoneNumberID      string    `json:"phoneNumberId"`
	AccessToken        string    `json:"accessToken"`
	BusinessAccountID  string    `json:"businessAccountId,omitempty"`
	WebhookVerifyToken string    `json:"webhookVerifyToken,omitempty"`
	AppID              string    `json:"appId,omitempty"`
	AppSecret          string    `json:"appSecret,omitempty"`
	SystemUserToken    string    `json:"systemUserToken,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (EncryptedCredentials) Category() Category { return CategoryCredentials }

func (r EncryptedCredentials) validate() error {
	if strings.TrimSpace(r.PhoneNumberID) == "" {
		return fmt.Errorf("%w: phoneNumberId is required", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.AccessToken) == "" {
		return fmt.Errorf("%w: accessToken is required", ErrInvalidRecord)
	}
	return nil
}

// MappingStatus is the state of a phone-number registration
type MappingStatus string

const (
	MappingActive   MappingStatus = "active"
	MappingInactive MappingStatus = "inactive"
)

// PhoneMapping ties a provider phone-number-id to the tenant that owns it.
type PhoneMapping struct {
	TenantID      string        `json:"tenantId"`
	PhoneNumberID string        `json:"phoneNumberId"`
	RegisteredAt  time.Time     `json:"registeredAt"`
	Status        MappingStatus `json:"status"`
}

func (PhoneMapping) Category() Category { return CategoryPhoneMapping }

func (r PhoneMapping) validate() error {
	if strings.TrimSpace(r.PhoneNumberID) == "" {
		return fmt.Errorf("%w: phoneNumberId is required", ErrInvalidRecord)
	}
	switch r.Status {
	case MappingActive, MappingInactive:
		return nil
	default:
		return fmt.Errorf("%w: unknown mapping status %q", ErrInvalidRecord, r.Status)
	}
}

// IsActive reports whether the mapping routes traffic
func (r PhoneMapping) IsActive() bool {
	return r.Status == MappingActive
}

// NotificationPreferences controls health alerts for a tenant.
type NotificationPreferences struct {
	NotifyOnError   bool   `json:"notifyOnError"`
	NotifyOnWarning bool   `json:"notifyOnWarning"`
	NotifyOnExpiry  bool   `json:"notifyOnExpiry"`
	Email           string `json:"email,omitempty"`
	WebhookURL      string `json:"webhookUrl,omitempty"`
	WebhookSecret   string `json:"webhookSecret,omitempty"`
	SlackWebhookURL string `json:"slackWebhookUrl,omitempty"`
}

func (NotificationPreferences) Category() Category { return CategoryNotifications }

func (r NotificationPreferences) validate() error {
	for name, u := range map[string]string{"webhookUrl": r.WebhookURL, "slackWebhookUrl": r.SlackWebhookURL} {
		if u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%w: %s must be an http(s) URL", ErrInvalidRecord, name)
		}
	}
	return nil
}

// HistoryEntry is one audited validation outcome
type HistoryEntry struct {
	ID            string    `json:"id"`
	PhoneNumberID string    `json:"phoneNumberId,omitempty"`
	Valid         bool      `json:"valid"`
	Code          string    `json:"code,omitempty"`
	Errors        []string  `json:"errors,omitempty"`
	Warnings      []string  `json:"warnings,omitempty"`
	ValidatedAt   time.Time `json:"validatedAt"`
}

// ValidationHistory is the bounded audit log of validations, newest last.
type ValidationHistory struct {
	Entries []HistoryEntry `json:"entries"`
}

func (ValidationHistory) Category() Category { return CategoryValidationHistory }

func (ValidationHistory) validate() error { return nil }

// Decode parses raw bytes for category into its typed record.
func Decode(category Category, raw []byte) (Record, error) {
	var (
		rec Record
		err error
	)
	switch category {
	case CategoryCredentials:
		var v EncryptedCredentials
		err = json.Unmarshal(raw, &v)
		rec = v
	case CategoryPhoneMapping:
		var v PhoneMapping
		err = json.Unmarshal(raw, &v)
		rec = v
	case CategoryNotifications:
		var v NotificationPreferences
		err = json.Unmarshal(raw, &v)
		rec = v
	case CategoryValidationHistory:
		var v ValidationHistory
		err = json.Unmarshal(raw, &v)
		rec = v
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidRecord, category, err)
	}
	if err := rec.validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Encode validates and serializes a record.
func Encode(rec Record) ([]byte, error) {
	if err := rec.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", rec.Category(), err)
	}
	return data, nil
}
