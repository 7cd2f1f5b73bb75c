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

// Package credential validates, stores and rotates tenants' WhatsApp
// Business credentials.
package credential

import (
	"strings"
	"time"
)

// Credentials is the plaintext form of a tenant's WhatsApp configuration.
// It never leaves the process unencrypted.
type Credentials struct {
	PhoneNumberID      string    `json:"phoneNumberId"`
	AccessToken        string    `json:"accessToken"`
	BusinessAccountID  string    `json:"businessAccountId,omitempty"`
	WebhookVerifyToken string    `json:"webhookVerifyToken,omitempty"`
	AppID              string    `json:"appId,omitempty"`
	AppSecret          string    `json:"appSecret,omitempty"`
	SystemUserToken    string    `json:"systemUserToken,omitempty"`
	UpdatedAt          time.Time `json:"updatedAt,omitempty"`
}

// Missing returns the names of required fields that are empty
func (c *Credentials) Missing() []string {
	var missing []string
	if c == nil || strings.TrimSpace(c.PhoneNumberID) == "" {
		missing = append(missing, "phoneNumberId")
	}
	if c == nil || strings.TrimSpace(c.AccessToken) == "" {
		missing = append(missing, "accessToken")
	}
	return missing
}

// Masked returns a copy safe for display
func (c Credentials) Masked() Credentials {
	c.AccessToken = mask(c.AccessToken)
	c.AppSecret = mask(c.AppSecret)
	c.SystemUserToken = mask(c.SystemUserToken)
	c.WebhookVerifyToken = mask(c.WebhookVerifyToken)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// Patch is a partial credentials update; nil fields keep their stored value
// and an empty string clears an optional field.
type Patch struct {
	PhoneNumberID      *string `json:"phoneNumberId,omitempty"`
	AccessToken        *string `json:"accessToken,omitempty"`
	BusinessAccountID  *string `json:"businessAccountId,omitempty"`
	WebhookVerifyToken *string `json:"webhookVerifyToken,omitempty"`
	AppID              *string `json:"appId,omitempty"`
	AppSecret          *string `json:"appSecret,omitempty"`
	SystemUserToken    *string `json:"systemUserToken,omitempty"`
}

// Merge applies p over base and returns the result; base may be nil
func (p Patch) Merge(base *Credentials) Credentials {
	var out Credentials
	if base != nil {
		out = *base
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	set(&out.PhoneNumberID, p.PhoneNumberID)
	set(&out.AccessToken, p.AccessToken)
	set(&out.BusinessAccountID, p.BusinessAccountID)
	set(&out.WebhookVerifyToken, p.WebhookVerifyToken)
	set(&out.AppID, p.AppID)
	set(&out.AppSecret, p.AppSecret)
	set(&out.SystemUserToken, p.SystemUserToken)
	return out
}

// FromCredentials builds a patch that replaces every field
func FromCredentials(c Credentials) Patch {
	return Patch{
		PhoneNumberID:      &c.PhoneNumberID,
		AccessToken:        &c.AccessToken,
		BusinessAccountID:  &c.BusinessAccountID,
		WebhookVerifyToken: &c.WebhookVerifyToken,
		AppID:              &c.AppID,
		AppSecret:          &c.AppSecret,
		SystemUserToken:    &c.SystemUserToken,
	}
}
