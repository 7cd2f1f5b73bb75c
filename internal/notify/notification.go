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

// Package notify delivers credential health alerts to tenant-configured
// sinks: email, a generic webhook and a chat webhook.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bookline/whatsgate/internal/credential"
	"github.com/bookline/whatsgate/internal/settings"
)

// Kind is the reason a notification is sent
type Kind string

const (
	KindError    Kind = "error"
	KindWarning  Kind = "warning"
	KindExpired  Kind = "expired"
	KindExpiring Kind = "expiring"
)

// Notification describes one health transition
type Notification struct {
	ID             string             `json:"id"`
	TenantID       string             `json:"tenantId"`
	PhoneNumberID  string             `json:"phoneNumberId"`
	Kind           Kind               `json:"kind"`
	Status         string             `json:"status"`
	PreviousStatus string             `json:"previousStatus"`
	Issues         []credential.Issue `json:"issues,omitempty"`
	OccurredAt     time.Time          `json:"occurredAt"`
}

// Subject is a one-line summary
func (n Notification) Subject() string {
	switch n.Kind {
	case KindExpired:
		return fmt.Sprintf("WhatsApp token expired for %s", n.PhoneNumberID)
	case KindExpiring:
		return fmt.Sprintf("WhatsApp token expiring soon for %s", n.PhoneNumberID)
	case KindError:
		return fmt.Sprintf("WhatsApp credentials failing for %s", n.PhoneNumberID)
	default:
		return fmt.Sprintf("WhatsApp credentials need attention for %s", n.PhoneNumberID)
	}
}

// Text renders the notification as plain text
func (n Notification) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (status %s, was %s)", n.Subject(), n.Status, n.PreviousStatus)
	for _, is := range n.Issues {
		fmt.Fprintf(&b, "\n- [%s] %s", is.Severity, is.Message)
	}
	return b.String()
}

// Sink delivers notifications to one channel
type Sink interface {
	Name() string
	Enabled(prefs settings.NotificationPreferences) bool
	Send(ctx context.Context, prefs settings.NotificationPreferences, n Notification) error
}

// Wants reports whether prefs opt in to notifications of kind
func Wants(prefs settings.NotificationPreferences, kind Kind) bool {
	switch kind {
	case KindError:
		return prefs.NotifyOnError
	case KindWarning:
		return prefs.NotifyOnWarning
	case KindExpired, KindExpiring:
		return prefs.NotifyOnExpiry
	default:
		return false
	}
}
