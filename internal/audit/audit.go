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

package audit

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Event types
const (
	TypeCredentialsUpdated        = "credentials_updated"
	TypeCredentialsRejected       = "credentials_rejected"
	TypeCredentialsDeleted        = "credentials_deleted"
	TypePhoneNumberRegistered     = "phone_number_registered"
	TypePhoneNumberUnregistered   = "phone_number_unregistered"
	TypeWebhookVerificationFailed = "webhook_verification_failed"
	TypeHealthStatusChanged       = "health_status_changed"
	TypeNotificationSent          = "notification_sent"
	TypeNotificationFailed        = "notification_failed"
)

// Actors for events without a human caller
const (
	ActorSystem  = "system"
	ActorMonitor = "health_monitor"
	ActorWebhook = "whatsapp_webhook"
)

// Event represents an auditable action
type Event struct {
	Type     string
	TenantID string
	ActorID  string
	// Resource is the object acted on, usually a phone-number-id
	Resource  string
	Metadata  map[string]any
	Timestamp time.Time
}

// Failed reports whether the event records a rejected or failed action
func (e Event) Failed() bool {
	switch e.Type {
	case TypeCredentialsRejected, TypeWebhookVerificationFailed, TypeNotificationFailed:
		return true
	}
	return false
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
}

// SlogLogger writes events to the default slog logger as AUDIT_EVENT
// records, WARN for failures and INFO otherwise.
type SlogLogger struct {
	now func() time.Time
}

// NewSlogLogger creates a new audit logger
func NewSlogLogger() *SlogLogger {
	return &SlogLogger{now: time.Now}
}

// Log records an audit event
func (l *SlogLogger) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}

	attrs := []slog.Attr{
		slog.String("audit_type", event.Type),
		slog.String("tenant_id", event.TenantID),
		slog.String("actor_id", event.ActorID),
		slog.String("resource", event.Resource),
		slog.Time("timestamp", event.Timestamp.UTC()),
		slog.String("component", "audit"),
	}

	if len(event.Metadata) > 0 {
		keys := make([]string, 0, len(event.Metadata))
		for k := range event.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		group := make([]any, 0, len(keys))
		for _, k := range keys {
			v := event.Metadata[k]
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	level := slog.LevelInfo
	if event.Failed() {
		level = slog.LevelWarn
	}
	slog.LogAttrs(ctx, level, "AUDIT_EVENT", attrs...)
}

var secretMarkers = []string{"password", "secret", "token", "key", "authorization", "credential", "hash"}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	for _, s := range secretMarkers {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Discard drops every event
type Discard struct{}

func (Discard) Log(context.Context, Event) {}
