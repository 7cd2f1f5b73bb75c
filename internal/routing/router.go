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

// Package routing resolves inbound WhatsApp webhooks to the tenant that
// owns the receiving phone number.
package routing

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bookline/whatsgate/internal/audit"
	"github.com/bookline/whatsgate/internal/cache"
	"github.com/bookline/whatsgate/internal/credential"
	"github.com/bookline/whatsgate/internal/errcode"
	"github.com/bookline/whatsgate/internal/observability/logger"
	"github.com/bookline/whatsgate/internal/settings"
	"github.com/bookline/whatsgate/internal/tenant"
	"github.com/bookline/whatsgate/internal/whatsapp"
)

// DefaultCacheTTL bounds how stale a phone-number resolution may be
const DefaultCacheTTL = 5 * time.Minute

// MappingStore reads and writes phone-number registrations
type MappingStore interface {
	PhoneMapping(ctx context.Context, tenantID string) (*settings.PhoneMapping, error)
	SavePhoneMapping(ctx context.Context, tenantID string, rec *settings.PhoneMapping) error
}

// CredentialReader loads a tenant's decrypted credentials
type CredentialReader interface {
	Load(ctx context.Context, tenantID string) (*credential.Credentials, error)
}

// Route is a resolved webhook destination
type Route struct {
	Tenant        *tenant.Tenant
	PhoneNumberID string
}

// Config configures a Router
type Config struct {
	CacheTTL time.Duration
	PageSize int
	Now      func() time.Time
}

// CacheStats describes the phone-number cache
type CacheStats struct {
	Entries int           `json:"entries"`
	TTL     time.Duration `json:"ttl"`
}

// Router maps phone-number-ids to tenants. Resolutions are cached per
// phone-number-id; a miss scans the directory.
type Router struct {
	directory   tenant.Directory
	mappings    MappingStore
	creds       CredentialReader
	cache       *cache.TTL[string, string]
	pageSize    int
	now         func() time.Time
	auditLogger audit.Logger
}

// NewRouter creates a router
func NewRouter(directory tenant.Directory, mappings MappingStore, creds CredentialReader, cfg Config, auditLogger audit.Logger) *Router {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = tenant.DefaultPageSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if auditLogger == nil {
		auditLogger = audit.Discard{}
	}
	return &Router{
		directory:   directory,
		mappings:    mappings,
		creds:       creds,
		cache:       cache.New[string, string](cfg.CacheTTL, cache.WithClock(cfg.Now)),
		pageSize:    cfg.PageSize,
		now:         cfg.Now,
		auditLogger: auditLogger,
	}
}

// RouteWebhook resolves the tenant that owns the phone number a webhook was
// delivered to. The payload shape is checked before any lookup.
func (r *Router) RouteWebhook(ctx context.Context, payload *whatsapp.Payload) (*Route, error) {
	if err := checkShape(payload); err != nil {
		return nil, err
	}

	phoneNumberID := strings.TrimSpace(payload.PhoneNumberID())
	if phoneNumberID == "" {
		return nil, errcode.New(errcode.PhoneNumberIDNotFound, "webhook has no metadata.phone_number_id")
	}

	t, err := r.Resolve(ctx, phoneNumberID)
	if err != nil {
		return nil, err
	}
	return &Route{Tenant: t, PhoneNumberID: phoneNumberID}, nil
}

func checkShape(p *whatsapp.Payload) error {
	switch {
	case p == nil:
		return errcode.New(errcode.InvalidWebhookPayload, "empty payload")
	case p.Object != whatsapp.ObjectWhatsAppBusinessAccount:
		return errcode.New(errcode.InvalidWebhookPayload, "unexpected object type").
			WithDetails(map[string]any{"object": p.Object})
	case len(p.Entry) == 0:
		return errcode.New(errcode.InvalidWebhookPayload, "payload has no entries")
	case len(p.Entry[0].Changes) == 0:
		return errcode.New(errcode.InvalidWebhookPayload, "entry has no changes")
	}
	return nil
}

// Resolve returns the active tenant owning phoneNumberID
func (r *Router) Resolve(ctx context.Context, phoneNumberID string) (*tenant.Tenant, error) {
	if tenantID, ok := r.cache.Get(phoneNumberID); ok {
		t, err := r.directory.GetTenant(ctx, tenantID)
		switch {
		case err == nil && t.IsActive():
			return t, nil
		case err == nil || errors.Is(err, tenant.ErrTenantNotFound):
			r.cache.Delete(phoneNumberID)
			slog.DebugContext(ctx, "evicted stale phone mapping",
				logger.PhoneNumberID(phoneNumberID), logger.TenantID(tenantID))
		default:
			return nil, errcode.Wrap(errcode.RoutingError, "tenant directory unavailable", err)
		}
	}

	t, err := r.scan(ctx, phoneNumberID)
	if err != nil {
		return nil, err
	}
	r.cache.Set(phoneNumberID, t.ID)
	return t, nil
}

// scan walks every active tenant's phone mapping. The most recently
// registered active mapping wins.
func (r *Router) scan(ctx context.Context, phoneNumberID string) (*tenant.Tenant, error) {
	var (
		owner    *tenant.Tenant
		best     *settings.PhoneMapping
		failures int
		lastErr  error
	)
	err := tenant.Walk(ctx, r.directory, r.pageSize, func(t *tenant.Tenant) bool {
		if !t.IsActive() {
			return true
		}
		m, err := r.mappings.PhoneMapping(ctx, t.ID)
		switch {
		case err == nil:
		case errors.Is(err, settings.ErrNotFound):
			return true
		case errors.Is(err, settings.ErrInvalidRecord):
			// a corrupt record is one tenant's problem, not a routing outage
			slog.WarnContext(ctx, "skipping unreadable phone mapping", logger.TenantID(t.ID), logger.Error(err))
			return true
		default:
			failures++
			lastErr = err
			slog.WarnContext(ctx, "failed to read phone mapping", logger.TenantID(t.ID), logger.Error(err))
			return true
		}
		if m.PhoneNumberID != phoneNumberID || !m.IsActive() {
			return true
		}
		if best == nil || m.RegisteredAt.After(best.RegisteredAt) {
			owner, best = t, m
		}
		return true
	})
	if err != nil {
		return nil, errcode.Wrap(errcode.RoutingError, "tenant directory scan failed", err)
	}
	if owner != nil {
		return owner, nil
	}
	if failures > 0 {
		return nil, errcode.Wrap(errcode.RoutingError, "phone mapping lookup failed", lastErr)
	}
	return nil, errcode.New(errcode.TenantNotFound, "no tenant registered for phone number").
		WithDetails(map[string]any{"phone_number_id": phoneNumberID})
}

// ClearCache drops every cached resolution and returns how many there were
func (r *Router) ClearCache() int {
	n := r.cache.Len()
	r.cache.Clear()
	return n
}

// PruneCache drops expired resolutions
func (r *Router) PruneCache() int {
	return r.cache.Prune()
}

// CacheStats reports the cache size and TTL
func (r *Router) CacheStats() CacheStats {
	return CacheStats{Entries: r.cache.Len(), TTL: r.cache.TTL()}
}
