package routing

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/bookline/whatsgate/internal/audit"
	"github.com/bookline/whatsgate/internal/errcode"
	"github.com/bookline/whatsgate/internal/observability/logger"
	"github.com/bookline/whatsgate/internal/settings"
	"github.com/bookline/whatsgate/internal/tenant"
)

// RegisterPhoneNumberID makes tenantID the owner of phoneNumberID. An
// existing owner is replaced (last write wins) and its mapping deactivated.
// The cache is updated before returning so the next webhook resolves to
// the new owner.
func (r *Router) RegisterPhoneNumberID(ctx context.Context, tenantID, phoneNumberID string) error {
	phoneNumberID = strings.TrimSpace(phoneNumberID)
	if phoneNumberID == "" {
		return errcode.New(errcode.RegistrationError, "phone number id is required")
	}

	t, err := r.directory.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return errcode.Wrap(errcode.TenantNotFound, "tenant does not exist", err)
		}
		return errcode.Wrap(errcode.RegistrationError, "tenant directory unavailable", err)
	}
	if !t.IsActive() {
		slog.WarnContext(ctx, "registering phone number for inactive tenant",
			logger.TenantID(tenantID), logger.Status(t.Status))
	}

	meta := map[string]any{"phone_number_id": phoneNumberID}
	prev, err := r.Resolve(ctx, phoneNumberID)
	switch {
	case err == nil && prev.ID != tenantID:
		slog.WarnContext(ctx, "phone number ownership overwritten",
			logger.PhoneNumberID(phoneNumberID),
			logger.TenantID(tenantID),
			logger.String("previous_tenant_id", prev.ID))
		meta["previous_tenant_id"] = prev.ID
		r.deactivate(ctx, prev.ID, phoneNumberID)
	case err != nil && !errcode.Is(err, errcode.TenantNotFound):
		slog.WarnContext(ctx, "could not determine previous phone number owner",
			logger.PhoneNumberID(phoneNumberID), logger.Error(err))
	}

	rec := &settings.PhoneMapping{
		TenantID:      tenantID,
		PhoneNumberID: phoneNumberID,
		RegisteredAt:  r.now().UTC(),
		Status:        settings.MappingActive,
	}
	if err := r.mappings.SavePhoneMapping(ctx, tenantID, rec); err != nil {
		return errcode.Wrap(errcode.RegistrationError, "failed to save phone mapping", err)
	}
	// the tenant holds one mapping, so any other id cached for it is stale
	r.cache.DeleteFunc(func(phone, owner string) bool {
		return owner == tenantID && phone != phoneNumberID
	})
	r.cache.Set(phoneNumberID, tenantID)

	r.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePhoneNumberRegistered,
		TenantID: tenantID,
		ActorID:  audit.ActorSystem,
		Resource: phoneNumberID,
		Metadata: meta,
	})
	return nil
}

// UnregisterPhoneNumberID deactivates tenantID's mapping for phoneNumberID.
// It is a no-op when the tenant does not hold that mapping.
func (r *Router) UnregisterPhoneNumberID(ctx context.Context, tenantID, phoneNumberID string) error {
	m, err := r.mappings.PhoneMapping(ctx, tenantID)
	if err != nil {
		if errors.Is(err, settings.ErrNotFound) {
			return nil
		}
		return errcode.Wrap(errcode.RegistrationError, "failed to read phone mapping", err)
	}
	if m.PhoneNumberID != phoneNumberID {
		return nil
	}

	if m.IsActive() {
		m.Status = settings.MappingInactive
		if err := r.mappings.SavePhoneMapping(ctx, tenantID, m); err != nil {
			return errcode.Wrap(errcode.RegistrationError, "failed to save phone mapping", err)
		}
	}
	if cached, ok := r.cache.Get(phoneNumberID); ok && cached == tenantID {
		r.cache.Delete(phoneNumberID)
	}

	r.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypePhoneNumberUnregistered,
		TenantID: tenantID,
		ActorID:  audit.ActorSystem,
		Resource: phoneNumberID,
	})
	return nil
}

func (r *Router) deactivate(ctx context.Context, tenantID, phoneNumberID string) {
	m, err := r.mappings.PhoneMapping(ctx, tenantID)
	if err != nil || m.PhoneNumberID != phoneNumberID || !m.IsActive() {
		return
	}
	m.Status = settings.MappingInactive
	if err := r.mappings.SavePhoneMapping(ctx, tenantID, m); err != nil {
		slog.WarnContext(ctx, "failed to deactivate previous phone mapping",
			logger.TenantID(tenantID), logger.PhoneNumberID(phoneNumberID), logger.Error(err))
	}
}
