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

package credential

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bookline/whatsgate/internal/audit"
	"github.com/bookline/whatsgate/internal/errcode"
	"github.com/bookline/whatsgate/internal/observability/logger"
	"github.com/bookline/whatsgate/internal/settings"
)

// CredentialStore persists plaintext credentials
type CredentialStore interface {
	Load(ctx context.Context, tenantID string) (*Credentials, error)
	Save(ctx context.Context, tenantID string, creds Credentials) error
	Delete(ctx context.Context, tenantID string) error
}

// HistoryStore reads and clears the validation history
type HistoryStore interface {
	ValidationHistory(ctx context.Context, tenantID string) (*settings.ValidationHistory, error)
	DeleteValidationHistory(ctx context.Context, tenantID string) error
}

// PhoneRegistrar maintains phone-number-id ownership for webhook routing
type PhoneRegistrar interface {
	RegisterPhoneNumberID(ctx context.Context, tenantID, phoneNumberID string) error
	UnregisterPhoneNumberID(ctx context.Context, tenantID, phoneNumberID string) error
}

// Forgetter drops per-tenant state held elsewhere, such as health records
type Forgetter interface {
	Forget(tenantID string)
}

// Service manages the credential lifecycle: rotate, read, delete
type Service struct {
	store       CredentialStore
	validator   *Validator
	history     HistoryStore
	registrar   PhoneRegistrar
	forgetter   Forgetter
	auditLogger audit.Logger
}

// NewService creates a credential service. forgetter may be nil.
func NewService(
	store CredentialStore,
	validator *Validator,
	history HistoryStore,
	registrar PhoneRegistrar,
	forgetter Forgetter,
	auditLogger audit.Logger,
) *Service {
	if auditLogger == nil {
		auditLogger = audit.Discard{}
	}
	return &Service{
		store:       store,
		validator:   validator,
		history:     history,
		registrar:   registrar,
		forgetter:   forgetter,
		auditLogger: auditLogger,
	}
}

// Update merges patch over the stored credentials, validates the result
// and persists it only when valid. A rejected update leaves the stored
// credentials untouched and returns INVALID_CREDENTIALS with the result.
func (s *Service) Update(ctx context.Context, tenantID string, patch Patch) (*ValidationResult, error) {
	current, err := s.store.Load(ctx, tenantID)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotConfigured):
		current = nil
	case errors.Is(err, ErrUnreadable):
		slog.WarnContext(ctx, "replacing unreadable stored credentials", logger.TenantID(tenantID), logger.Error(err))
		current = nil
	default:
		return nil, errcode.Wrap(errcode.StorageError, "failed to load credentials", err)
	}

	candidate := patch.Merge(current)
	res := s.validator.Probe(ctx, tenantID, candidate)
	if !res.Valid {
		s.auditLogger.Log(ctx, audit.Event{
			Type:     audit.TypeCredentialsRejected,
			TenantID: tenantID,
			ActorID:  audit.ActorSystem,
			Resource: candidate.PhoneNumberID,
			Metadata: map[string]any{"errors": res.Errors},
		})
		return &res, errcode.New(errcode.InvalidCredentials, "credentials failed validation").
			WithDetails(map[string]any{"errors": res.Errors, "warnings": res.Warnings})
	}

	if err := s.store.Save(ctx, tenantID, candidate); err != nil {
		code := errcode.StorageError
		if errors.Is(err, ErrEncryption) {
			code = errcode.EncryptionError
		}
		return &res, errcode.Wrap(code, "failed to save credentials", err)
	}

	if current != nil && current.PhoneNumberID != candidate.PhoneNumberID {
		s.validator.Invalidate(tenantID, current.PhoneNumberID)
		if err := s.registrar.UnregisterPhoneNumberID(ctx, tenantID, current.PhoneNumberID); err != nil {
			slog.WarnContext(ctx, "failed to unregister previous phone number",
				logger.TenantID(tenantID), logger.PhoneNumberID(current.PhoneNumberID), logger.Error(err))
		}
	}
	s.validator.Invalidate(tenantID, candidate.PhoneNumberID)
	s.validator.Seed(tenantID, res)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCredentialsUpdated,
		TenantID: tenantID,
		ActorID:  audit.ActorSystem,
		Resource: candidate.PhoneNumberID,
		Metadata: map[string]any{"rotated": current != nil, "warnings": len(res.Warnings)},
	})

	if err := s.registrar.RegisterPhoneNumberID(ctx, tenantID, candidate.PhoneNumberID); err != nil {
		return &res, errcode.Wrap(errcode.RegistrationError, "credentials saved but phone number registration failed", err)
	}
	return &res, nil
}

// Delete removes the tenant's credentials, cached results, phone mapping
// and validation history.
func (s *Service) Delete(ctx context.Context, tenantID string) error {
	current, err := s.Get(ctx, tenantID)
	if err != nil && !errcode.Is(err, errcode.EncryptionError) {
		return err
	}

	if err := s.store.Delete(ctx, tenantID); err != nil {
		return errcode.Wrap(errcode.StorageError, "failed to delete credentials", err)
	}
	s.validator.InvalidateTenant(tenantID)

	if current != nil && current.PhoneNumberID != "" {
		if err := s.registrar.UnregisterPhoneNumberID(ctx, tenantID, current.PhoneNumberID); err != nil {
			slog.WarnContext(ctx, "failed to unregister phone number",
				logger.TenantID(tenantID), logger.PhoneNumberID(current.PhoneNumberID), logger.Error(err))
		}
	}
	if err := s.history.DeleteValidationHistory(ctx, tenantID); err != nil {
		slog.WarnContext(ctx, "failed to delete validation history", logger.TenantID(tenantID), logger.Error(err))
	}
	if s.forgetter != nil {
		s.forgetter.Forget(tenantID)
	}

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCredentialsDeleted,
		TenantID: tenantID,
		ActorID:  audit.ActorSystem,
	})
	return nil
}

// Get returns the tenant's decrypted credentials
func (s *Service) Get(ctx context.Context, tenantID string) (*Credentials, error) {
	creds, err := s.store.Load(ctx, tenantID)
	switch {
	case err == nil:
		return creds, nil
	case errors.Is(err, ErrNotConfigured):
		return nil, errcode.Wrap(errcode.CredentialsNotFound, MsgNotConfigured, err)
	case errors.Is(err, ErrUnreadable):
		return nil, errcode.Wrap(errcode.EncryptionError, "stored credentials could not be decrypted", err)
	default:
		return nil, errcode.Wrap(errcode.StorageError, "failed to load credentials", err)
	}
}

// GetMasked returns the tenant's credentials with secrets masked
func (s *Service) GetMasked(ctx context.Context, tenantID string) (*Credentials, error) {
	creds, err := s.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	masked := creds.Masked()
	return &masked, nil
}

// Validate returns the (possibly cached) validation of stored credentials
func (s *Service) Validate(ctx context.Context, tenantID string) ValidationResult {
	return s.validator.Validate(ctx, tenantID, nil)
}

// History returns the tenant's validation log, oldest first
func (s *Service) History(ctx context.Context, tenantID string) ([]settings.HistoryEntry, error) {
	h, err := s.history.ValidationHistory(ctx, tenantID)
	if err != nil {
		return nil, errcode.Wrap(errcode.StorageError, "failed to load validation history", err)
	}
	return h.Entries, nil
}
