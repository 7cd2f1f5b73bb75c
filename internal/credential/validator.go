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
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/bookline/whatsgate/internal/cache"
	"github.com/bookline/whatsgate/internal/errcode"
	"github.com/bookline/whatsgate/internal/id"
	"github.com/bookline/whatsgate/internal/observability/logger"
	"github.com/bookline/whatsgate/internal/observability/metrics"
	"github.com/bookline/whatsgate/internal/settings"
	"github.com/bookline/whatsgate/internal/whatsapp"
)

const (
	DefaultCacheTTL     = 15 * time.Minute
	DefaultProbeTimeout = 10 * time.Second
)

// Source loads a tenant's stored credentials
type Source interface {
	Load(ctx context.Context, tenantID string) (*Credentials, error)
}

// ProviderAPI is the subset of the Graph API the probes call
type ProviderAPI interface {
	PhoneNumber(ctx context.Context, token, phoneNumberID string) (*whatsapp.PhoneNumber, error)
	BusinessAccount(ctx context.Context, token, businessAccountID string) (*whatsapp.BusinessAccount, error)
	MessageTemplates(ctx context.Context, token, businessAccountID string, limit int) ([]whatsapp.MessageTemplate, error)
	DebugToken(ctx context.Context, accessToken, inputToken string) (*whatsapp.TokenInfo, error)
}

// HistoryRecorder keeps the validation audit log
type HistoryRecorder interface {
	AppendValidationHistory(ctx context.Context, tenantID string, entry settings.HistoryEntry) error
}

// ValidatorConfig configures a Validator
type ValidatorConfig struct {
	CacheTTL     time.Duration
	ProbeTimeout time.Duration
	Now          func() time.Time
}

type cacheKey struct {
	tenantID      string
	phoneNumberID string
}

// Validator checks credentials against the provider. Results for stored
// credentials are cached per (tenant, phone-number-id); concurrent misses
// for the same key are not coalesced.
type Validator struct {
	source       Source
	api          ProviderAPI
	history      HistoryRecorder
	cache        *cache.TTL[cacheKey, ValidationResult]
	probeTimeout time.Duration
	now          func() time.Time
	metrics      *metrics.Instruments
	tracer       trace.Tracer
}

// NewValidator creates a validator. history and instruments may be nil.
func NewValidator(source Source, api ProviderAPI, history HistoryRecorder, cfg ValidatorConfig, instruments *metrics.Instruments) *Validator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if instruments == nil {
		instruments = metrics.NoopInstruments()
	}
	return &Validator{
		source:       source,
		api:          api,
		history:      history,
		cache:        cache.New[cacheKey, ValidationResult](cfg.CacheTTL, cache.WithClock(cfg.Now)),
		probeTimeout: cfg.ProbeTimeout,
		now:          cfg.Now,
		metrics:      instruments,
		tracer:       otel.Tracer("github.com/bookline/whatsgate/internal/credential"),
	}
}

// Validate checks a tenant's credentials. With creds nil the stored
// credentials are used and the result is served from cache when fresh;
// explicit creds are candidates and always probed. It never fails: every
// outcome, including infrastructure faults, is a ValidationResult.
func (v *Validator) Validate(ctx context.Context, tenantID string, creds *Credentials) ValidationResult {
	if creds != nil {
		return v.Probe(ctx, tenantID, *creds)
	}

	stored, res, ok := v.load(ctx, tenantID)
	if !ok {
		return res
	}

	key := cacheKey{tenantID, stored.PhoneNumberID}
	if cached, hit := v.cache.Get(key); hit {
		v.count(ctx, cached, true)
		return cached.clone()
	}

	res = v.Probe(ctx, tenantID, *stored)
	v.cache.Set(key, res.clone())
	return res
}

// Refresh re-probes the stored credentials and replaces the cached result
func (v *Validator) Refresh(ctx context.Context, tenantID string) ValidationResult {
	stored, res, ok := v.load(ctx, tenantID)
	if !ok {
		return res
	}
	res = v.Probe(ctx, tenantID, *stored)
	v.cache.Set(cacheKey{tenantID, stored.PhoneNumberID}, res.clone())
	return res
}

// Probe runs every probe against creds without consulting the cache and
// appends the outcome to the validation history.
func (v *Validator) Probe(ctx context.Context, tenantID string, creds Credentials) ValidationResult {
	ctx, span := v.tracer.Start(ctx, "credential.Validate",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	res := v.runProbes(ctx, creds)
	if !res.Valid {
		span.SetStatus(codes.Error, "credentials invalid")
	}
	v.count(ctx, res, false)
	v.record(ctx, tenantID, res)
	return res
}

// Invalidate drops the cached result for one key
func (v *Validator) Invalidate(tenantID, phoneNumberID string) {
	v.cache.Delete(cacheKey{tenantID, phoneNumberID})
}

// InvalidateTenant drops every cached result of a tenant
func (v *Validator) InvalidateTenant(tenantID string) int {
	return v.cache.DeleteFunc(func(k cacheKey, _ ValidationResult) bool {
		return k.tenantID == tenantID
	})
}

// Seed stores res as the fresh result for its key
func (v *Validator) Seed(tenantID string, res ValidationResult) {
	if res.PhoneNumberID == "" {
		return
	}
	v.cache.Set(cacheKey{tenantID, res.PhoneNumberID}, res.clone())
}

// CacheLen returns the number of cached results
func (v *Validator) CacheLen() int {
	return v.cache.Len()
}

// PruneCache drops expired results
func (v *Validator) PruneCache() int {
	return v.cache.Prune()
}

func (v *Validator) load(ctx context.Context, tenantID string) (*Credentials, ValidationResult, bool) {
	creds, err := v.source.Load(ctx, tenantID)
	if err == nil {
		return creds, ValidationResult{}, true
	}

	res := ValidationResult{LastValidated: v.now().UTC()}
	switch {
	case errors.Is(err, ErrNotConfigured):
		res.addError(ProbeConfig, errcode.CredentialsNotFound, MsgNotConfigured)
		res.Code = errcode.CredentialsNotFound
	case errors.Is(err, ErrUnreadable):
		slog.ErrorContext(ctx, "stored credentials unreadable", logger.TenantID(tenantID), logger.Error(err))
		res.addError(ProbeConfig, errcode.EncryptionError, "Stored credentials could not be decrypted")
		res.Code = errcode.EncryptionError
	default:
		slog.ErrorContext(ctx, "failed to load credentials", logger.TenantID(tenantID), logger.Error(err))
		res.addError(ProbeConfig, errcode.ValidationError, "Credential validation unavailable: settings store error")
		res.Code = errcode.ValidationError
	}
	return nil, res, false
}

func (v *Validator) runProbes(ctx context.Context, creds Credentials) ValidationResult {
	res := ValidationResult{
		PhoneNumberID: creds.PhoneNumberID,
		LastValidated: v.now().UTC(),
	}
	if missing := creds.Missing(); len(missing) > 0 {
		for _, f := range missing {
			res.addError(ProbeConfig, IssueMissingField, f+" is required")
		}
		res.Code = errcode.InvalidCredentials
		return res
	}

	// Each probe fills its own partial result; they are merged in a fixed
	// order so output does not depend on scheduling.
	var parts [4]ValidationResult
	var g errgroup.Group
	g.Go(func() error { parts[0] = v.identityProbe(ctx, creds); return nil })
	g.Go(func() error { parts[1] = v.businessProbe(ctx, creds); return nil })
	g.Go(func() error { parts[2] = v.permissionProbe(ctx, creds); return nil })
	g.Go(func() error { parts[3] = v.expiryProbe(ctx, creds); return nil })
	_ = g.Wait()

	for _, p := range parts {
		merge(&res, p)
	}
	res.Valid = len(res.Errors) == 0
	return res
}

func (v *Validator) identityProbe(ctx context.Context, creds Credentials) (out ValidationResult) {
	var pn *whatsapp.PhoneNumber
	err := v.call(ctx, ProbeIdentity, func(ctx context.Context) (err error) {
		pn, err = v.api.PhoneNumber(ctx, creds.AccessToken, creds.PhoneNumberID)
		return err
	})
	if err != nil {
		code := IssueIdentityCheckFailed
		var apiErr *whatsapp.APIError
		if errors.As(err, &apiErr) && apiErr.IsAuth() {
			code = IssueTokenInvalid
		}
		out.addError(ProbeIdentity, code, "Phone number lookup failed: "+describe(err))
		return out
	}

	out.PhoneNumber = pn.DisplayPhoneNumber
	out.VerifiedName = pn.VerifiedName
	out.QualityRating = pn.QualityRating
	out.Status = pn.NameStatus
	if out.Status == "" {
		out.Status = pn.CodeVerificationStatus
	}
	if strings.EqualFold(pn.QualityRating, "RED") {
		out.addWarning(ProbeIdentity, IssueLowQualityRating, "Phone number quality rating is RED")
	}
	return out
}

func (v *Validator) businessProbe(ctx context.Context, creds Credentials) (out ValidationResult) {
	if creds.BusinessAccountID == "" {
		return out
	}
	var ba *whatsapp.BusinessAccount
	err := v.call(ctx, ProbeBusiness, func(ctx context.Context) (err error) {
		ba, err = v.api.BusinessAccount(ctx, creds.AccessToken, creds.BusinessAccountID)
		return err
	})
	if err != nil {
		out.addWarning(ProbeBusiness, IssueBusinessAccountUnavailable, "Business account lookup failed: "+describe(err))
		return out
	}
	out.BusinessName = ba.Name
	return out
}

func (v *Validator) permissionProbe(ctx context.Context, creds Credentials) (out ValidationResult) {
	if creds.BusinessAccountID == "" {
		return out
	}
	err := v.call(ctx, ProbePermission, func(ctx context.Context) error {
		_, err := v.api.MessageTemplates(ctx, creds.AccessToken, creds.BusinessAccountID, 1)
		return err
	})
	if err != nil {
		out.addWarning(ProbePermission, IssueTemplatePermissionMissing, "Template listing failed: "+describe(err))
	}
	return out
}

func (v *Validator) expiryProbe(ctx context.Context, creds Credentials) (out ValidationResult) {
	if creds.SystemUserToken == "" {
		return out
	}
	authToken := creds.SystemUserToken
	if creds.AppID != "" && creds.AppSecret != "" {
		authToken = creds.AppID + "|" + creds.AppSecret
	}

	var info *whatsapp.TokenInfo
	err := v.call(ctx, ProbeExpiry, func(ctx context.Context) (err error) {
		info, err = v.api.DebugToken(ctx, authToken, creds.SystemUserToken)
		return err
	})
	if err != nil {
		out.addWarning(ProbeExpiry, IssueTokenIntrospectionFailed, "Token introspection failed: "+describe(err))
		return out
	}

	out.Permissions = append([]string(nil), info.Scopes...)
	expired := false
	if at, ok := info.Expiry(); ok {
		days := daysUntil(v.now(), at)
		out.ExpiresAt = &at
		out.DaysUntilExpiry = &days
		switch {
		case days <= 0:
			expired = true
			out.addError(ProbeExpiry, IssueTokenExpired, "System user token has expired")
		case days <= ExpiryWarningDays:
			out.addWarning(ProbeExpiry, IssueTokenExpiring, fmt.Sprintf("System user token expires in %d days", days))
		}
	}
	if !info.IsValid && !expired {
		out.addError(ProbeExpiry, IssueTokenInvalid, "System user token is not valid")
	}
	return out
}

// call runs one provider call under the probe timeout
func (v *Validator) call(ctx context.Context, probe string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, v.probeTimeout)
	defer cancel()
	ctx, span := v.tracer.Start(ctx, "credential.probe."+probe)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	v.metrics.ProbeDuration.Record(ctx, elapsed, metric.WithAttributes(
		attribute.String("probe", probe),
		attribute.Bool("ok", err == nil),
	))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, probe+" probe failed")
		slog.DebugContext(ctx, "provider probe failed",
			logger.Probe(probe),
			logger.Duration(int64(elapsed)),
			logger.Error(err))
	}
	return err
}

func (v *Validator) count(ctx context.Context, res ValidationResult, cached bool) {
	v.metrics.Validations.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("valid", res.Valid),
		attribute.Bool("cached", cached),
	))
}

func (v *Validator) record(ctx context.Context, tenantID string, res ValidationResult) {
	if v.history == nil {
		return
	}
	entry := settings.HistoryEntry{
		ID:            id.NewUUIDv7(),
		PhoneNumberID: res.PhoneNumberID,
		Valid:         res.Valid,
		Code:          res.Code,
		Errors:        res.Errors,
		Warnings:      res.Warnings,
		ValidatedAt:   res.LastValidated,
	}
	if err := v.history.AppendValidationHistory(ctx, tenantID, entry); err != nil {
		slog.WarnContext(ctx, "failed to append validation history", logger.TenantID(tenantID), logger.Error(err))
	}
}

func merge(dst *ValidationResult, src ValidationResult) {
	if src.PhoneNumber != "" {
		dst.PhoneNumber = src.PhoneNumber
	}
	if src.VerifiedName != "" {
		dst.VerifiedName = src.VerifiedName
	}
	if src.BusinessName != "" {
		dst.BusinessName = src.BusinessName
	}
	if src.Status != "" {
		dst.Status = src.Status
	}
	if src.QualityRating != "" {
		dst.QualityRating = src.QualityRating
	}
	if src.ExpiresAt != nil {
		dst.ExpiresAt = src.ExpiresAt
		dst.DaysUntilExpiry = src.DaysUntilExpiry
	}
	dst.Permissions = append(dst.Permissions, src.Permissions...)
	dst.Errors = append(dst.Errors, src.Errors...)
	dst.Warnings = append(dst.Warnings, src.Warnings...)
	dst.Issues = append(dst.Issues, src.Issues...)
}

// daysUntil rounds up, so a token expiring in one hour has 1 day left and
// one that expired an hour ago has 0.
func daysUntil(now, at time.Time) int {
	return int(math.Ceil(at.Sub(now).Hours() / 24))
}

// describe renders an upstream failure without request URLs, which can
// carry tokens in their query string.
func describe(err error) string {
	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fmt.Sprintf("HTTP %d", apiErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}
	return err.Error()
}
