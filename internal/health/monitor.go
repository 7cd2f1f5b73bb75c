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

package health

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/bookline/whatsgate/internal/audit"
	"github.com/bookline/whatsgate/internal/credential"
	"github.com/bookline/whatsgate/internal/errcode"
	"github.com/bookline/whatsgate/internal/id"
	"github.com/bookline/whatsgate/internal/notify"
	"github.com/bookline/whatsgate/internal/observability/logger"
	"github.com/bookline/whatsgate/internal/observability/metrics"
	"github.com/bookline/whatsgate/internal/observability/tracing"
	"github.com/bookline/whatsgate/internal/settings"
	"github.com/bookline/whatsgate/internal/tenant"
)

const (
	DefaultInterval    = 5 * time.Minute
	DefaultConcurrency = 4
)

// Validator re-runs credential validation for a tenant
type Validator interface {
	Refresh(ctx context.Context, tenantID string) credential.ValidationResult
}

// PreferenceStore reads tenants' alert preferences
type PreferenceStore interface {
	NotificationPreferences(ctx context.Context, tenantID string) (*settings.NotificationPreferences, error)
}

// Notifier delivers a notification to the tenant's sinks
type Notifier interface {
	Notify(ctx context.Context, prefs settings.NotificationPreferences, n notify.Notification) notify.Report
}

// Config configures a Monitor
type Config struct {
	Interval    time.Duration
	TickTimeout time.Duration
	Concurrency int
	PageSize    int
	Now         func() time.Time

	// AfterTick runs at the end of every scheduled tick
	AfterTick func(ctx context.Context)
}

type key struct {
	tenantID      string
	phoneNumberID string
}

type record struct {
	mu     sync.Mutex
	health CredentialHealth
}

// Monitor periodically re-validates every active tenant's credentials and
// keeps one health record per (tenant, phone-number-id).
type Monitor struct {
	directory   tenant.Directory
	validator   Validator
	prefs       PreferenceStore
	notifier    Notifier
	auditLogger audit.Logger
	metrics     *metrics.Instruments
	cfg         Config

	records sync.Map // key -> *record
	phones  sync.Map // tenant ID -> phone-number-id

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewMonitor creates a monitor. notifier, auditLogger and instruments may be nil.
func NewMonitor(
	directory tenant.Directory,
	validator Validator,
	prefs PreferenceStore,
	notifier Notifier,
	cfg Config,
	auditLogger audit.Logger,
	instruments *metrics.Instruments,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = cfg.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
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
	if instruments == nil {
		instruments = metrics.NoopInstruments()
	}
	return &Monitor{
		directory:   directory,
		validator:   validator,
		prefs:       prefs,
		notifier:    notifier,
		auditLogger: auditLogger,
		metrics:     instruments,
		cfg:         cfg,
		stopCh:      make(chan struct{}),
	}
}

// Start runs a check cycle immediately and then on every interval until
// Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		ctx, cancel := context.WithCancel(ctx)
		go func() {
			defer m.wg.Done()
			defer cancel()
			ticker := time.NewTicker(m.cfg.Interval)
			defer ticker.Stop()

			// Stop aborts an in-flight cycle rather than waiting it out
			go func() {
				select {
				case <-m.stopCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			slog.Info("health monitor started", slog.Duration("interval", m.cfg.Interval))
			m.tick(ctx)

			for {
				select {
				case <-ticker.C:
					m.tick(ctx)
				case <-m.stopCh:
					slog.Info("health monitor stopped")
					return
				case <-ctx.Done():
					slog.Info("health monitor stopped", logger.Error(ctx.Err()))
					return
				}
			}
		}()
	})
}

// Stop halts the scheduler, cancels an in-flight cycle and waits for it
// to unwind.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

func (m *Monitor) tick(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, m.cfg.TickTimeout)
	defer cancel()
	ctx, span := tracing.Start(ctx, "health.cycle")

	start := time.Now()
	checked, err := m.RunOnce(ctx)
	span.SetAttributes(attribute.Int("checked", checked))
	tracing.End(span, err)
	if err != nil {
		slog.ErrorContext(ctx, "health check cycle failed", logger.Error(err))
	} else {
		slog.DebugContext(ctx, "health check cycle finished",
			slog.Int("checked", checked), logger.Duration(time.Since(start).Milliseconds()))
	}
	if m.cfg.AfterTick != nil {
		m.cfg.AfterTick(ctx)
	}
}

// RunOnce checks every active tenant whose next check is due and returns
// how many were checked.
func (m *Monitor) RunOnce(ctx context.Context) (int, error) {
	var (
		g       errgroup.Group
		checked atomic.Int64
	)
	g.SetLimit(m.cfg.Concurrency)
	now := m.cfg.Now()

	err := tenant.Walk(ctx, m.directory, m.cfg.PageSize, func(t *tenant.Tenant) bool {
		if !t.IsActive() || !m.due(t.ID, now) {
			return true
		}
		tenantID := t.ID
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if _, _, ok := m.check(ctx, tenantID); ok {
				checked.Add(1)
			}
			return nil
		})
		return ctx.Err() == nil
	})
	_ = g.Wait()
	return int(checked.Load()), err
}

// CheckNow validates one tenant immediately regardless of its schedule
func (m *Monitor) CheckNow(ctx context.Context, tenantID string) (CredentialHealth, error) {
	t, err := m.directory.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return CredentialHealth{}, errcode.Wrap(errcode.TenantNotFound, "tenant does not exist", err)
		}
		return CredentialHealth{}, errcode.Wrap(errcode.ValidationError, "tenant directory unavailable", err)
	}
	if !t.IsActive() {
		return CredentialHealth{}, errcode.New(errcode.TenantNotFound, "tenant is not active")
	}

	h, res, ok := m.check(ctx, tenantID)
	if !ok {
		return CredentialHealth{}, errcode.New(res.Code, firstError(res))
	}
	return h, nil
}

func (m *Monitor) due(tenantID string, now time.Time) bool {
	phone, ok := m.phones.Load(tenantID)
	if !ok {
		return true
	}
	v, ok := m.records.Load(key{tenantID, phone.(string)})
	if !ok {
		return true
	}
	rec := v.(*record)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return !now.Before(rec.health.NextCheck)
}

// check validates one tenant and updates its record. ok is false when no
// record could be produced (credentials absent or the store unreachable).
func (m *Monitor) check(ctx context.Context, tenantID string) (CredentialHealth, credential.ValidationResult, bool) {
	start := time.Now()
	res := m.validator.Refresh(ctx, tenantID)
	elapsed := time.Since(start)
	now := m.cfg.Now().UTC()
	if err := ctx.Err(); err != nil {
		// probes cut short by cancellation say nothing about the credentials
		return CredentialHealth{}, credential.ValidationResult{Code: errcode.ValidationError, Errors: []string{err.Error()}}, false
	}

	switch res.Code {
	case errcode.CredentialsNotFound:
		m.Forget(tenantID)
		return CredentialHealth{}, res, false
	case errcode.ValidationError:
		slog.WarnContext(ctx, "health check skipped, validation unavailable", logger.TenantID(tenantID))
		m.postpone(tenantID, now)
		return CredentialHealth{}, res, false
	}

	k := key{tenantID, res.PhoneNumberID}
	if prev, ok := m.phones.Swap(tenantID, res.PhoneNumberID); ok && prev.(string) != res.PhoneNumberID {
		if _, loaded := m.records.LoadAndDelete(key{tenantID, prev.(string)}); loaded {
			m.metrics.TrackedCredentials.Add(ctx, -1)
		}
	}
	v, loaded := m.records.LoadOrStore(k, &record{health: CredentialHealth{
		TenantID:      tenantID,
		PhoneNumberID: res.PhoneNumberID,
		Status:        StatusUnknown,
	}})
	if !loaded {
		m.metrics.TrackedCredentials.Add(ctx, 1)
	}
	rec := v.(*record)

	status := Classify(res)

	rec.mu.Lock()
	prevStatus := rec.health.Status
	prevExpiring := hasIssue(rec.health.Issues, credential.IssueTokenExpiring)

	h := &rec.health
	h.Status = status
	h.Issues = issuesFor(status, res)
	h.LastCheck = now
	h.NextCheck = now.Add(m.cfg.Interval)
	h.DaysUntilExpiry = res.DaysUntilExpiry
	h.ExpiresAt = res.ExpiresAt
	h.Metrics.ResponseTimeMs = elapsed.Milliseconds()
	h.Metrics.TotalCalls++
	if res.Valid {
		h.Metrics.SuccessRate = 100
		h.Metrics.LastSuccessfulCall = &now
	} else {
		h.Metrics.SuccessRate = 0
		h.Metrics.FailedCalls++
	}
	snapshot := h.clone()
	rec.mu.Unlock()

	if prevStatus != status {
		m.transitioned(ctx, snapshot, prevStatus)
	}
	kinds := notificationKinds(prevStatus, status, prevExpiring, hasIssue(snapshot.Issues, credential.IssueTokenExpiring))
	if len(kinds) > 0 {
		m.dispatch(ctx, snapshot, prevStatus, kinds)
	}
	return snapshot, res, true
}

func (m *Monitor) postpone(tenantID string, now time.Time) {
	phone, ok := m.phones.Load(tenantID)
	if !ok {
		return
	}
	if v, ok := m.records.Load(key{tenantID, phone.(string)}); ok {
		rec := v.(*record)
		rec.mu.Lock()
		rec.health.NextCheck = now.Add(m.cfg.Interval)
		rec.mu.Unlock()
	}
}

func (m *Monitor) transitioned(ctx context.Context, h CredentialHealth, prev Status) {
	slog.InfoContext(ctx, "credential health changed",
		logger.TenantID(h.TenantID),
		logger.PhoneNumberID(h.PhoneNumberID),
		logger.PreviousStatus(string(prev)),
		logger.Status(string(h.Status)))

	m.metrics.HealthTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(prev)),
		attribute.String("to", string(h.Status)),
	))
	m.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeHealthStatusChanged,
		TenantID: h.TenantID,
		ActorID:  audit.ActorMonitor,
		Resource: h.PhoneNumberID,
		Metadata: map[string]any{"from": string(prev), "to": string(h.Status), "issues": len(h.Issues)},
	})
}

// notificationKinds lists the alert reasons of a check, most severe first
func notificationKinds(prev, cur Status, prevExpiring, curExpiring bool) []notify.Kind {
	var kinds []notify.Kind
	if cur != prev {
		switch cur {
		case StatusExpired:
			kinds = append(kinds, notify.KindExpired)
		case StatusError, StatusInvalid:
			kinds = append(kinds, notify.KindError)
		case StatusWarning:
			kinds = append(kinds, notify.KindWarning)
		}
	}
	if curExpiring && !prevExpiring {
		kinds = append(kinds, notify.KindExpiring)
	}
	return kinds
}

// dispatch sends at most one notification: the most severe kind the
// tenant opted in to.
func (m *Monitor) dispatch(ctx context.Context, h CredentialHealth, prev Status, kinds []notify.Kind) {
	if m.notifier == nil || m.prefs == nil {
		return
	}
	prefs, err := m.prefs.NotificationPreferences(ctx, h.TenantID)
	if err != nil {
		if !errors.Is(err, settings.ErrNotFound) {
			slog.WarnContext(ctx, "failed to load notification preferences", logger.TenantID(h.TenantID), logger.Error(err))
		}
		return
	}

	for _, kind := range kinds {
		if !notify.Wants(*prefs, kind) {
			continue
		}
		report := m.notifier.Notify(ctx, *prefs, notify.Notification{
			ID:             id.NewUUIDv7(),
			TenantID:       h.TenantID,
			PhoneNumberID:  h.PhoneNumberID,
			Kind:           kind,
			Status:         string(h.Status),
			PreviousStatus: string(prev),
			Issues:         h.Issues,
			OccurredAt:     h.LastCheck,
		})
		slog.DebugContext(ctx, "health notification dispatched",
			logger.TenantID(h.TenantID),
			slog.String("kind", string(kind)),
			slog.Int("attempted", report.Attempted()),
			slog.Int("failed", report.Failed()))
		return
	}
}

// Health returns the record for one (tenant, phone) pair
func (m *Monitor) Health(tenantID, phoneNumberID string) (CredentialHealth, bool) {
	v, ok := m.records.Load(key{tenantID, phoneNumberID})
	if !ok {
		return CredentialHealth{}, false
	}
	rec := v.(*record)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.health.clone(), true
}

// TenantHealth returns the record for the tenant's current phone number
func (m *Monitor) TenantHealth(tenantID string) (CredentialHealth, bool) {
	phone, ok := m.phones.Load(tenantID)
	if !ok {
		return CredentialHealth{}, false
	}
	return m.Health(tenantID, phone.(string))
}

// AllHealth returns every record ordered by tenant and phone-number-id
func (m *Monitor) AllHealth() []CredentialHealth {
	var out []CredentialHealth
	m.records.Range(func(_, v any) bool {
		rec := v.(*record)
		rec.mu.Lock()
		out = append(out, rec.health.clone())
		rec.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].TenantID != out[j].TenantID {
			return out[i].TenantID < out[j].TenantID
		}
		return out[i].PhoneNumberID < out[j].PhoneNumberID
	})
	return out
}

// Summary counts records by status
func (m *Monitor) Summary() Summary {
	s := Summary{ByStatus: map[Status]int{}}
	for _, h := range m.AllHealth() {
		s.Total++
		s.ByStatus[h.Status]++
	}
	return s
}

// Forget drops every record of a tenant
func (m *Monitor) Forget(tenantID string) {
	m.phones.Delete(tenantID)
	m.records.Range(func(k, _ any) bool {
		if k.(key).tenantID == tenantID {
			if _, loaded := m.records.LoadAndDelete(k); loaded {
				m.metrics.TrackedCredentials.Add(context.Background(), -1)
			}
		}
		return true
	})
}

func hasIssue(issues []Issue, code string) bool {
	for _, is := range issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

func firstError(res credential.ValidationResult) string {
	if len(res.Errors) > 0 {
		return res.Errors[0]
	}
	return "health check could not run"
}
