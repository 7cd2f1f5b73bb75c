package routing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bookline/whatsgate/internal/credential"
	"github.com/bookline/whatsgate/internal/errcode"
	"github.com/bookline/whatsgate/internal/secrets"
	"github.com/bookline/whatsgate/internal/settings"
	"github.com/bookline/whatsgate/internal/tenant"
	"github.com/bookline/whatsgate/internal/whatsapp"
)

type countingMappings struct {
	MappingStore
	reads atomic.Int64
}

func (c *countingMappings) PhoneMapping(ctx context.Context, tenantID string) (*settings.PhoneMapping, error) {
	c.reads.Add(1)
	return c.MappingStore.PhoneMapping(ctx, tenantID)
}

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tenant.Tenant), args.Error(1)
}

func (m *mockDirectory) ListTenants(ctx context.Context, page, limit int) ([]*tenant.Tenant, error) {
	args := m.Called(ctx, page, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*tenant.Tenant), args.Error(1)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	dir      *tenant.MemoryDirectory
	repo     *settings.Repository
	mappings *countingMappings
	creds    *credential.Store
	clock    *clock
	router   *Router
}

func newFixture(t *testing.T, tenants ...*tenant.Tenant) *fixture {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	codec, err := secrets.NewCodec(key)
	require.NoError(t, err)

	f := &fixture{
		dir:   tenant.NewMemoryDirectory(tenants...),
		repo:  settings.NewRepository(settings.NewMemoryStore()),
		clock: &clock{now: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)},
	}
	f.mappings = &countingMappings{MappingStore: f.repo}
	f.creds = credential.NewStore(f.repo, codec)
	f.router = NewRouter(f.dir, f.mappings, f.creds, Config{Now: f.clock.Now}, nil)
	return f
}

func active(id string) *tenant.Tenant {
	return &tenant.Tenant{ID: id, Status: tenant.StatusActive}
}

func payloadFor(phoneNumberID string) *whatsapp.Payload {
	return &whatsapp.Payload{
		Object: whatsapp.ObjectWhatsAppBusinessAccount,
		Entry: []whatsapp.Entry{{
			ID: "waba-1",
			Changes: []whatsapp.Change{{
				Field: "messages",
				Value: whatsapp.Value{Metadata: &whatsapp.Metadata{PhoneNumberID: phoneNumberID}},
			}},
		}},
	}
}

// TestPurpose: Validates that a webhook for a registered, active phone-number-id resolves to its owner.
// Scope: Unit Test
// Security: Multi-tenant boundary enforcement on inbound traffic
// Expected: Route carries tenant-1 and the exact phone-number-id.
// Test Case ID: RTE-01
func TestRouter_RouteWebhook(t *testing.T) {
	f := newFixture(t, active("tenant-1"), active("tenant-2"))
	ctx := context.Background()
	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-1", "phone-123"))

	route, err := f.router.RouteWebhook(ctx, payloadFor("phone-123"))
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", route.Tenant.ID)
	assert.Equal(t, "phone-123", route.PhoneNumberID)
}

// TestPurpose: Validates that malformed payloads are rejected before any directory or settings lookup.
// Scope: Unit Test
// Security: Resource protection against garbage input
// Expected: INVALID_WEBHOOK_PAYLOAD and zero Directory/Settings Store calls.
// Test Case ID: RTE-02
func TestRouter_RejectsMalformedPayloads(t *testing.T) {
	dir := new(mockDirectory)
	mappings := &countingMappings{MappingStore: settings.NewRepository(settings.NewMemoryStore())}
	router := NewRouter(dir, mappings, nil, Config{}, nil)

	cases := map[string]*whatsapp.Payload{
		"nil":        nil,
		"no object":  {Entry: payloadFor("p").Entry},
		"wrong type": {Object: "page", Entry: payloadFor("p").Entry},
		"no entries": {Object: whatsapp.ObjectWhatsAppBusinessAccount},
		"no changes": {Object: whatsapp.ObjectWhatsAppBusinessAccount, Entry: []whatsapp.Entry{{ID: "waba-1"}}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := router.RouteWebhook(context.Background(), p)
			assert.Equal(t, errcode.InvalidWebhookPayload, errcode.Code(err))
		})
	}

	_, err := router.RouteWebhook(context.Background(), payloadFor(""))
	assert.Equal(t, errcode.PhoneNumberIDNotFound, errcode.Code(err))

	dir.AssertNotCalled(t, "GetTenant", mock.Anything, mock.Anything)
	dir.AssertNotCalled(t, "ListTenants", mock.Anything, mock.Anything, mock.Anything)
	assert.Zero(t, mappings.reads.Load())
}

func TestRouter_UnknownPhoneNumber(t *testing.T) {
	f := newFixture(t, active("tenant-1"))
	_, err := f.router.RouteWebhook(context.Background(), payloadFor("phone-999"))
	assert.Equal(t, errcode.TenantNotFound, errcode.Code(err))
}

// TestPurpose: Validates last-write-wins ownership when a phone-number-id is registered twice.
// Scope: Unit Test
// Security: Documents the ownership-overwrite behavior for multi-tenant review
// Expected: After registering P for A then B, P resolves to B, from cache and from a fresh scan.
// Test Case ID: RTE-03
func TestRouter_LastWriteWins(t *testing.T) {
	f := newFixture(t, active("tenant-a"), active("tenant-b"))
	ctx := context.Background()

	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-a", "phone-p"))
	f.clock.Advance(time.Second)
	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-b", "phone-p"))

	route, err := f.router.RouteWebhook(ctx, payloadFor("phone-p"))
	require.NoError(t, err)
	assert.Equal(t, "tenant-b", route.Tenant.ID)

	f.router.ClearCache()
	route, err = f.router.RouteWebhook(ctx, payloadFor("phone-p"))
	require.NoError(t, err)
	assert.Equal(t, "tenant-b", route.Tenant.ID)

	prev, err := f.repo.PhoneMapping(ctx, "tenant-a")
	require.NoError(t, err)
	assert.False(t, prev.IsActive())
}

// TestPurpose: Validates that cached resolutions avoid rescans within the TTL and are re-checked against the directory.
// Scope: Unit Test
// Security: Bounded staleness after tenant removal
// Expected: No mapping reads on a cache hit; a deleted tenant evicts its entry and yields TENANT_NOT_FOUND.
// Test Case ID: RTE-04
func TestRouter_CacheRevalidation(t *testing.T) {
	f := newFixture(t, active("tenant-1"))
	ctx := context.Background()
	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-1", "phone-123"))
	f.router.ClearCache()

	_, err := f.router.RouteWebhook(ctx, payloadFor("phone-123"))
	require.NoError(t, err)
	reads := f.mappings.reads.Load()

	_, err = f.router.RouteWebhook(ctx, payloadFor("phone-123"))
	require.NoError(t, err)
	assert.Equal(t, reads, f.mappings.reads.Load(), "cache hit does not rescan")

	f.clock.Advance(6 * time.Minute)
	_, err = f.router.RouteWebhook(ctx, payloadFor("phone-123"))
	require.NoError(t, err)
	assert.Greater(t, f.mappings.reads.Load(), reads, "expired entry rescans")

	f.dir.Delete("tenant-1")
	_, err = f.router.RouteWebhook(ctx, payloadFor("phone-123"))
	assert.Equal(t, errcode.TenantNotFound, errcode.Code(err))
	assert.Equal(t, 0, f.router.CacheStats().Entries)
}

func TestRouter_InactiveTenantDoesNotResolve(t *testing.T) {
	f := newFixture(t, active("tenant-1"))
	ctx := context.Background()
	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-1", "phone-123"))

	f.dir.Put(&tenant.Tenant{ID: "tenant-1", Status: tenant.StatusSuspended})
	_, err := f.router.RouteWebhook(ctx, payloadFor("phone-123"))
	assert.Equal(t, errcode.TenantNotFound, errcode.Code(err))
}

func TestRouter_ScanSpansPages(t *testing.T) {
	tenants := make([]*tenant.Tenant, 0, 250)
	for i := 0; i < 250; i++ {
		tenants = append(tenants, active(fmt.Sprintf("tenant-%03d", i)))
	}
	f := newFixture(t, tenants...)
	ctx := context.Background()
	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-240", "phone-240"))
	f.router.ClearCache()

	route, err := f.router.RouteWebhook(ctx, payloadFor("phone-240"))
	require.NoError(t, err)
	assert.Equal(t, "tenant-240", route.Tenant.ID)
}

func TestRouter_RegisterUnknownTenant(t *testing.T) {
	f := newFixture(t)
	err := f.router.RegisterPhoneNumberID(context.Background(), "ghost", "phone-1")
	assert.Equal(t, errcode.TenantNotFound, errcode.Code(err))

	err = f.router.RegisterPhoneNumberID(context.Background(), "ghost", " ")
	assert.Equal(t, errcode.RegistrationError, errcode.Code(err))
}

func TestRouter_Unregister(t *testing.T) {
	f := newFixture(t, active("tenant-1"))
	ctx := context.Background()
	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-1", "phone-123"))

	require.NoError(t, f.router.UnregisterPhoneNumberID(ctx, "tenant-1", "phone-other"))
	_, err := f.router.Resolve(ctx, "phone-123")
	require.NoError(t, err, "unregistering another number is a no-op")

	require.NoError(t, f.router.UnregisterPhoneNumberID(ctx, "tenant-1", "phone-123"))
	_, err = f.router.Resolve(ctx, "phone-123")
	assert.Equal(t, errcode.TenantNotFound, errcode.Code(err))

	require.NoError(t, f.router.UnregisterPhoneNumberID(ctx, "tenant-2", "phone-123"))
}

// TestPurpose: Validates the webhook subscription handshake against the tenant's verify token.
// Scope: Unit Test
// Security: Webhook endpoint ownership proof (constant-time token comparison)
// Expected: token-1 returns challenge "abc"; token-2 or a wrong mode yields WEBHOOK_VERIFICATION_FAILED.
// Test Case ID: RTE-05
func TestRouter_VerifyWebhook(t *testing.T) {
	f := newFixture(t, active("tenant-1"))
	ctx := context.Background()
	require.NoError(t, f.creds.Save(ctx, "tenant-1", credential.Credentials{
		PhoneNumberID:      "phone-123",
		AccessToken:        "EAAG",
		WebhookVerifyToken: "token-1",
	}))
	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-1", "phone-123"))

	challenge, err := f.router.VerifyWebhook(ctx, "phone-123", HandshakeRequest{Mode: "subscribe", VerifyToken: "token-1", Challenge: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "abc", challenge)

	_, err = f.router.VerifyWebhook(ctx, "phone-123", HandshakeRequest{Mode: "subscribe", VerifyToken: "token-2", Challenge: "abc"})
	assert.Equal(t, errcode.WebhookVerificationFailed, errcode.Code(err))

	_, err = f.router.VerifyWebhook(ctx, "phone-123", HandshakeRequest{Mode: "unsubscribe", VerifyToken: "token-1", Challenge: "abc"})
	assert.Equal(t, errcode.WebhookVerificationFailed, errcode.Code(err))
}

func TestRouter_VerifyWebhookWithoutSettings(t *testing.T) {
	f := newFixture(t, active("tenant-1"))
	ctx := context.Background()
	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-1", "phone-123"))

	_, err := f.router.VerifyWebhook(ctx, "phone-123", HandshakeRequest{Mode: "subscribe", VerifyToken: "x"})
	assert.Equal(t, errcode.WhatsAppSettingsNotFound, errcode.Code(err))
}

func TestRouter_VerifySignature(t *testing.T) {
	f := newFixture(t, active("tenant-1"), active("tenant-2"))
	ctx := context.Background()
	require.NoError(t, f.creds.Save(ctx, "tenant-1", credential.Credentials{PhoneNumberID: "p1", AccessToken: "a", AppSecret: "app-secret"}))
	require.NoError(t, f.creds.Save(ctx, "tenant-2", credential.Credentials{PhoneNumberID: "p2", AccessToken: "a"}))

	body := []byte(`{"object":"whatsapp_business_account"}`)
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	good := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	assert.NoError(t, f.router.VerifySignature(ctx, "tenant-1", body, good))
	assert.Equal(t, errcode.InvalidSignature, errcode.Code(f.router.VerifySignature(ctx, "tenant-1", []byte("tampered"), good)))
	assert.Equal(t, errcode.InvalidSignature, errcode.Code(f.router.VerifySignature(ctx, "tenant-1", body, "")))
	assert.Equal(t, errcode.InvalidSignature, errcode.Code(f.router.VerifySignature(ctx, "tenant-1", body, "sha256=zz")))
	assert.NoError(t, f.router.VerifySignature(ctx, "tenant-2", body, ""), "no app secret, not checked")
}

func TestRouter_ConcurrentResolution(t *testing.T) {
	f := newFixture(t, active("tenant-1"), active("tenant-2"))
	ctx := context.Background()
	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-1", "phone-1"))
	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-2", "phone-2"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			phone, want := "phone-1", "tenant-1"
			if i%2 == 1 {
				phone, want = "phone-2", "tenant-2"
			}
			if i%10 == 0 {
				f.router.ClearCache()
			}
			route, err := f.router.RouteWebhook(ctx, payloadFor(phone))
			if assert.NoError(t, err) {
				assert.Equal(t, want, route.Tenant.ID)
			}
		}(i)
	}
	wg.Wait()
}

// TestPurpose: Validates that one tenant's corrupt phone mapping does not turn every miss into a routing outage.
// Scope: Unit Test
// Security: Prevents provider retry amplification caused by a single bad record
// Expected: lookup of an unknown phone-number-id yields TENANT_NOT_FOUND; healthy tenants still resolve.
// Test Case ID: RTE-06
func TestRouter_CorruptMappingIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := settings.NewMemoryStore()
	repo := settings.NewRepository(store)
	dir := tenant.NewMemoryDirectory(active("tenant-1"), active("tenant-2"))
	router := NewRouter(dir, repo, nil, Config{}, nil)

	require.NoError(t, router.RegisterPhoneNumberID(ctx, "tenant-1", "phone-123"))
	require.NoError(t, store.UpdateSettings(ctx, "tenant-2", settings.CategoryPhoneMapping, []byte("{not json")))

	_, err := router.Resolve(ctx, "phone-unknown")
	assert.True(t, errcode.Is(err, errcode.TenantNotFound), "got %v", err)

	router.ClearCache()
	owner, err := router.Resolve(ctx, "phone-123")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", owner.ID)
}

func TestRouter_ReregisterEvictsPreviousPhoneNumber(t *testing.T) {
	f := newFixture(t, active("tenant-1"))
	ctx := context.Background()

	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-1", "phone-old"))
	require.NoError(t, f.router.RegisterPhoneNumberID(ctx, "tenant-1", "phone-new"))

	_, err := f.router.Resolve(ctx, "phone-old")
	assert.True(t, errcode.Is(err, errcode.TenantNotFound), "got %v", err)

	owner, err := f.router.Resolve(ctx, "phone-new")
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", owner.ID)
	assert.Equal(t, 1, f.router.CacheStats().Entries)
}
