package whatsapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Version: "v21.0", Timeout: 2 * time.Second})
}

// TestPurpose: Validates that phone-number lookups send the bearer token and decode metadata.
// Scope: Unit Test
// Security: Token is sent only in the Authorization header
// Expected: Request path is /v21.0/{id}, Authorization carries the token, fields are decoded.
// Test Case ID: WA-01
func TestClient_PhoneNumber(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v21.0/phone-123", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Contains(t, r.URL.Query().Get("fields"), "verified_name")
		assert.Empty(t, r.URL.Query().Get("access_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"phone-123","display_phone_number":"+1 555 0100","verified_name":"Salon One","quality_rating":"GREEN"}`))
	})

	pn, err := c.PhoneNumber(context.Background(), "token-1", "phone-123")
	require.NoError(t, err)
	assert.Equal(t, "+1 555 0100", pn.DisplayPhoneNumber)
	assert.Equal(t, "Salon One", pn.VerifiedName)
	assert.Equal(t, "GREEN", pn.QualityRating)
}

// TestPurpose: Validates that Graph error envelopes are parsed into APIError.
// Scope: Unit Test
// Security: Upstream failures are typed, not string-matched
// Expected: 401 with code 190 yields an APIError reporting IsAuth.
// Test Case ID: WA-02
func TestClient_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190,"fbtrace_id":"abc"}}`))
	})

	_, err := c.PhoneNumber(context.Background(), "bad", "phone-123")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, CodeInvalidToken, apiErr.Code)
	assert.True(t, apiErr.IsAuth())
	assert.False(t, apiErr.IsPermission())
	assert.Contains(t, apiErr.Error(), "Invalid OAuth access token.")
}

func TestClient_NonJSONError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := c.BusinessAccount(context.Background(), "t", "waba-1")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "upstream down", apiErr.Body)
}

func TestClient_MessageTemplatesAndDebugToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v21.0/waba-1/message_templates":
			assert.Equal(t, "1", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"data":[{"id":"t1","name":"hello_world","status":"APPROVED"}]}`))
		case "/v21.0/debug_token":
			assert.Equal(t, "system-token", r.URL.Query().Get("input_token"))
			_, _ = w.Write([]byte(`{"data":{"app_id":"app-1","type":"SYSTEM_USER","is_valid":true,"expires_at":0,"scopes":["whatsapp_business_messaging"]}}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	templates, err := c.MessageTemplates(ctx, "t", "waba-1", 0)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "hello_world", templates[0].Name)

	info, err := c.DebugToken(ctx, "system-token", "system-token")
	require.NoError(t, err)
	assert.True(t, info.IsValid)
	assert.Equal(t, []string{"whatsapp_business_messaging"}, info.Scopes)
	_, expires := info.Expiry()
	assert.False(t, expires)
}

// TestPurpose: Validates that a hung provider call is bounded by the client timeout.
// Scope: Unit Test
// Security: Availability, callers never block indefinitely
// Expected: The call fails within the configured timeout.
// Test Case ID: WA-03
func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	c := NewClient(Config{BaseURL: srv.URL, Timeout: 100 * time.Millisecond})
	start := time.Now()
	_, err := c.PhoneNumber(context.Background(), "t", "p")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
